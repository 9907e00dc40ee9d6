package tpbuild

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShouldIncludeCompileCommand(t *testing.T) {
	require.True(t, shouldIncludeCompileCommand(compileCommand{
		Directory: "/build/zlib-1.3.1", File: "/src/zlib-1.3.1/deflate.c",
	}))
	require.False(t, shouldIncludeCompileCommand(compileCommand{
		Directory: "/build/zlib-1.3.1", File: "/tmp/conftest.c",
	}))
	require.False(t, shouldIncludeCompileCommand(compileCommand{
		Directory: "/build/dep/CMakeFiles/conftest.dir", File: "/src/dep/x.cc",
	}))
}

func TestBazelSandboxPathRewrite(t *testing.T) {
	r := &pathRewriter{root: "/opt/thirdparty", srcDirCache: make(map[string]string)}
	sandboxed := "/home/user/.cache/bazel/_bazel_user/0f1/sandbox/linux-sandbox/42/execroot/com_google_absl/absl/strings/ascii.cc"
	require.Equal(t, "/opt/thirdparty/absl/strings/ascii.cc", r.rewrite(sandboxed))

	// Non-sandbox paths pass through untouched.
	require.Equal(t, "/usr/include/stdio.h", r.rewrite("/usr/include/stdio.h"))
	require.Equal(t, "relative/path.cc", r.rewrite("relative/path.cc"))
}

func TestMapBuildDirToSourceDir(t *testing.T) {
	root := t.TempDir()
	buildDir := filepath.Join(root, "build", "uninstrumented", "snappy-1.1.3")
	srcDir := filepath.Join(root, "src", "snappy-1.1.3")
	require.NoError(t, os.MkdirAll(buildDir, 0o755))
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(buildDir, srcPathFileName), []byte(srcDir+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "snappy.cc"), []byte("x"), 0o644))

	r := &pathRewriter{root: root, srcDirCache: make(map[string]string)}

	// A file that exists in the source tree maps there.
	require.Equal(t, filepath.Join(srcDir, "snappy.cc"),
		r.rewrite(filepath.Join(buildDir, "snappy.cc")))

	// A generated file with no source counterpart stays in the build tree.
	generated := filepath.Join(buildDir, "config.h")
	require.Equal(t, generated, r.rewrite(generated))
}

func TestRewriteArgumentsSplitsAndKeepsOriginalIncludeDirs(t *testing.T) {
	root := t.TempDir()
	buildDir := filepath.Join(root, "build", "uninstrumented", "dep-1.0")
	srcDir := filepath.Join(root, "src", "dep-1.0")
	require.NoError(t, os.MkdirAll(filepath.Join(buildDir, "include"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "include"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(buildDir, srcPathFileName), []byte(srcDir+"\n"), 0o644))

	r := &pathRewriter{root: root, srcDirCache: make(map[string]string)}
	args := rewriteArguments(
		[]string{"/usr/bin/cc", "-I" + filepath.Join(buildDir, "include"), "-c", "x.c"},
		buildDir, r.rewrite)

	// The fused -Ipath is split and the include dir rewritten to the source
	// tree, with the original build-tree dir kept for generated headers.
	require.Contains(t, args, "-I")
	require.Contains(t, args, filepath.Join(srcDir, "include"))
	require.Contains(t, args, filepath.Join(buildDir, "include"))
}

func TestRewriteArgumentsResolvesRelativeIncludes(t *testing.T) {
	root := t.TempDir()
	buildDir := filepath.Join(root, "build", "common", "dep-1.0")
	srcDir := filepath.Join(root, "src", "dep-1.0")
	require.NoError(t, os.MkdirAll(filepath.Join(buildDir, "sub"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(buildDir, srcPathFileName), []byte(srcDir+"\n"), 0o644))

	r := &pathRewriter{root: root, srcDirCache: make(map[string]string)}
	args := rewriteArguments([]string{"cc", "-isystem", "sub"}, buildDir, r.rewrite)
	require.Contains(t, args, filepath.Join(srcDir, "sub"))
}

func TestRewriteCompileCommandFixesClangDriverForCXX(t *testing.T) {
	r := &pathRewriter{root: "/nonexistent-root", srcDirCache: make(map[string]string)}

	out := rewriteCompileCommand(compileCommand{
		Directory: "/build/dep",
		File:      "/src/dep/file.cc",
		Arguments: []string{"/opt/llvm/bin/clang", "-c", "/src/dep/file.cc"},
	}, r)
	require.Equal(t, "/opt/llvm/bin/clang++", out.Arguments[0])

	// C files keep the C driver.
	out = rewriteCompileCommand(compileCommand{
		Directory: "/build/dep",
		File:      "/src/dep/file.c",
		Arguments: []string{"/opt/llvm/bin/clang", "-c", "/src/dep/file.c"},
	}, r)
	require.Equal(t, "/opt/llvm/bin/clang", out.Arguments[0])
}

func TestAggregateCompileCommands(t *testing.T) {
	root := t.TempDir()
	layout := NewLayout(root)
	b := NewBuilder(layout, &CompilerChoice{Family: FamilyGCC}, nil, nil, nil)
	dep := &Dependency{Name: "snappy", Version: "1.1.3"}

	buildDir := filepath.Join(root, "build", "uninstrumented", "snappy-1.1.3")
	tmpDir := filepath.Join(root, "cc-tmp")
	require.NoError(t, os.MkdirAll(buildDir, 0o755))
	require.NoError(t, os.MkdirAll(tmpDir, 0o755))

	fragment := `{"directory": "` + buildDir + `", "file": "/src/snappy-1.1.3/snappy.cc", "arguments": ["g++", "-c", "snappy.cc"]}`
	require.NoError(t, os.WriteFile(
		filepath.Join(tmpDir, "1"+compileCommandFileSuffix), []byte(fragment), 0o644))
	conftest := `{"directory": "` + buildDir + `", "file": "/tmp/conftest.c", "arguments": ["gcc", "conftest.c"]}`
	require.NoError(t, os.WriteFile(
		filepath.Join(tmpDir, "2"+compileCommandFileSuffix), []byte(conftest), 0o644))

	require.NoError(t, b.aggregateCompileCommands(tmpDir, buildDir, dep))

	raw, err := readCompileCommands(finalCompileCommandsPath(buildDir, true))
	require.NoError(t, err)
	require.Len(t, raw, 1, "conftest commands are filtered out")
	require.Equal(t, "/src/snappy-1.1.3/snappy.cc", raw[0].File)

	final, err := readCompileCommands(finalCompileCommandsPath(buildDir, false))
	require.NoError(t, err)
	require.Len(t, final, 1)

	// Fragments are consumed.
	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	require.Empty(t, entries)

	// A later build of one file merges with the previous commands.
	other := `{"directory": "` + buildDir + `", "file": "/src/snappy-1.1.3/other.cc", "arguments": ["g++", "-c", "other.cc"]}`
	require.NoError(t, os.WriteFile(
		filepath.Join(tmpDir, "3"+compileCommandFileSuffix), []byte(other), 0o644))
	require.NoError(t, b.aggregateCompileCommands(tmpDir, buildDir, dep))

	raw, err = readCompileCommands(finalCompileCommandsPath(buildDir, true))
	require.NoError(t, err)
	require.Len(t, raw, 2)
	require.Equal(t, "/src/snappy-1.1.3/other.cc", raw[0].File, "entries sorted by file")
}
