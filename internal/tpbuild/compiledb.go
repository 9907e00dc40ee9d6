package tpbuild

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// The compiler wrapper records one JSON file per compiled object in the
// directory named by this environment variable. After a dependency's build
// finishes, the fragments are merged into a single compile_commands.json.
const (
	compileCommandsTmpDirEnvVar = "TPBUILD_COMPILE_COMMANDS_TMP_DIR"
	compileCommandFileSuffix    = ".compile_command.json"
	compileCommandsSubdir       = "compile_commands"
	srcPathFileName             = "dep_src_path.txt"
)

var includeDirArgs = []string{"-I", "-isystem", "-iquote"}

// bazelSandboxPathRE matches paths inside Bazel's linux-sandbox execroot,
// capturing the path relative to the project root.
var bazelSandboxPathRE = regexp.MustCompile(
	`^.*/[.]cache/.*/sandbox/linux-sandbox/[0-9]+/execroot/[^/]+(?:/(.*))?$`)

type compileCommand struct {
	Directory string   `json:"directory"`
	File      string   `json:"file"`
	Arguments []string `json:"arguments"`
}

func compileCommandsDir(buildDir string) string {
	return filepath.Join(buildDir, compileCommandsSubdir)
}

func finalCompileCommandsPath(buildDir string, raw bool) string {
	name := "compile_commands.json"
	if raw {
		name = "compile_commands_raw.json"
	}
	return filepath.Join(compileCommandsDir(buildDir), name)
}

// conftest binaries are throwaway configure probes, not part of the build.
func shouldIncludeCompileCommand(c compileCommand) bool {
	if filepath.Base(c.File) == "conftest.c" {
		return false
	}
	dirBase := filepath.Base(c.Directory)
	return dirBase != "conftest" && dirBase != "conftest.dir"
}

// aggregateCompileCommands merges the per-object command fragments from
// tmpDir into buildDir's aggregated compile_commands.json, preserving
// commands from earlier builds of the same dependency for files not
// recompiled this time.
func (b *Builder) aggregateCompileCommands(tmpDir, buildDir string, dep *Dependency) error {
	var fragmentPaths []string
	err := filepath.WalkDir(tmpDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), compileCommandFileSuffix) {
			fragmentPaths = append(fragmentPaths, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	var commands []compileCommand
	for _, path := range fragmentPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var c compileCommand
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("malformed compile command fragment %s: %w", path, err)
		}
		commands = append(commands, c)
	}

	if err := mkdirIfMissing(compileCommandsDir(buildDir)); err != nil {
		return err
	}

	rawPath := finalCompileCommandsPath(buildDir, true)
	newFiles := make(map[string]bool, len(commands))
	for _, c := range commands {
		newFiles[c.File] = true
	}
	if existing, err := readCompileCommands(rawPath); err == nil {
		for _, c := range existing {
			if !newFiles[c.File] {
				commands = append(commands, c)
			}
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	filtered := commands[:0]
	for _, c := range commands {
		if shouldIncludeCompileCommand(c) {
			filtered = append(filtered, c)
		}
	}
	commands = filtered
	sort.Slice(commands, func(i, j int) bool { return commands[i].File < commands[j].File })

	if err := writeCompileCommands(rawPath, commands); err != nil {
		return err
	}
	logf("Wrote %d raw compile commands to %s", len(commands), rawPath)

	for _, path := range fragmentPaths {
		os.Remove(path)
	}

	rewriter := &pathRewriter{root: b.Layout.Root, srcDirCache: make(map[string]string)}
	rewritten := make([]compileCommand, 0, len(commands))
	for _, c := range commands {
		rewritten = append(rewritten, rewriteCompileCommand(c, rewriter))
	}
	finalPath := finalCompileCommandsPath(buildDir, false)
	if err := writeCompileCommands(finalPath, rewritten); err != nil {
		return err
	}
	logf("Wrote the compile commands file at %s", finalPath)
	return nil
}

func readCompileCommands(path string) ([]compileCommand, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var commands []compileCommand
	if err := json.Unmarshal(data, &commands); err != nil {
		return nil, fmt.Errorf("malformed %s: %w", path, err)
	}
	return commands, nil
}

func writeCompileCommands(path string, commands []compileCommand) error {
	data, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, append(data, '\n'), 0o644)
}

// pathRewriter maps build-tree paths back to source-tree paths using the
// source path marker file left in every build directory.
type pathRewriter struct {
	root        string
	srcDirCache map[string]string
}

// rewrite undoes Bazel sandbox indirection, then maps the path from the
// build tree to the source tree when the corresponding source file exists.
func (r *pathRewriter) rewrite(path string) string {
	if m := bazelSandboxPathRE.FindStringSubmatch(path); m != nil {
		path = filepath.Join(r.root, m[1])
	}
	return r.mapBuildDirToSourceDir(path)
}

func (r *pathRewriter) mapBuildDirToSourceDir(path string) string {
	if !filepath.IsAbs(path) {
		return path
	}
	prefix := path
	for strings.HasPrefix(prefix, r.root+string(filepath.Separator)) {
		srcDir, ok := r.srcDirCache[prefix]
		if !ok {
			if data, err := os.ReadFile(filepath.Join(prefix, srcPathFileName)); err == nil {
				srcDir = strings.TrimSpace(string(data))
			}
			r.srcDirCache[prefix] = srcDir
		}
		if srcDir != "" {
			rel, err := filepath.Rel(prefix, path)
			if err == nil {
				candidate := filepath.Join(srcDir, rel)
				if pathExists(candidate) {
					return candidate
				}
			}
		}
		prefix = filepath.Dir(prefix)
	}
	return path
}

func rewriteCompileCommand(c compileCommand, r *pathRewriter) compileCommand {
	out := compileCommand{
		// The working directory stays in the build tree so relative paths
		// in the arguments keep resolving.
		Directory: c.Directory,
		File:      r.rewrite(c.File),
		Arguments: rewriteArguments(c.Arguments, c.Directory, r.rewrite),
	}
	// Bazel sometimes compiles C++ sources with the clang driver.
	if len(out.Arguments) > 0 &&
		(strings.HasSuffix(out.File, ".cc") || strings.HasSuffix(out.File, ".cpp")) &&
		strings.HasSuffix(out.Arguments[0], "/clang") {
		out.Arguments[0] += "++"
	}
	return out
}

// rewriteArguments maps include-directory arguments from the build tree to
// the source tree, keeping the original directories as well so generated
// headers stay findable.
func rewriteArguments(args []string, workDir string, rewrite func(string) string) []string {
	// Split fused forms like -Ipath into separate tokens.
	var normalized []string
	for _, arg := range args {
		split := false
		for _, prefix := range includeDirArgs {
			if strings.HasPrefix(arg, prefix) && arg != prefix {
				normalized = append(normalized, prefix, arg[len(prefix):])
				split = true
				break
			}
		}
		if !split {
			normalized = append(normalized, arg)
		}
	}

	isIncludeArg := func(s string) bool {
		for _, p := range includeDirArgs {
			if s == p {
				return true
			}
		}
		return false
	}

	var newArgs []string
	rewrittenDirs := make(map[string]bool)
	type originalDir struct{ argType, dir string }
	var originals []originalDir

	prev := ""
	for _, arg := range normalized {
		newArg := rewrite(arg)
		if isIncludeArg(prev) {
			if !filepath.IsAbs(arg) {
				newArg = rewrite(filepath.Join(workDir, arg))
			}
			rewrittenDirs[newArg] = true
			originals = append(originals, originalDir{prev, arg})
		}
		newArgs = append(newArgs, newArg)
		prev = arg
	}

	// Keep the original build-tree include dirs too; generated headers only
	// exist there.
	for _, o := range originals {
		dir := o.dir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(workDir, dir)
		}
		if !rewrittenDirs[dir] {
			rewrittenDirs[dir] = true
			newArgs = append(newArgs, o.argType, dir)
		}
	}
	return newArgs
}
