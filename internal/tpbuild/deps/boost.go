package deps

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tpbuild/internal/tpbuild"
)

var boostLibraries = []string{
	"system", "thread", "atomic", "program_options", "regex", "date_time",
}

func Boost() *tpbuild.Dependency {
	d := &tpbuild.Dependency{
		Name:            "boost",
		Version:         "1.81.0",
		URLPattern:      "https://archives.boost.io/release/{0}/source/boost_{1}.tar.bz2",
		Group:           tpbuild.BuildGroupInstrumented,
		License:         "Boost Software License 1.0",
		DirNameOverride: "boost_1_81_0",
		CopySources:     true,
		Patches:         []string{"boost-1-81-add-arm64-instruction-set.patch"},
		PatchStrip:      1,
	}
	d.Build = func(b *tpbuild.Builder) error {
		buildDir := b.BuildDir()

		// lld rejects the deprecated --no-add-needed flag that Boost's b2
		// bootstrap passes; putting /bin first picks up the system ld.
		var scope interface{ Restore() }
		if llvmMajorVersion(b) >= 14 {
			scope = tpbuild.PushEnv(map[string]string{
				"PATH": "/bin:" + os.Getenv("PATH"),
			})
		}
		err := b.Exec.RunInDir(buildDir, nil, "./bootstrap.sh", "--prefix="+b.Prefix())
		if scope != nil {
			scope.Restore()
		}
		if err != nil {
			return err
		}

		if err := writeBoostProjectConfig(b, buildDir); err != nil {
			return err
		}

		// -q stops at the first error.
		return b.Exec.RunInDir(buildDir, nil,
			"./b2", "install", "cxxstd=14", "toolset="+boostToolset(b), "-q")
	}
	return d
}

// boostToolset names a custom toolset so b2 cannot fall back to one of its
// builtin compiler configurations and drop our flags.
func boostToolset(b *tpbuild.Builder) string {
	return fmt.Sprintf("%s-%dyb",
		b.Compilers.EffectiveFamily(), b.Compilers.Identity().MajorVersion())
}

// writeBoostProjectConfig rewrites project-config.jam with our compiler,
// flags and library selection, replacing the toolset bootstrap.sh guessed.
func writeBoostProjectConfig(b *tpbuild.Builder, buildDir string) error {
	configPath := filepath.Join(buildDir, "project-config.jam")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	var kept []string
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "libraries =") ||
			trimmed == "using gcc ;" ||
			trimmed == "project : default-build <toolset>gcc ;" {
			continue
		}
		kept = append(kept, line)
	}

	cxxFlags := strings.Fields(os.Getenv("CXXFLAGS"))
	ldFlags := strings.Fields(os.Getenv("LDFLAGS"))

	var compileFlags, linkFlags []string
	for _, f := range cxxFlags {
		compileFlags = append(compileFlags, "<compileflags>"+f)
	}
	for _, f := range append(append([]string{}, cxxFlags...), ldFlags...) {
		linkFlags = append(linkFlags, "<linkflags>"+f)
	}
	var withLibs []string
	for _, lib := range boostLibraries {
		withLibs = append(withLibs, "--with-"+lib)
	}

	family := b.Compilers.EffectiveFamily()
	version := fmt.Sprintf("%dyb", b.Compilers.Identity().MajorVersion())
	kept = append(kept,
		"",
		fmt.Sprintf("libraries = %s ;", strings.Join(withLibs, " ")),
		"",
		fmt.Sprintf("using %s : %s :", family, version),
		"    "+b.Compilers.CXX()+" :",
		"    "+strings.Join(compileFlags, " "),
		"    "+strings.Join(linkFlags, " ")+" ;",
		"")
	return os.WriteFile(configPath, []byte(strings.Join(kept, "\n")), 0o644)
}
