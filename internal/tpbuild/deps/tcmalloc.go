package deps

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tpbuild/internal/tpbuild"
)

func TCMalloc() *tpbuild.Dependency {
	d := &tpbuild.Dependency{
		Name:        "tcmalloc",
		Version:     "20240411",
		URLPattern:  "https://github.com/google/tcmalloc/archive/{0}.tar.gz",
		Group:       tpbuild.BuildGroupInstrumented,
		CopySources: true,
		AdditionalCXXFlags: func(b *tpbuild.Builder) []string {
			if b.Compilers.IsClang() && llvmMajorVersion(b) >= 18 {
				return []string{"-Wno-error=thread-safety-reference-return"}
			}
			return nil
		},
	}
	d.Build = func(b *tpbuild.Builder) error {
		if err := pointWorkspaceAtAbseil(b, d); err != nil {
			return err
		}
		err := b.BuildWithBazel(d, tpbuild.BazelOptions{
			Targets: []string{"tcmalloc:tcmalloc_shared", "tcmalloc:tcmalloc_static"},
		})
		if err != nil {
			return err
		}
		if err := b.InstallBazelOutput(d, "tcmalloc", "libtcmalloc_shared.so",
			"libgoogletcmalloc."+b.SharedLibSuffix(), true); err != nil {
			return err
		}
		if err := b.InstallBazelOutput(d, "tcmalloc", "tcmalloc_static.a",
			"libgoogletcmalloc.a", false); err != nil {
			return err
		}
		return b.Exec.RunInDir(b.BuildDir(), nil,
			"rsync", "-a", "--include=*.h", "-f", "hide,! */",
			"./tcmalloc", b.PrefixInclude())
	}
	return d
}

// pointWorkspaceAtAbseil fixes the local_repository path for Abseil in the
// tcmalloc WORKSPACE file so it refers to the Abseil build tree next to ours.
func pointWorkspaceAtAbseil(b *tpbuild.Builder, d *tpbuild.Dependency) error {
	workspacePath := filepath.Join(b.BuildDir(), "WORKSPACE")
	data, err := os.ReadFile(workspacePath)
	if err != nil {
		return err
	}
	lines := strings.Split(string(data), "\n")
	abseilDirName := filepath.Base(b.Layout.BuildDir(b.BuildType(), Abseil()))
	found := false
	for i := 0; i+2 < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "local_repository(" &&
			strings.TrimSpace(lines[i+1]) == `name = "com_google_absl",` {
			lines[i+2] = fmt.Sprintf(`    path = "../%s",`, abseilDirName)
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("could not update the Abseil source path in %s", workspacePath)
	}
	return os.WriteFile(workspacePath, []byte(strings.Join(lines, "\n")), 0o644)
}
