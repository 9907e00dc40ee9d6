package deps

import (
	"path/filepath"

	"tpbuild/internal/tpbuild"
)

func GoogleTest() *tpbuild.Dependency {
	d := &tpbuild.Dependency{
		Name:            "googletest",
		Version:         "1.12.1",
		URLPattern:      "https://github.com/google/googletest/archive/release-{0}.tar.gz",
		Group:           tpbuild.BuildGroupInstrumented,
		DirNameOverride: "googletest-release-1.12.1",
	}
	d.Build = func(b *tpbuild.Builder) error {
		// Both library flavors are installed; shared goes last so the
		// CMake cache wipe between runs does not matter.
		for _, mode := range []string{"static", "shared"} {
			sharedLibs := "OFF"
			if mode == "shared" {
				sharedLibs = "ON"
			}
			err := b.BuildWithCMake(d, tpbuild.CMakeOptions{
				ExtraArgs: []string{
					"-DCMAKE_BUILD_TYPE=Debug",
					"-DBUILD_SHARED_LIBS=" + sharedLibs,
				},
			})
			if err != nil {
				return err
			}
		}
		srcDir := b.SourceDir(d)
		for _, sub := range []string{"googlemock", "googletest"} {
			includeDir := filepath.Join(srcDir, sub, "include")
			if err := b.Exec.RunInDir("", nil, "rsync", "-a", includeDir+"/", b.PrefixInclude()+"/"); err != nil {
				return err
			}
		}
		return nil
	}
	return d
}
