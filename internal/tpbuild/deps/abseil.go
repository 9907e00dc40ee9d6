package deps

import "tpbuild/internal/tpbuild"

func Abseil() *tpbuild.Dependency {
	d := &tpbuild.Dependency{
		Name:        "abseil",
		Version:     "20230125.3",
		URLPattern:  "https://github.com/abseil/abseil-cpp/archive/refs/tags/{0}.tar.gz",
		Group:       tpbuild.BuildGroupInstrumented,
		CopySources: true,
	}
	d.Build = func(b *tpbuild.Builder) error {
		err := b.BuildWithBazel(d, tpbuild.BazelOptions{
			Targets: []string{"absl:absl_shared", "absl:absl_static"},
		})
		if err != nil {
			return err
		}
		if err := b.InstallBazelOutput(d, "absl", "libabsl_shared.so",
			"absl_shared."+b.SharedLibSuffix(), true); err != nil {
			return err
		}
		if err := b.InstallBazelOutput(d, "absl", "absl_static.a",
			"absl_static.a", false); err != nil {
			return err
		}
		// Copy headers, keeping the folder structure.
		return b.Exec.RunInDir(b.BuildDir(), nil,
			"rsync", "-a", "--include=*.h", "-f", "hide,! */",
			"./absl", b.PrefixInclude())
	}
	return d
}
