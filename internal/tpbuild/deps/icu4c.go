package deps

import "tpbuild/internal/tpbuild"

func Icu4c() *tpbuild.Dependency {
	d := &tpbuild.Dependency{
		Name:        "icu4c",
		Version:     "70_1",
		URLPattern:  "https://github.com/unicode-org/icu/releases/download/release-70-1/icu4c-{0}-src.tgz",
		Group:       tpbuild.BuildGroupInstrumented,
		CopySources: true,
		Patches:     []string{"icu4c-remove-undef-strict-ansi.patch"},
		PatchStrip:  1,

		DirNameOverride:   "icu",
		UseCPPFlagsEnvVar: true,
		AdditionalLDFlags: func(b *tpbuild.Builder) []string {
			if isLinuxClang(b) && b.BuildType() == tpbuild.BuildTypeASAN {
				// Needed to find dlsym.
				return []string{"-ldl"}
			}
			return nil
		},
	}
	d.Build = func(b *tpbuild.Builder) error {
		return b.BuildWithConfigure(d, tpbuild.ConfigureOptions{
			SrcSubdir: "source",
			ExtraArgs: []string{
				"--disable-samples",
				"--disable-tests",
				"--disable-layout",
				"--enable-static",
				"--with-library-bits=64",
			},
		})
	}
	return d
}
