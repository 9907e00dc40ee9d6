package deps

import "tpbuild/internal/tpbuild"

func LibUUID() *tpbuild.Dependency {
	d := &tpbuild.Dependency{
		Name:        "libuuid",
		Version:     "1.0.3",
		URLPattern:  "https://sourceforge.net/projects/libuuid/files/libuuid-{0}.tar.gz",
		Group:       tpbuild.BuildGroupCommon,
		CopySources: true,
		AdditionalCompilerFlags: func(b *tpbuild.Builder) []string {
			if llvmMajorVersion(b) >= 15 {
				return []string{"-Wno-error=implicit-function-declaration"}
			}
			return nil
		},
	}
	d.Build = func(b *tpbuild.Builder) error {
		return b.BuildWithConfigure(d, tpbuild.ConfigureOptions{
			ExtraArgs:     []string{"--with-pic"},
			RunAutoreconf: true,
		})
	}
	return d
}
