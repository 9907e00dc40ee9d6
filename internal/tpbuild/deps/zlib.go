package deps

import "tpbuild/internal/tpbuild"

func Zlib() *tpbuild.Dependency {
	d := &tpbuild.Dependency{
		Name:        "zlib",
		Version:     "1.3.1",
		URLPattern:  "https://github.com/madler/zlib/releases/download/v{0}/zlib-{0}.tar.gz",
		Group:       tpbuild.BuildGroupCommon,
		CopySources: true,
		// Workaround for https://github.com/madler/zlib/issues/856
		AdditionalLDFlags: func(b *tpbuild.Builder) []string {
			if b.Compilers.IsClang() && llvmMajorVersion(b) >= 17 {
				return []string{"-Wl,--undefined-version"}
			}
			return nil
		},
	}
	d.Build = func(b *tpbuild.Builder) error {
		return b.BuildWithConfigure(d, tpbuild.ConfigureOptions{})
	}
	return d
}
