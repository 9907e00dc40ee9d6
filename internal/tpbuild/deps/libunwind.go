package deps

import "tpbuild/internal/tpbuild"

func LibUnwind() *tpbuild.Dependency {
	d := &tpbuild.Dependency{
		Name:        "libunwind",
		Version:     "1.5.0",
		URLPattern:  "https://github.com/libunwind/libunwind/releases/download/v1.5/libunwind-{0}.tar.gz",
		Group:       tpbuild.BuildGroupCommon,
		CopySources: true,
	}
	d.Build = func(b *tpbuild.Builder) error {
		// minidebuginfo would pull in a liblzma dependency.
		return b.BuildWithConfigure(d, tpbuild.ConfigureOptions{
			ExtraArgs: []string{"--with-pic", "--disable-minidebuginfo"},
		})
	}
	return d
}
