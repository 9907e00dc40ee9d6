package deps

import "tpbuild/internal/tpbuild"

func Flex() *tpbuild.Dependency {
	d := &tpbuild.Dependency{
		Name:        "flex",
		Version:     "2.6.3",
		URLPattern:  "https://github.com/westes/flex/releases/download/v{0}/flex-{0}.tar.gz",
		Group:       tpbuild.BuildGroupCommon,
		CopySources: true,
	}
	d.Build = func(b *tpbuild.Builder) error {
		return b.BuildWithConfigure(d, tpbuild.ConfigureOptions{
			ExtraArgs: []string{"--with-pic"},
		})
	}
	return d
}
