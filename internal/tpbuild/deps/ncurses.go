package deps

import "tpbuild/internal/tpbuild"

func NCurses() *tpbuild.Dependency {
	d := &tpbuild.Dependency{
		Name:              "ncurses",
		Version:           "6.3",
		URLPattern:        "https://ftp.gnu.org/pub/gnu/ncurses/ncurses-{0}.tar.gz",
		Group:             tpbuild.BuildGroupInstrumented,
		CopySources:       true,
		UseCPPFlagsEnvVar: true,
	}
	d.Build = func(b *tpbuild.Builder) error {
		return b.BuildWithConfigure(d, tpbuild.ConfigureOptions{
			ExtraArgs: []string{
				"--with-shared",
				"--with-default-terminfo-dir=/usr/share/terminfo",
			},
		})
	}
	return d
}
