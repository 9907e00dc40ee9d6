package deps

import "tpbuild/internal/tpbuild"

func Protobuf() *tpbuild.Dependency {
	d := &tpbuild.Dependency{
		Name:        "protobuf",
		Version:     "3.5.1",
		URLPattern:  "https://github.com/protocolbuffers/protobuf/archive/refs/tags/v{0}.tar.gz",
		Group:       tpbuild.BuildGroupInstrumented,
		CopySources: true,
	}
	d.Build = func(b *tpbuild.Builder) error {
		return b.BuildWithConfigure(d, tpbuild.ConfigureOptions{
			RunAutogen: true,
			ExtraArgs: []string{
				"--with-pic",
				"--enable-shared",
				"--enable-static",
				"--without-js",
			},
		})
	}
	return d
}
