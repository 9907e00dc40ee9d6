package deps

import "tpbuild/internal/tpbuild"

func LibUv() *tpbuild.Dependency {
	d := &tpbuild.Dependency{
		Name:        "libuv",
		Version:     "1.23.0",
		URLPattern:  "https://github.com/libuv/libuv/archive/v{0}.tar.gz",
		Group:       tpbuild.BuildGroupInstrumented,
		CopySources: true,
	}
	d.Build = func(b *tpbuild.Builder) error {
		return b.BuildWithCMake(d, tpbuild.CMakeOptions{
			ExtraArgs: []string{
				"-DCMAKE_BUILD_TYPE=Release",
				"-DBUILD_SHARED_LIBS=ON",
			},
		})
	}
	return d
}
