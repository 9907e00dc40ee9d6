package deps

import "tpbuild/internal/tpbuild"

func HiRedis() *tpbuild.Dependency {
	d := &tpbuild.Dependency{
		Name:        "hiredis",
		Version:     "0.13.3",
		URLPattern:  "https://github.com/redis/hiredis/archive/v{0}.zip",
		Group:       tpbuild.BuildGroupCommon,
		CopySources: true,
	}
	d.Build = func(b *tpbuild.Builder) error {
		return b.BuildWithMake(d, tpbuild.MakeOptions{
			SpecifyPrefix: true,
		})
	}
	return d
}
