package deps

import (
	"path/filepath"

	"tpbuild/internal/tpbuild"
)

func LibEdit() *tpbuild.Dependency {
	d := &tpbuild.Dependency{
		Name:        "libedit",
		Version:     "20191231-3.1",
		URLPattern:  "https://thrysoee.dk/editline/libedit-{0}.tar.gz",
		Group:       tpbuild.BuildGroupInstrumented,
		CopySources: true,
		AdditionalCompilerFlags: func(b *tpbuild.Builder) []string {
			flags := []string{"-I" + filepath.Join(b.PrefixInclude(), "ncurses")}
			if isLinuxClang(b) && b.BuildType() == tpbuild.BuildTypeASAN &&
				llvmMajorVersion(b) >= 16 {
				flags = append(flags, "-Wno-error=implicit-function-declaration")
			}
			return flags
		},
	}
	d.Build = func(b *tpbuild.Builder) error {
		return b.BuildWithConfigure(d, tpbuild.ConfigureOptions{
			ExtraArgs: []string{"--with-pic"},
		})
	}
	return d
}
