package deps

import "tpbuild/internal/tpbuild"

func Bison() *tpbuild.Dependency {
	d := &tpbuild.Dependency{
		Name:        "bison",
		Version:     "3.4.1",
		URLPattern:  "https://ftp.gnu.org/gnu/bison/bison-{0}.tar.gz",
		Group:       tpbuild.BuildGroupCommon,
		License:     "GPL-3.0",
		CopySources: true,
		// Bison 3.4.1 trips over incompatible function pointer types with
		// newer Clang and on macOS.
		AdditionalCompilerFlags: func(b *tpbuild.Builder) []string {
			if tpbuild.OnMacOS() || llvmMajorVersion(b) >= 16 {
				return []string{"-Wno-error=incompatible-function-pointer-types"}
			}
			return nil
		},
	}
	d.Build = func(b *tpbuild.Builder) error {
		return b.BuildWithConfigure(d, tpbuild.ConfigureOptions{
			ExtraArgs: []string{"--with-pic"},
		})
	}
	return d
}
