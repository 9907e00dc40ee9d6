package deps

import "tpbuild/internal/tpbuild"

func Krb5() *tpbuild.Dependency {
	d := &tpbuild.Dependency{
		Name:        "krb5",
		Version:     "1.19.3",
		URLPattern:  "https://kerberos.org/dist/krb5/1.19/krb5-{0}.tar.gz",
		Group:       tpbuild.BuildGroupInstrumented,
		CopySources: true,
		AdditionalLDFlags: func(b *tpbuild.Builder) []string {
			if b.BuildType() == tpbuild.BuildTypeASAN {
				// Needed to find dlsym.
				return []string{"-ldl"}
			}
			return nil
		},
	}
	d.Build = func(b *tpbuild.Builder) error {
		var extraArgs []string
		if b.BuildType() == tpbuild.BuildTypeASAN {
			extraArgs = append(extraArgs, "--enable-asan")
		}
		return b.BuildWithConfigure(d, tpbuild.ConfigureOptions{
			SrcSubdir:     "src",
			ExtraArgs:     extraArgs,
			RunAutoreconf: true,
		})
	}
	return d
}
