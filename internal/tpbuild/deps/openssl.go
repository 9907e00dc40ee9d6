package deps

import (
	"path/filepath"

	"tpbuild/internal/tpbuild"
)

func OpenSSL() *tpbuild.Dependency {
	d := &tpbuild.Dependency{
		Name:        "openssl",
		Version:     "3.0.16",
		URLPattern:  "https://www.openssl.org/source/openssl-{0}.tar.gz",
		Group:       tpbuild.BuildGroupCommon,
		CopySources: true,
		// Fixes a version script link error with lld on kernels before 4.1.
		Patches:           []string{"openssl-fix-afalg-link-on-centos7.patch"},
		PatchStrip:        1,
		UseCPPFlagsEnvVar: true,
	}
	d.Build = func(b *tpbuild.Builder) error {
		configureCmd := []string{"./config", "shared", "no-tests"}
		if !tpbuild.OnMacOS() {
			installLibPath := filepath.Join(b.Layout.CommonInstallPrefix(), "lib")
			configureCmd = append(configureCmd, "-Wl,-rpath="+installLibPath)
		}
		return b.BuildWithConfigure(d, tpbuild.ConfigureOptions{
			ConfigureCmd: configureCmd,
			// Skips the man pages.
			InstallTargets: []string{"install_sw"},
		})
	}
	return d
}
