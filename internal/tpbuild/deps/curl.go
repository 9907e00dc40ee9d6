package deps

import "tpbuild/internal/tpbuild"

func Curl() *tpbuild.Dependency {
	d := &tpbuild.Dependency{
		Name:              "curl",
		Version:           "8.13.0",
		URLPattern:        "https://curl.haxx.se/download/curl-{0}.tar.gz",
		Group:             tpbuild.BuildGroupCommon,
		CopySources:       true,
		UseCPPFlagsEnvVar: true,
	}
	d.Build = func(b *tpbuild.Builder) error {
		disabledFeatures := []string{
			"ftp", "file", "ldap", "ldaps", "rtsp", "dict", "telnet", "tftp",
			"pop3", "imap", "smtp", "gopher", "manual", "librtmp", "ipv6",
		}
		var extraArgs []string
		for _, feature := range disabledFeatures {
			extraArgs = append(extraArgs, "--disable-"+feature)
		}
		extraArgs = append(extraArgs,
			"--with-ssl="+b.Layout.CommonInstallPrefix(),
			"--with-zlib="+b.Layout.CommonInstallPrefix(),
			"--without-brotli",
			"--without-libidn2",
			"--without-librtmp",
			"--without-nghttp2",
			"--without-zstd",
			"--without-libpsl",
		)
		return b.BuildWithConfigure(d, tpbuild.ConfigureOptions{ExtraArgs: extraArgs})
	}
	return d
}
