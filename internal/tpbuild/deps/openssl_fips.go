package deps

import "tpbuild/internal/tpbuild"

// OpenSSLFIPS reserves a source directory for a FIPS-validated OpenSSL
// module provisioned outside this tool. Nothing is downloaded or built.
func OpenSSLFIPS() *tpbuild.Dependency {
	return &tpbuild.Dependency{
		Name:      "openssl_fips",
		Version:   "3.0.9",
		Group:     tpbuild.BuildGroupCommon,
		MkdirOnly: true,
	}
}
