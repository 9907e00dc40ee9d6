package deps

import (
	"os"
	"path/filepath"

	"tpbuild/internal/tpbuild"
)

func CassandraCppDriver() *tpbuild.Dependency {
	d := &tpbuild.Dependency{
		Name:       "cassandra-cpp-driver",
		Version:    "2.9.0-yb-10",
		URLPattern: "https://github.com/YugaByte/cassandra-cpp-driver/archive/{0}.tar.gz",
		Group:      tpbuild.BuildGroupInstrumented,
	}
	d.Build = func(b *tpbuild.Builder) error {
		if tpbuild.OnLinux() {
			b.PrependRPath(filepath.Join(b.Layout.CommonInstallPrefix(), "lib"))
		}

		// The bundled FindOpenSSL.cmake cannot parse letter-suffixed OpenSSL
		// versions such as 1.1.1g; removing it makes CMake fall back to its
		// own module.
		bundled := filepath.Join(b.SourceDir(d), "cmake", "modules", "FindOpenSSL.cmake")
		if err := os.Remove(bundled); err != nil && !os.IsNotExist(err) {
			return err
		}

		args := append([]string{
			"-DCMAKE_BUILD_TYPE=" + b.CMakeBuildTypeForTestOnlyDeps(),
		}, b.OpenSSLCMakeArgs()...)
		return b.BuildWithCMake(d, tpbuild.CMakeOptions{ExtraArgs: args})
	}
	d.AdditionalCXXFlags = func(b *tpbuild.Builder) []string {
		flags := []string{
			"-Wno-error=implicit-fallthrough",
			"-Wno-error=class-memaccess",
		}
		if isLinuxClang(b) {
			flags = []string{
				"-Wno-error=implicit-fallthrough",
				"-Wno-error=unused-command-line-argument",
				"-Wno-error=deprecated-declarations",
			}
		}
		return flags
	}
	return d
}
