package deps

import (
	"runtime"

	"tpbuild/internal/tpbuild"
)

func CRCUtil() *tpbuild.Dependency {
	d := &tpbuild.Dependency{
		Name:              "crcutil",
		Version:           "1.0.0",
		URLPattern:        "https://github.com/google/crcutil/archive/refs/tags/{0}.tar.gz",
		Group:             tpbuild.BuildGroupInstrumented,
		CopySources:       true,
		PatchVersion:      1,
		Patches:           []string{"crcutil-fix-offsetof.patch"},
		UseCPPFlagsEnvVar: true,
		// -mcrc32 enables the crc32 builtins on x86_64.
		AdditionalCompilerFlags: func(b *tpbuild.Builder) []string {
			if b.Compilers.IsGCC() && runtime.GOARCH == "amd64" {
				return []string{"-mcrc32"}
			}
			return nil
		},
	}
	d.Build = func(b *tpbuild.Builder) error {
		return b.BuildWithConfigure(d, tpbuild.ConfigureOptions{RunAutogen: true})
	}
	return d
}
