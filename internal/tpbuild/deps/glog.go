package deps

import "tpbuild/internal/tpbuild"

func Glog() *tpbuild.Dependency {
	d := &tpbuild.Dependency{
		Name:            "glog",
		Version:         "0.4.0",
		URLPattern:      "https://github.com/google/glog/archive/v{0}.tar.gz",
		Group:           tpbuild.BuildGroupInstrumented,
		SharedAndStatic: true,
		PatchVersion:    1,
		Patches: []string{
			"glog-tsan-annotations.patch",
			"glog-symbolize-and-demangle.patch",
		},
		PostPatch: [][]string{{"autoreconf", "-fvi"}},
		AdditionalCMakeArgs: func(b *tpbuild.Builder) []string {
			args := []string{"-DCMAKE_BUILD_TYPE=Release"}
			if b.BuildType().IsSanitizer() {
				// glog's tests override new/delete, which the sanitizer
				// runtimes also do.
				args = append(args, "-DBUILD_TESTING=OFF")
			}
			return args
		},
		AdditionalLDFlags: func(b *tpbuild.Builder) []string {
			if isLinuxClang(b) && b.BuildType().IsSanitizer() {
				// pthread_rwlock_* come up undefined otherwise.
				return []string{"-lpthread"}
			}
			return nil
		},
	}
	d.Build = func(b *tpbuild.Builder) error {
		return b.BuildWithCMake(d, tpbuild.CMakeOptions{SharedAndStatic: true})
	}
	return d
}
