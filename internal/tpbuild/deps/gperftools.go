package deps

import "tpbuild/internal/tpbuild"

func GPerfTools() *tpbuild.Dependency {
	d := &tpbuild.Dependency{
		Name:        "gperftools",
		Version:     "2.8.1",
		URLPattern:  "https://github.com/gperftools/gperftools/releases/download/gperftools-{0}/gperftools-{0}.tar.gz",
		Group:       tpbuild.BuildGroupInstrumented,
		CopySources: true,
		PostPatch:   [][]string{{"autoreconf", "-fvi"}},
		// The tcmalloc in gperftools conflicts with sanitizer runtimes.
		ShouldBuild: func(b *tpbuild.Builder) bool {
			return !b.BuildType().IsSanitizer()
		},
	}
	d.Build = func(b *tpbuild.Builder) error {
		return b.BuildWithConfigure(d, tpbuild.ConfigureOptions{
			ExtraArgs: []string{
				"--enable-frame-pointers",
				"--enable-heap-checker",
				"--with-pic",
			},
			// The install race in gperftools' Makefile breaks parallel make.
			ExtraMakeArgs: []string{"-j1"},
		})
	}
	return d
}
