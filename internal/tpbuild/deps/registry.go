// Package deps defines every third-party dependency that can be built:
// where to fetch it, how to patch it, which build passes it participates in,
// and the per-dependency compiler and linker flag adjustments.
package deps

import (
	"fmt"

	"tpbuild/internal/tpbuild"
)

// All returns every known dependency in build order. Order matters: later
// dependencies link against earlier ones.
func All() []*tpbuild.Dependency {
	return []*tpbuild.Dependency{
		// Common pass: built once, shared by all other passes.
		Zlib(),
		OpenSSL(),
		OpenSSLFIPS(),
		LibUnwind(),
		LibUUID(),
		Flex(),
		Bison(),
		Curl(),
		HiRedis(),
		RapidJSON(),

		// Potentially instrumented: rebuilt per build type.
		LLVMLibCxxAbi(),
		LLVMLibCxx(),
		NCurses(),
		LibEdit(),
		Icu4c(),
		Protobuf(),
		CRCUtil(),
		Boost(),
		GPerfTools(),
		Snappy(),
		Glog(),
		GoogleTest(),
		LibUv(),
		Krb5(),
		CassandraCppDriver(),
		Abseil(),
		TCMalloc(),
	}
}

// Select resolves the dependency list for a run. With names set, only those
// dependencies build (but all still download, preserving ordering
// side effects is the caller's concern). With skip set, the named ones are
// left out. The two are mutually exclusive.
func Select(names, skip []string) ([]*tpbuild.Dependency, error) {
	all := All()
	if len(names) > 0 && len(skip) > 0 {
		return nil, fmt.Errorf("cannot both select and skip dependencies")
	}

	byName := make(map[string]*tpbuild.Dependency, len(all))
	for _, d := range all {
		byName[d.Name] = d
	}
	for _, n := range append(append([]string{}, names...), skip...) {
		if _, ok := byName[n]; !ok {
			return nil, fmt.Errorf("unknown dependency: %q", n)
		}
	}

	if len(names) > 0 {
		selected := make(map[string]bool, len(names))
		for _, n := range names {
			selected[n] = true
		}
		var out []*tpbuild.Dependency
		for _, d := range all {
			if selected[d.Name] {
				out = append(out, d)
			}
		}
		return out, nil
	}

	if len(skip) > 0 {
		skipped := make(map[string]bool, len(skip))
		for _, n := range skip {
			skipped[n] = true
		}
		var out []*tpbuild.Dependency
		for _, d := range all {
			if !skipped[d.Name] {
				out = append(out, d)
			}
		}
		return out, nil
	}
	return all, nil
}

func isLinuxClang(b *tpbuild.Builder) bool {
	return b.Compilers.IsClang() && !b.Compilers.UsingLinuxbrew() &&
		tpbuild.OnLinux()
}

func llvmMajorVersion(b *tpbuild.Builder) int {
	if !b.Compilers.IsClang() {
		return 0
	}
	return b.Compilers.Identity().MajorVersion()
}
