package tpbuild

import "fmt"

// BuildType identifies one pass of the build loop. Each selected type gets
// its own build directories, install prefix and freshly computed flags.
type BuildType int

const (
	// BuildTypeCommon builds C-only dependencies shared by every
	// configuration.
	BuildTypeCommon BuildType = iota

	// BuildTypeUninstrumented builds C++ dependencies without sanitizers,
	// with the primary compiler.
	BuildTypeUninstrumented

	// BuildTypeClangUninstrumented is the uninstrumented pass forced onto
	// Clang when the primary compiler is GCC. Only entered when explicitly
	// requested.
	BuildTypeClangUninstrumented

	// BuildTypeASAN builds with AddressSanitizer and UndefinedBehaviorSanitizer.
	BuildTypeASAN

	// BuildTypeTSAN builds with ThreadSanitizer.
	BuildTypeTSAN
)

var buildTypeNames = map[BuildType]string{
	BuildTypeCommon:              "common",
	BuildTypeUninstrumented:      "uninstrumented",
	BuildTypeClangUninstrumented: "clang_uninstrumented",
	BuildTypeASAN:                "asan",
	BuildTypeTSAN:                "tsan",
}

func (t BuildType) String() string { return buildTypeNames[t] }

// DirName is the per-build-type directory component.
func (t BuildType) DirName() string { return buildTypeNames[t] }

// IsSanitizer reports whether the build type enables a sanitizer runtime.
func (t BuildType) IsSanitizer() bool {
	return t == BuildTypeASAN || t == BuildTypeTSAN
}

// ParseBuildType maps a command-line name to a BuildType.
func ParseBuildType(name string) (BuildType, error) {
	for t, n := range buildTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown build type: %q", name)
}

// BuildTypeNames lists all valid build type names for usage text.
func BuildTypeNames() []string {
	return []string{"common", "uninstrumented", "clang_uninstrumented", "asan", "tsan"}
}

// BuildTypes lists every build type in pass order.
func BuildTypes() []BuildType {
	return []BuildType{
		BuildTypeCommon,
		BuildTypeUninstrumented,
		BuildTypeClangUninstrumented,
		BuildTypeASAN,
		BuildTypeTSAN,
	}
}

// BuildGroup classifies a dependency by which build types apply to it.
type BuildGroup int

const (
	// BuildGroupCommon dependencies are never instrumented and should only
	// contain C code. They build once, in the common pass.
	BuildGroupCommon BuildGroup = iota

	// BuildGroupCXXUninstrumented dependencies contain C++ but are never
	// instrumented with sanitizers.
	BuildGroupCXXUninstrumented

	// BuildGroupInstrumented dependencies build once per selected build
	// type, including the sanitized passes.
	BuildGroupInstrumented
)

func (g BuildGroup) String() string {
	switch g {
	case BuildGroupCommon:
		return "common"
	case BuildGroupCXXUninstrumented:
		return "cxx_uninstrumented"
	case BuildGroupInstrumented:
		return "instrumented"
	}
	return fmt.Sprintf("BuildGroup(%d)", int(g))
}

// AppliesTo reports whether a dependency in this group is built during the
// given pass.
func (g BuildGroup) AppliesTo(t BuildType) bool {
	switch g {
	case BuildGroupCommon:
		return t == BuildTypeCommon
	case BuildGroupCXXUninstrumented:
		return t == BuildTypeUninstrumented || t == BuildTypeClangUninstrumented
	case BuildGroupInstrumented:
		return t != BuildTypeCommon
	}
	return false
}
