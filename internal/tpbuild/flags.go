package tpbuild

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// placeholderRPath is a deliberately long rpath baked into every binary on
// Linux so it can be rewritten in place later with patchelf or chrpath.
var placeholderRPath = fmt.Sprintf(
	"/tmp/making_sure_we_have_enough_room_to_set_rpath_later_%s_end_of_rpath",
	strings.Repeat("_", 256))

// rpathFlag is the linker flag adding an rpath entry.
func rpathFlag(path string) string {
	return "-Wl,-rpath," + path
}

var asanCompilerFlags = []string{
	"-fsanitize=address",
	"-fsanitize=undefined",
	"-DADDRESS_SANITIZER",
}

var asanLDFlags = []string{
	"-Wl,--allow-shlib-undefined",
	"-Wl,--unresolved-symbols=ignore-all",
}

var tsanCompilerFlags = []string{
	"-fsanitize=thread",
	"-DTHREAD_SANITIZER",
}

// https://github.com/aws/aws-graviton-getting-started/blob/main/c-c++.md
var gravitonCompilerFlags = []string{
	"-march=armv8.2-a+fp16+rcpc+dotprod+crypto",
	"-mtune=neoverse-n1",
	"-mno-outline-atomics",
}

const (
	cxxStandard    = "23"
	osxCXXStandard = "2b"
)

// resetFlags discards all flag state. Flags are recomputed from scratch for
// every (dependency, build type) pair; nothing carries over.
func (b *Builder) resetFlags() {
	b.preprocessorFlags = nil
	b.ldFlags = nil
	b.assemblerFlags = nil
	b.executableOnlyLDFlags = nil
	b.compilerFlags = nil
	b.cFlags = nil
	b.cxxFlags = nil
	b.libs = nil
}

// initFlags computes the full flag state for the current pass and dep:
// compiler-independent baseline first, then the Linux-Clang adjustments,
// then family and platform tweaks. Per-dependency hooks are applied last, at
// retrieval time.
func (b *Builder) initFlags(dep *Dependency) error {
	b.initCompilerIndependentFlags(dep)

	if runtime.GOOS != "darwin" && b.currentFamily() == FamilyClang {
		if err := b.initLinuxClangFlags(dep); err != nil {
			return err
		}
	}

	if b.currentFamily() == FamilyGCC {
		b.cxxFlags = append(b.cxxFlags, "-fext-numeric-literals")
	}

	if runtime.GOOS == "linux" {
		// Tell old linkers to use RUNPATH instead of RPATH.
		b.ldFlags = append(b.ldFlags, "-Wl,--enable-new-dtags")
	}
	return nil
}

// initCompilerIndependentFlags sets the flags that work for every compiler
// family we support.
func (b *Builder) initCompilerIndependentFlags(dep *Dependency) {
	b.resetFlags()

	b.addLinuxbrewFlags()

	prefixes := []string{b.Layout.CommonInstallPrefix()}
	if b.buildType != BuildTypeCommon {
		prefixes = append(prefixes, b.Layout.InstallPrefix(b.buildType))
	}
	for _, prefix := range prefixes {
		b.addIncludePath(filepath.Join(prefix, "include"))
		b.addLibDirAndRPath(filepath.Join(prefix, "lib"))
	}

	b.compilerFlags = append(b.compilerFlags,
		"-fno-omit-frame-pointer", "-fPIC", "-O3", "-Wall", "-DNDEBUG")

	switch runtime.GOOS {
	case "linux":
		// Reserve enough room in the dynamic section to rewrite the rpath
		// after installation.
		b.addRPath(placeholderRPath)
		b.sharedLibSuffix = "so"
		if runtime.GOARCH == "arm64" {
			b.compilerFlags = append(b.compilerFlags, gravitonCompilerFlags...)
		}
	case "darwin":
		b.sharedLibSuffix = "dylib"
		b.cxxFlags = append(b.cxxFlags, "-stdlib=libc++")
		b.ldFlags = append(b.ldFlags, "-lc++", "-lc++abi")
		b.ldFlags = append(b.ldFlags, "-Wl,-headerpad_max_install_names")
	}

	b.cxxFlags = append(b.cxxFlags, "-frtti")

	if b.buildType == BuildTypeASAN {
		b.compilerFlags = append(b.compilerFlags, asanCompilerFlags...)
		b.ldFlags = append(b.ldFlags, asanLDFlags...)
	}
	if b.buildType == BuildTypeTSAN {
		b.compilerFlags = append(b.compilerFlags, tsanCompilerFlags...)
	}

	// Every dependency must be built with the same C++ standard to keep
	// exception handling ABI-compatible, so the flag is force-included even
	// though build systems have their own knobs for it.
	if runtime.GOOS == "darwin" {
		b.cxxFlags = append(b.cxxFlags, "-std=c++"+osxCXXStandard)
	} else {
		b.cxxFlags = append(b.cxxFlags, "-std=c++"+cxxStandard)
	}
}

func (b *Builder) addLinuxbrewFlags() {
	if !b.Compilers.UsingLinuxbrew() {
		return
	}
	libDir := filepath.Join(b.Compilers.LinuxbrewDir, "lib")
	b.ldFlags = append(b.ldFlags, "-Wl,-dynamic-linker="+filepath.Join(libDir, "ld.so"))
	b.addLibDirAndRPath(libDir)
}

// libcxxDirs returns the include and lib directories of the libc++ built for
// the given build type.
func (b *Builder) libcxxDirs(t BuildType) (includeDir, libDir string) {
	base := filepath.Join(b.Layout.InstallPrefix(t), "libcxx")
	return filepath.Join(base, "include", "c++", "v1"), filepath.Join(base, "lib")
}

// initLinuxClangFlags adds the Clang-on-Linux setup: LLVM-supplied libc++,
// libunwind and (outside Linuxbrew) compiler-rt.
func (b *Builder) initLinuxClangFlags(dep *Dependency) error {
	if !b.Compilers.UsingLinuxbrew() {
		b.ldFlags = append(b.ldFlags, "-rtlib=compiler-rt")
	}
	b.ldFlags = append(b.ldFlags, "-fuse-ld=lld")
	if b.LTOType != "" {
		b.compilerFlags = append(b.compilerFlags, "-flto="+b.LTOType)
	}

	var linuxbrewIsystemFlags []string
	if b.Compilers.UsingLinuxbrew() {
		brewDir := b.Compilers.LinuxbrewDir
		b.ldFlags = append(b.ldFlags, "-Wl,--dynamic-linker="+filepath.Join(brewDir, "lib", "ld.so"))
		b.compilerFlags = append(b.compilerFlags, "-nostdinc", "--gcc-toolchain="+brewDir)
		linuxbrewIsystemFlags = []string{"-isystem", filepath.Join(brewDir, "include")}
	}

	if b.buildType == BuildTypeCommon {
		b.preprocessorFlags = append(b.preprocessorFlags, linuxbrewIsystemFlags...)
		return nil
	}

	isLibCXXABI := strings.HasSuffix(dep.Name, "_libcxxabi")
	isLibCXX := strings.HasSuffix(dep.Name, "_libcxx")

	if b.buildType == BuildTypeASAN {
		if isLibCXXABI {
			// vptr checks recurse through libc++abi itself.
			b.compilerFlags = append(b.compilerFlags, "-fno-sanitize=vptr")
		}
		if err := b.addUBSanRuntime(); err != nil {
			return err
		}
		if b.Compilers.Identity().MajorVersion() >= 14 &&
			dep.Group != BuildGroupCommon && dep.Name != "crcutil" {
			b.compilerFlags = append(b.compilerFlags, "-mllvm", "-asan-use-private-alias=1")
		}
	}
	if b.buildType == BuildTypeTSAN && b.Compilers.Identity().MajorVersion() >= 13 {
		b.executableOnlyLDFlags = append(b.executableOnlyLDFlags, "-fsanitize=thread")
	}

	b.ldFlags = append(b.ldFlags, "-lunwind")

	libcxxInclude, libcxxLib := b.libcxxDirs(b.buildType)

	if !isLibCXX && !isLibCXXABI {
		b.ldFlags = append(b.ldFlags, "-stdlib=libc++", "-lc++", "-lc++abi")
		b.cxxFlags = append(b.cxxFlags, "-stdlib=libc++", "-nostdinc++")
		b.preprocessorFlags = append(b.preprocessorFlags, "-isystem", libcxxInclude)
		b.prependLibDirAndRPath(libcxxLib)
	}
	if isLibCXX {
		// libc++ needs the libc++abi headers and library it was split from.
		b.preprocessorFlags = append(b.preprocessorFlags, "-I"+libcxxInclude)
		b.ldFlags = append(b.ldFlags, "-L"+libcxxLib)
	}
	if isLibCXX || isLibCXXABI {
		// libc++abi must find libc++ at runtime even though it builds first.
		b.addRPath(libcxxLib)
	}

	b.preprocessorFlags = append(b.preprocessorFlags, linuxbrewIsystemFlags...)

	const noUnusedArg = "-Wno-error=unused-command-line-argument"
	b.compilerFlags = append(b.compilerFlags, noUnusedArg)
	b.ldFlags = append(b.ldFlags, noUnusedArg)
	return nil
}

// addUBSanRuntime links the minimal UBSAN runtime, locating it through the
// compiler's own search paths.
func (b *Builder) addUBSanRuntime() error {
	candidates := []string{
		"clang_rt.ubsan_minimal",
		fmt.Sprintf("clang_rt.ubsan_minimal-%s", unameProcessor()),
	}
	for _, libName := range candidates {
		fileName := "lib" + libName + ".so"
		out, err := exec.Command(b.currentCC(), "-print-file-name="+fileName).Output()
		if err != nil {
			continue
		}
		path := strings.TrimSpace(string(out))
		// -print-file-name echoes the bare name back when nothing was found.
		if path == fileName || !pathExists(path) {
			continue
		}
		b.addLibDirAndRPath(filepath.Dir(path))
		b.ldFlags = append(b.ldFlags, "-l"+libName)
		return nil
	}
	return fmt.Errorf("UBSAN minimal runtime not found via %s", b.currentCC())
}

func unameProcessor() string {
	if runtime.GOARCH == "arm64" {
		return "aarch64"
	}
	return "x86_64"
}

func (b *Builder) addIncludePath(includePath string) {
	if b.VerboseOutput {
		debugf("Adding an include path: %s\n", includePath)
	}
	b.preprocessorFlags = append(b.preprocessorFlags, "-I"+includePath)
}

func (b *Builder) addLibDirAndRPath(libDir string) {
	b.ldFlags = append(b.ldFlags, "-L"+libDir)
	b.addRPath(libDir)
}

func (b *Builder) prependLibDirAndRPath(libDir string) {
	b.ldFlags = append([]string{"-L" + libDir}, b.ldFlags...)
	b.prependRPath(libDir)
}

func (b *Builder) addRPath(path string) {
	b.ldFlags = append(b.ldFlags, rpathFlag(path))
	b.allowedLibPaths[path] = true
}

func (b *Builder) prependRPath(path string) {
	b.ldFlags = append([]string{rpathFlag(path)}, b.ldFlags...)
	b.allowedLibPaths[path] = true
}

// Effective flag getters: baseline state plus the dependency's hooks, hooks
// always last so they can override.

func (b *Builder) effectiveCompilerFlags(dep *Dependency) []string {
	flags := append([]string{}, b.compilerFlags...)
	if dep.AdditionalCompilerFlags != nil {
		flags = append(flags, dep.AdditionalCompilerFlags(b)...)
	}
	return flags
}

func (b *Builder) effectiveCXXFlags(dep *Dependency) []string {
	flags := append(b.effectiveCompilerFlags(dep), b.cxxFlags...)
	if dep.AdditionalCXXFlags != nil {
		flags = append(flags, dep.AdditionalCXXFlags(b)...)
	}
	return flags
}

func (b *Builder) effectiveCFlags(dep *Dependency) []string {
	flags := append(b.effectiveCompilerFlags(dep), b.cFlags...)
	if dep.AdditionalCFlags != nil {
		flags = append(flags, dep.AdditionalCFlags(b)...)
	}
	return flags
}

func (b *Builder) effectiveLDFlags(dep *Dependency) []string {
	var flags []string
	if dep.AdditionalLeadingLDFlags != nil {
		flags = append(flags, dep.AdditionalLeadingLDFlags(b)...)
	}
	flags = append(flags, b.ldFlags...)
	if dep.AdditionalLDFlags != nil {
		flags = append(flags, dep.AdditionalLDFlags(b)...)
	}
	return flags
}

func (b *Builder) effectiveExecutableLDFlags(dep *Dependency) []string {
	flags := append([]string{}, b.ldFlags...)
	flags = append(flags, b.executableOnlyLDFlags...)
	if dep.AdditionalLDFlags != nil {
		flags = append(flags, dep.AdditionalLDFlags(b)...)
	}
	return flags
}

func (b *Builder) effectiveAssemblerFlags(dep *Dependency) []string {
	flags := append([]string{}, b.assemblerFlags...)
	if dep.AdditionalAssemblerFlags != nil {
		flags = append(flags, dep.AdditionalAssemblerFlags(b)...)
	}
	return flags
}

func (b *Builder) effectivePreprocessorFlags(dep *Dependency) []string {
	return append([]string{}, b.preprocessorFlags...)
}
