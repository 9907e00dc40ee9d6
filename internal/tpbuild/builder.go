package tpbuild

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// configuringEnvVar is set while configure-like steps run so the compiler
// wrapper can relax its argument checks.
const configuringEnvVar = "TPBUILD_CONFIGURING"

// Builder drives the sequential build of all selected dependencies across
// the selected build types.
type Builder struct {
	Layout    *Layout
	Compilers *CompilerChoice
	DM        *DownloadManager
	Exec      *Executor
	Settings  *Settings

	Force               bool
	DeleteBuildDirAfter bool
	SkipSanitizers      bool
	CompileCommands     bool
	VerboseOutput       bool
	LTOType             string
	MakeParallelism     int

	// ExplicitBuildType restricts the non-common passes to one type.
	ExplicitBuildType *BuildType

	Toolchain *Toolchain

	// Per-pass state, valid while a build type is active.
	buildType BuildType
	prefix    string
	clangCC   string
	clangCXX  string

	// Per-(dependency, build type) flag state; see flags.go.
	preprocessorFlags     []string
	compilerFlags         []string
	cFlags                []string
	cxxFlags              []string
	ldFlags               []string
	executableOnlyLDFlags []string
	assemblerFlags        []string
	libs                  []string
	sharedLibSuffix       string

	// Library paths referenced via rpath during any pass; the post-build
	// scan treats them as allowed.
	allowedLibPaths map[string]bool

	curBuildDir string
	curDep      *Dependency

	manifest []manifestEntry
}

type manifestEntry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	URL     string `json:"url"`
}

// NewBuilder wires a Builder from its collaborators.
func NewBuilder(layout *Layout, compilers *CompilerChoice, dm *DownloadManager, ex *Executor, st *Settings) *Builder {
	return &Builder{
		Layout:          layout,
		Compilers:       compilers,
		DM:              dm,
		Exec:            ex,
		Settings:        st,
		allowedLibPaths: make(map[string]bool),
	}
}

// BuildType is the pass currently being built.
func (b *Builder) BuildType() BuildType { return b.buildType }

// Prefix is the install prefix of the current pass.
func (b *Builder) Prefix() string { return b.prefix }

// PrefixLib is the lib directory under the current prefix.
func (b *Builder) PrefixLib() string { return filepath.Join(b.prefix, "lib") }

// PrefixBin is the bin directory under the current prefix.
func (b *Builder) PrefixBin() string { return filepath.Join(b.prefix, "bin") }

// PrefixInclude is the include directory under the current prefix.
func (b *Builder) PrefixInclude() string { return filepath.Join(b.prefix, "include") }

// BuildDir is the build directory of the dependency currently being built.
func (b *Builder) BuildDir() string { return b.curBuildDir }

// SourceDir is a dependency's source directory.
func (b *Builder) SourceDir(dep *Dependency) string { return b.Layout.SourcePath(dep) }

// SharedLibSuffix is "so" on Linux, "dylib" on macOS.
func (b *Builder) SharedLibSuffix() string { return b.sharedLibSuffix }

// PrependRPath puts path at the front of the linker flags as an rpath and
// registers it as an allowed library location.
func (b *Builder) PrependRPath(path string) { b.prependRPath(path) }

// CMakeBuildTypeForTestOnlyDeps is Release for passes that can ship and
// Debug for sanitizer-only passes.
func (b *Builder) CMakeBuildTypeForTestOnlyDeps() string {
	if b.buildType == BuildTypeCommon || b.buildType == BuildTypeUninstrumented {
		return "Release"
	}
	return "Debug"
}

// OpenSSLCMakeArgs points CMake's FindOpenSSL at the OpenSSL built in the
// common pass instead of whatever the system provides.
func (b *Builder) OpenSSLCMakeArgs() []string {
	dir := b.Layout.CommonInstallPrefix()
	crypto := filepath.Join(dir, "lib", "libcrypto."+b.sharedLibSuffix)
	ssl := filepath.Join(dir, "lib", "libssl."+b.sharedLibSuffix)
	return []string{
		"-DOPENSSL_ROOT_DIR=" + dir,
		"-DOPENSSL_CRYPTO_LIBRARY=" + crypto,
		"-DOPENSSL_SSL_LIBRARY=" + ssl,
		"-DOPENSSL_LIBRARIES=" + crypto + ";" + ssl,
	}
}

// AllowedLibPaths lists every directory registered as an rpath target
// during the run.
func (b *Builder) AllowedLibPaths() []string {
	var out []string
	for p := range b.allowedLibPaths {
		out = append(out, p)
	}
	return out
}

// currentFamily is the compiler family of the active pass; the clang-forced
// uninstrumented pass overrides the primary choice.
func (b *Builder) currentFamily() string {
	if b.buildType == BuildTypeClangUninstrumented {
		return FamilyClang
	}
	return b.Compilers.EffectiveFamily()
}

// currentCC is the C compiler for the active pass.
func (b *Builder) currentCC() string {
	if b.buildType == BuildTypeClangUninstrumented && b.Compilers.IsGCC() {
		return b.clangCC
	}
	return b.Compilers.CC()
}

func (b *Builder) currentCXX() string {
	if b.buildType == BuildTypeClangUninstrumented && b.Compilers.IsGCC() {
		return b.clangCXX
	}
	return b.Compilers.CXX()
}

// SelectedBuildTypes computes the pass list for this run: common first, then
// uninstrumented, then sanitized passes where supported. The clang-forced
// uninstrumented pass only runs when explicitly requested.
func (b *Builder) SelectedBuildTypes() []BuildType {
	types := []BuildType{BuildTypeCommon, BuildTypeUninstrumented}
	if b.ExplicitBuildType != nil && *b.ExplicitBuildType == BuildTypeClangUninstrumented {
		types = append(types, BuildTypeClangUninstrumented)
	}
	if runtime.GOOS == "linux" &&
		b.Compilers.IsClang() &&
		!b.Compilers.UsingLinuxbrew() &&
		!b.SkipSanitizers {
		types = append(types, BuildTypeASAN, BuildTypeTSAN)
	}
	if b.ExplicitBuildType != nil {
		filtered := types[:0]
		for _, t := range types {
			// The common pass always runs; everything depends on it.
			if t == BuildTypeCommon || t == *b.ExplicitBuildType {
				filtered = append(filtered, t)
			}
		}
		types = filtered
	}
	return types
}

// Run builds every selected dependency for every selected build type, then
// writes the dependency manifest.
func (b *Builder) Run(deps []*Dependency) error {
	if err := b.Layout.PrepareDirs(); err != nil {
		return err
	}
	if err := WriteCompilerWrappers(b.Layout.Root); err != nil {
		return err
	}
	for _, dep := range deps {
		if err := dep.Validate(); err != nil {
			return err
		}
	}

	if b.needsClangForForcedPass() {
		var err error
		if b.clangCC, err = exec.LookPath("clang"); err != nil {
			return fmt.Errorf("clang_uninstrumented requested but clang not found: %w", err)
		}
		if b.clangCXX, err = exec.LookPath("clang++"); err != nil {
			return fmt.Errorf("clang_uninstrumented requested but clang++ not found: %w", err)
		}
	}

	for _, t := range b.SelectedBuildTypes() {
		if err := b.buildOneBuildType(t, deps); err != nil {
			return err
		}
	}
	return b.writeManifest()
}

func (b *Builder) needsClangForForcedPass() bool {
	return b.ExplicitBuildType != nil &&
		*b.ExplicitBuildType == BuildTypeClangUninstrumented &&
		b.Compilers.IsGCC()
}

func (b *Builder) setBuildType(t BuildType) error {
	b.buildType = t
	b.prefix = b.Layout.InstallPrefix(t)
	if err := mkdirIfMissing(b.prefix); err != nil {
		return err
	}
	// Autotools installs to lib64 on some systems; making it a symlink to
	// lib keeps every library in one directory.
	return ensureLib64Symlink(b.prefix)
}

func (b *Builder) buildOneBuildType(t BuildType, deps []*Dependency) error {
	if err := b.setBuildType(t); err != nil {
		return err
	}

	var selected []*Dependency
	for _, dep := range deps {
		if dep.Group.AppliesTo(t) {
			selected = append(selected, dep)
		}
	}
	if len(selected) == 0 {
		return nil
	}

	for _, dep := range selected {
		heading("Building %s (%s)", dep.Name, t)
		if err := b.DM.DownloadDependency(dep); err != nil {
			return fmt.Errorf("preparing sources of %s: %w", dep.Name, err)
		}
		b.recordManifestEntry(dep)

		shouldBuild := dep.ShouldBuild == nil || dep.ShouldBuild(b)
		rebuild, stamp, err := b.NeedsRebuild(t, dep)
		if err != nil {
			return err
		}

		// Even a skipped dependency must contribute its rpath side effects
		// so the final library scan knows every allowed directory.
		if err := b.buildDependency(dep, !shouldBuild || !rebuild); err != nil {
			return fmt.Errorf("building %s (%s): %w", dep.Name, t, err)
		}
		if !shouldBuild || !rebuild {
			logf("Skipped %s (%s): should_build=%v, needs_rebuild=%v", dep.Name, t, shouldBuild, rebuild)
			continue
		}

		if err := WriteStamp(b.Layout.StampPath(t, dep), stamp); err != nil {
			return err
		}
		b.removeSpuriousAOut()
		logf("Finished building %s (%s)", dep.Name, t)
	}
	return nil
}

func (b *Builder) recordManifestEntry(dep *Dependency) {
	for _, e := range b.manifest {
		if e.Name == dep.Name {
			return
		}
	}
	b.manifest = append(b.manifest, manifestEntry{
		Name:    dep.Name,
		Version: dep.Version,
		URL:     dep.DownloadURL(),
	})
}

// writeManifest records what was built, for downstream reporting.
func (b *Builder) writeManifest() error {
	if len(b.manifest) == 0 {
		return nil
	}
	data, err := json.MarshalIndent(b.manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(b.Layout.Root, "dependencies.json"), append(data, '\n'), 0o644)
}

// buildDependency sets up flags and environment for one dependency and runs
// its build function. With onlyProcessFlags set, only the flag side effects
// (rpath collection) happen.
func (b *Builder) buildDependency(dep *Dependency, onlyProcessFlags bool) error {
	if err := b.initFlags(dep); err != nil {
		return err
	}

	// Needed at least for glog to find gflags at runtime.
	b.addRPath(filepath.Join(b.Layout.InstallPrefix(b.buildType), "lib"))
	if b.buildType != BuildTypeCommon {
		// And for libunwind from the common pass when using compiler-rt.
		b.addRPath(filepath.Join(b.Layout.CommonInstallPrefix(), "lib"))
	}

	if onlyProcessFlags {
		return nil
	}

	buildDir, err := b.createBuildDir(dep)
	if err != nil {
		return err
	}
	b.curBuildDir = buildDir
	b.curDep = dep
	defer func() { b.curBuildDir = ""; b.curDep = nil }()

	envVars := b.buildEnv(dep)

	var ccTmpDir string
	if b.CompileCommands && !b.buildType.IsSanitizer() {
		ccTmpDir, err = os.MkdirTemp("", "compile-commands-"+dep.Name+"-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(ccTmpDir)
		envVars[compileCommandsTmpDirEnvVar] = ccTmpDir
	}

	if err := writeEnvScript(buildDir, envVars); err != nil {
		return err
	}

	scope := PushEnv(envVars)
	defer scope.Restore()

	b.Exec.LinePrefix = fmt.Sprintf("%s (%s%d, %s)",
		dep.Name, b.currentFamily(), b.Compilers.Identity().MajorVersion(), b.buildType)
	defer func() { b.Exec.LinePrefix = "" }()

	if err := dep.Build(b); err != nil {
		return err
	}

	if ccTmpDir != "" {
		if err := b.aggregateCompileCommands(ccTmpDir, buildDir, dep); err != nil {
			return err
		}
	}

	// The Abseil build tree is needed by the tcmalloc Bazel build, and the
	// uninstrumented icu4c tree by its sanitized builds.
	if b.DeleteBuildDirAfter && dep.Name != "abseil" && dep.Name != "icu4c" {
		logf("Deleting build directory %s", buildDir)
		if err := os.RemoveAll(buildDir); err != nil {
			return err
		}
	}
	return nil
}

// buildEnv assembles the child environment for one dependency build. The
// compiler wrapper is used when globally requested, when the dependency
// requires it, or when compile commands are being collected (the wrapper is
// their only producer).
func (b *Builder) buildEnv(dep *Dependency) map[string]string {
	useWrapper := dep.NeedCompilerWrapper || b.CompileCommands
	env := b.Compilers.CompilerEnv(b.wrapperDir(), b.currentCC(), b.currentCXX(), useWrapper)

	preprocessorFlags := b.effectivePreprocessorFlags(dep)
	var cppflags, inlinePreprocessorFlags []string
	if dep.UseCPPFlagsEnvVar {
		cppflags = preprocessorFlags
	} else {
		inlinePreprocessorFlags = preprocessorFlags
	}

	libs := append([]string{}, b.libs...)
	if b.buildType == BuildTypeTSAN && b.Compilers.IsClang() &&
		b.Compilers.Identity().MajorVersion() >= 18 {
		libs = append(libs, "-lclang_rt.builtins")
	}

	env["CPPFLAGS"] = strings.Join(cppflags, " ")
	env["CXXFLAGS"] = strings.Join(append(append([]string{}, inlinePreprocessorFlags...), b.effectiveCXXFlags(dep)...), " ")
	env["CFLAGS"] = strings.Join(append(append([]string{}, inlinePreprocessorFlags...), b.effectiveCFlags(dep)...), " ")
	env["LDFLAGS"] = strings.Join(b.effectiveLDFlags(dep), " ")
	env["ASFLAGS"] = strings.Join(b.effectiveAssemblerFlags(dep), " ")
	env["LIBS"] = strings.Join(libs, " ")

	if b.buildType == BuildTypeASAN {
		// Programs built and run during configure would otherwise abort on
		// harmless leaks or ODR issues.
		env["ASAN_OPTIONS"] = "detect_odr_violation=0:detect_leaks=0"
	}

	if b.VerboseOutput {
		for k, v := range env {
			debugf("Setting environment variable %s to: %s\n", k, v)
		}
	}
	return env
}

func (b *Builder) wrapperDir() string {
	return WrapperDir(b.Layout.Root)
}

// createBuildDir prepares the build directory. Copy-sources dependencies
// build inside a copy of the source tree; everything else builds
// out-of-tree. A file recording the source path is left in the build dir for
// compile-command rewriting.
func (b *Builder) createBuildDir(dep *Dependency) (string, error) {
	buildDir := b.Layout.BuildDir(b.buildType, dep)
	srcDir := b.Layout.SourcePath(dep)

	if dep.CopySources {
		if dirExists(buildDir) {
			if err := os.RemoveAll(buildDir); err != nil {
				return "", err
			}
		}
		if err := mkdirIfMissing(filepath.Dir(buildDir)); err != nil {
			return "", err
		}
		if err := b.Exec.RunInDir("", nil, "cp", "-R", srcDir, buildDir); err != nil {
			return "", fmt.Errorf("failed to copy sources of %s: %w", dep.Name, err)
		}
	} else {
		if err := mkdirIfMissing(buildDir); err != nil {
			return "", err
		}
	}

	if err := os.WriteFile(filepath.Join(buildDir, srcPathFileName), []byte(srcDir+"\n"), 0o644); err != nil {
		return "", err
	}
	return buildDir, nil
}

// removeSpuriousAOut deletes the a.out file some configure checks leave at
// the repository root.
func (b *Builder) removeSpuriousAOut() {
	path := filepath.Join(b.Layout.Root, "a.out")
	if pathExists(path) {
		debugf("Removing spurious a.out at %s\n", path)
		os.Remove(path)
	}
}

func (b *Builder) makeParallelism() int {
	if b.MakeParallelism > 0 {
		return b.MakeParallelism
	}
	return runtime.NumCPU()
}
