package tpbuild

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// MakeOptions customizes a plain make-based build.
type MakeOptions struct {
	ExtraArgs      []string
	InstallTargets []string // nil means ["install"]; empty slice skips install
	SpecifyPrefix  bool
	PrefixVar      string // defaults to PREFIX
}

// ConfigureOptions customizes a configure+make build.
type ConfigureOptions struct {
	ConfigureCmd   []string // defaults to ["./configure"]
	ExtraArgs      []string
	ExtraMakeArgs  []string
	InstallTargets []string
	RunAutogen     bool
	RunAutoreconf  bool
	SrcSubdir      string
	PostConfigure  func(b *Builder) error
}

// CMakeOptions customizes a CMake build.
type CMakeOptions struct {
	ExtraArgs       []string
	ExtraBuildArgs  []string
	SrcSubdir       string
	DisableNinja    bool // ninja is used when available unless disabled
	SkipInstall     bool
	SharedAndStatic bool
}

// BazelOptions customizes a Bazel build.
type BazelOptions struct {
	Targets     []string
	SkipClean   bool
	QuietOutput bool
}

// BuildWithMake runs make and make install in the current build directory.
func (b *Builder) BuildWithMake(dep *Dependency, opts MakeOptions) error {
	makeCmd := []string{"make", fmt.Sprintf("-j%d", b.makeParallelism())}
	makeCmd = append(makeCmd, opts.ExtraArgs...)

	var prefixArgs []string
	if opts.SpecifyPrefix {
		prefixVar := opts.PrefixVar
		if prefixVar == "" {
			prefixVar = "PREFIX"
		}
		prefixArgs = []string{fmt.Sprintf("%s=%s", prefixVar, b.prefix)}
	}

	args := append(append([]string{}, makeCmd...), prefixArgs...)
	if err := b.Exec.RunInDir(b.curBuildDir, nil, args[0], args[1:]...); err != nil {
		return err
	}

	installTargets := opts.InstallTargets
	if installTargets == nil {
		installTargets = []string{"install"}
	}
	if len(installTargets) > 0 {
		installArgs := append(append([]string{"make"}, installTargets...), prefixArgs...)
		if err := b.Exec.RunInDir(b.curBuildDir, nil, installArgs[0], installArgs[1:]...); err != nil {
			return err
		}
	}
	return nil
}

// BuildWithConfigure runs an autotools-style configure followed by make.
// When configure fails, every config.log under the build directory is dumped
// so the failure can be diagnosed from CI output alone.
func (b *Builder) BuildWithConfigure(dep *Dependency, opts ConfigureOptions) error {
	buildDir := b.curBuildDir
	if opts.SrcSubdir != "" {
		buildDir = filepath.Join(buildDir, opts.SrcSubdir)
	}
	logf("Building in %s using the configure tool", buildDir)

	configureScope := PushEnv(map[string]string{configuringEnvVar: "1"})
	configureErr := func() error {
		defer configureScope.Restore()
		if opts.RunAutogen {
			if err := b.Exec.RunInDir(buildDir, nil, "./autogen.sh"); err != nil {
				return err
			}
		}
		if opts.RunAutoreconf {
			if err := b.Exec.RunInDir(buildDir, nil, "autoreconf", "-i"); err != nil {
				return err
			}
		}
		configureCmd := opts.ConfigureCmd
		if len(configureCmd) == 0 {
			configureCmd = []string{"./configure"}
		}
		args := append(append([]string{}, configureCmd...), "--prefix="+b.prefix)
		args = append(args, opts.ExtraArgs...)
		return b.Exec.RunInDir(buildDir, nil, args[0], args[1:]...)
	}()
	if configureErr != nil {
		b.dumpConfigLogs(buildDir)
		return fmt.Errorf("configure step failed: %w", configureErr)
	}

	if opts.PostConfigure != nil {
		if err := opts.PostConfigure(b); err != nil {
			return err
		}
	}

	savedBuildDir := b.curBuildDir
	b.curBuildDir = buildDir
	defer func() { b.curBuildDir = savedBuildDir }()
	return b.BuildWithMake(dep, MakeOptions{
		ExtraArgs:      opts.ExtraMakeArgs,
		InstallTargets: opts.InstallTargets,
	})
}

// dumpConfigLogs prints every config.log under dir.
func (b *Builder) dumpConfigLogs(dir string) {
	warnf("The configure step failed. Looking for config.log files under %s", dir)
	shown := 0
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || info.Name() != "config.log" {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		fmt.Printf("Contents of %s:\n\n%s\n\n(End of %s)\n\n", path, data, path)
		shown++
		return nil
	})
	warnf("Dumped %d config.log file(s) from %s", shown, dir)
}

// commonCMakeArgs are the flag arguments shared by every CMake invocation:
// the composed flags, compile-command export, the install prefix, and PIC.
func (b *Builder) commonCMakeArgs(dep *Dependency) []string {
	preprocessorFlags := b.effectivePreprocessorFlags(dep)
	cFlags := strings.Join(append(append([]string{}, preprocessorFlags...), b.effectiveCFlags(dep)...), " ")
	cxxFlags := strings.Join(append(append([]string{}, preprocessorFlags...), b.effectiveCXXFlags(dep)...), " ")
	ldFlags := strings.Join(b.effectiveLDFlags(dep), " ")
	exeLDFlags := strings.Join(b.effectiveExecutableLDFlags(dep), " ")
	return []string{
		"-DCMAKE_C_FLAGS=" + cFlags,
		"-DCMAKE_CXX_FLAGS=" + cxxFlags,
		"-DCMAKE_SHARED_LINKER_FLAGS=" + ldFlags,
		"-DCMAKE_EXE_LINKER_FLAGS=" + exeLDFlags,
		"-DCMAKE_EXPORT_COMPILE_COMMANDS=ON",
		"-DCMAKE_INSTALL_PREFIX=" + b.prefix,
		"-DCMAKE_POSITION_INDEPENDENT_CODE=ON",
	}
}

// BuildWithCMake configures and builds with CMake, preferring Ninja when
// available. Sanitized passes have their compile_commands.json validated to
// prove the sanitizer flags reached every compile.
func (b *Builder) BuildWithCMake(dep *Dependency, opts CMakeOptions) error {
	buildTool := "make"
	if !opts.DisableNinja {
		if _, err := exec.LookPath("ninja"); err == nil {
			buildTool = "ninja"
		}
	}
	logf("Building %s with CMake, build tool: %s", dep.Name, buildTool)

	srcPath := b.Layout.SourcePath(dep)
	if dep.CopySources {
		srcPath = b.curBuildDir
	}
	if opts.SrcSubdir != "" {
		srcPath = filepath.Join(srcPath, opts.SrcSubdir)
	}

	args := []string{"cmake", srcPath}
	if buildTool == "ninja" {
		args = append(args, "-G", "Ninja")
	}
	args = append(args, b.commonCMakeArgs(dep)...)
	args = append(args, opts.ExtraArgs...)
	if dep.AdditionalCMakeArgs != nil {
		args = append(args, dep.AdditionalCMakeArgs(b)...)
	}

	hasSharedLibsArg := false
	for _, a := range args {
		if strings.HasPrefix(a, "-DBUILD_SHARED_LIBS=") {
			hasSharedLibsArg = true
		}
	}
	if opts.SharedAndStatic && hasSharedLibsArg {
		return fmt.Errorf("%s: shared+static build but CMake args already set BUILD_SHARED_LIBS", dep.Name)
	}
	if !hasSharedLibsArg && !opts.SharedAndStatic {
		args = append(args, "-DBUILD_SHARED_LIBS=ON")
	}

	if opts.SharedAndStatic {
		for _, variant := range []struct{ value, subdir string }{
			{"ON", "shared"},
			{"OFF", "static"},
		} {
			variantDir := filepath.Join(b.curBuildDir, variant.subdir)
			if err := mkdirIfMissing(variantDir); err != nil {
				return err
			}
			logf("Building %s (%s) with -DBUILD_SHARED_LIBS=%s", dep.Name, b.buildType, variant.value)
			variantArgs := append(append([]string{}, args...), "-DBUILD_SHARED_LIBS="+variant.value)
			if err := b.runCMakeIn(variantDir, variantArgs, buildTool, opts); err != nil {
				return err
			}
		}
		return nil
	}
	return b.runCMakeIn(b.curBuildDir, args, buildTool, opts)
}

func (b *Builder) runCMakeIn(dir string, cmakeArgs []string, buildTool string, opts CMakeOptions) error {
	// The cached configuration may be from a different compiler or flag
	// set; always configure from scratch.
	os.Remove(filepath.Join(dir, "CMakeCache.txt"))
	os.RemoveAll(filepath.Join(dir, "CMakeFiles"))

	buildCmd := []string{buildTool, fmt.Sprintf("-j%d", b.makeParallelism())}
	buildCmd = append(buildCmd, opts.ExtraBuildArgs...)

	if err := b.writeInvocationScript(dir, "build_with_cmake.sh", [][]string{cmakeArgs, buildCmd}); err != nil {
		return err
	}

	configureScope := PushEnv(map[string]string{configuringEnvVar: "1"})
	err := b.Exec.RunInDir(dir, nil, cmakeArgs[0], cmakeArgs[1:]...)
	configureScope.Restore()
	if err != nil {
		return err
	}

	if err := b.Exec.RunInDir(dir, nil, buildCmd[0], buildCmd[1:]...); err != nil {
		return err
	}
	if !opts.SkipInstall {
		if err := b.Exec.RunInDir(dir, nil, buildTool, "install"); err != nil {
			return err
		}
	}
	return b.validateCompileCommandFlags(filepath.Join(dir, "compile_commands.json"))
}

// validateCompileCommandFlags checks that sanitizer flags made it into every
// compile command of a sanitized pass.
func (b *Builder) validateCompileCommandFlags(path string) error {
	if !b.buildType.IsSanitizer() {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot validate sanitizer flags: %w", err)
	}
	var entries []struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("cannot parse %s: %w", path, err)
	}

	var required []string
	switch b.buildType {
	case BuildTypeASAN:
		required = []string{"-fsanitize=address", "-fsanitize=undefined"}
	case BuildTypeTSAN:
		required = []string{"-fsanitize=thread"}
	}
	for _, e := range entries {
		fields := strings.Fields(e.Command)
		for _, flag := range required {
			found := false
			for _, f := range fields {
				if f == flag {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("compile command missing %s in %s: %s", flag, path, e.Command)
			}
		}
	}
	return nil
}

// BuildWithBazel runs Bazel with the composed flags translated into Bazel's
// colon-separated action environment.
func (b *Builder) BuildWithBazel(dep *Dependency, opts BazelOptions) error {
	if !opts.SkipClean {
		if err := b.Exec.RunInDir(b.curBuildDir, nil, "bazel", "clean", "--expunge"); err != nil {
			return err
		}
	}

	// "isystem <dir>" must become one colon-separated token.
	bazelCXXOpts := strings.ReplaceAll(os.Getenv("CXXFLAGS"), "isystem ", "isystem")
	bazelCXXOpts = strings.ReplaceAll(bazelCXXOpts, " ", ":")
	bazelLinkOpts := strings.ReplaceAll(os.Getenv("LDFLAGS"), " ", ":")

	buildCmd := []string{"bazel", "build", "--curses=no"}
	if !opts.QuietOutput {
		buildCmd = append(buildCmd, "--subcommands")
	}
	buildCmd = append(buildCmd,
		"--action_env", "BAZEL_CXXOPTS="+bazelCXXOpts,
		"--action_env", "BAZEL_LINKOPTS="+bazelLinkOpts)

	for _, envVar := range []string{
		"CC", "CXX", "PATH",
		realCCEnvVar, realCXXEnvVar,
		compileCommandsTmpDirEnvVar,
	} {
		val, ok := os.LookupEnv(envVar)
		if !ok {
			debugf("Environment variable %s not set, not passing it to Bazel\n", envVar)
			continue
		}
		buildCmd = append(buildCmd, "--action_env", envVar+"="+val)
	}
	buildCmd = append(buildCmd, "--verbose_failures")

	var scriptCmds [][]string
	for _, target := range opts.Targets {
		scriptCmds = append(scriptCmds, append(append([]string{}, buildCmd...), target))
	}
	if err := b.writeInvocationScript(b.curBuildDir, "build_with_bazel.sh", scriptCmds); err != nil {
		return err
	}

	for _, target := range opts.Targets {
		args := append(append([]string{}, buildCmd...), target)
		if err := b.Exec.RunInDir(b.curBuildDir, nil, args[0], args[1:]...); err != nil {
			return err
		}
	}
	return nil
}

// InstallBazelOutput copies one Bazel build product into the install prefix,
// fixing the write-protected permissions Bazel leaves on outputs.
func (b *Builder) InstallBazelOutput(dep *Dependency, srcFolder, srcFile, destFile string, shared bool) error {
	srcPath := filepath.Join(b.curBuildDir, "bazel-bin", srcFolder, srcFile)
	destPath := filepath.Join(b.PrefixLib(), destFile)

	mode := "644"
	if shared {
		mode = "755"
	}
	if err := b.Exec.RunInDir(b.curBuildDir, nil, "chmod", mode, srcPath); err != nil {
		return err
	}
	return b.Exec.RunInDir(b.curBuildDir, nil, "cp", srcPath, destPath)
}

// writeInvocationScript records the exact commands of a build in an
// executable script sourcing the saved environment, so the build can be
// replayed by hand.
func (b *Builder) writeInvocationScript(dir, name string, commands [][]string) error {
	var sb strings.Builder
	sb.WriteString("#!/usr/bin/env bash\n")
	sb.WriteString("set -euxo pipefail\n")
	sb.WriteString("cd \"$( dirname \"$0\" )\"\n")
	fmt.Fprintf(&sb, ". \"./%s\"\n", envScriptName)
	for _, cmd := range commands {
		quoted := make([]string, len(cmd))
		for i, a := range cmd {
			quoted[i] = shellQuote(a)
		}
		sb.WriteString(strings.Join(quoted, " ") + "\n")
	}
	return os.WriteFile(filepath.Join(dir, name), []byte(sb.String()), 0o755)
}
