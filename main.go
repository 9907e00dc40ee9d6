package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"tpbuild/internal/tpbuild"
	"tpbuild/internal/tpbuild/deps"
)

type cmdOptions struct {
	root string

	buildType      string
	skip           []string
	skipSanitizers bool

	clean          bool
	cleanDownloads bool

	compilerFamily string
	compilerPrefix string
	compilerSuffix string
	devtoolset     int
	toolchain      string

	useCcache          bool
	useCompilerWrapper bool

	makeParallelism     int
	force               bool
	deleteBuildDir      bool
	lto                 string
	downloadExtractOnly bool
	checkLibsOnly       bool
	createPackage       bool
	addChecksum         bool
	compileCommands     bool
	perBuildDirs        bool
	devRepos            []string
	verbose             bool
}

func main() {
	// The compiler wrappers are symlinks back to this binary; dispatch on
	// argv[0] before cobra sees the compiler's arguments.
	if realEnvVar := tpbuild.WrapperModeFromArgv0(os.Args[0]); realEnvVar != "" {
		if err := tpbuild.RunCompilerWrapper(realEnvVar, os.Args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	opts := &cmdOptions{}

	rootCmd := &cobra.Command{
		Use:          "tpbuild [dependencies...]",
		Short:        "Build third-party native dependencies across instrumented and uninstrumented configurations",
		Version:      tpbuild.Version,
		SilenceUsage: true,
		Args:         cobra.ArbitraryArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return validateOptions(opts, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args)
		},
	}

	f := rootCmd.Flags()
	f.StringVar(&opts.root, "root", "", "third-party root directory (default: current directory)")
	f.StringVar(&opts.buildType, "build-type", "", "build only one build type ("+strings.Join(tpbuild.BuildTypeNames(), ", ")+")")
	f.StringSliceVar(&opts.skip, "skip", nil, "dependencies to skip")
	f.BoolVar(&opts.skipSanitizers, "skip-sanitizers", false, "do not build ASAN and TSAN instrumented dependencies")
	f.BoolVar(&opts.clean, "clean", false, "remove build artifacts of the selected dependencies before building")
	f.BoolVar(&opts.cleanDownloads, "clean-downloads", false, "also remove downloaded archives when cleaning")
	f.StringVar(&opts.compilerFamily, "compiler-family", "auto", "compiler family to use (gcc, clang, auto)")
	f.StringVar(&opts.compilerPrefix, "compiler-prefix", "", "directory whose bin subdirectory holds the compilers")
	f.StringVar(&opts.compilerSuffix, "compiler-suffix", "", "suffix appended to compiler executable names, e.g. -11")
	f.IntVar(&opts.devtoolset, "devtoolset", 0, "Red Hat devtoolset number to build with")
	f.StringVar(&opts.toolchain, "toolchain", "", "download and use a prebuilt toolchain, e.g. llvm17")
	f.BoolVar(&opts.useCcache, "use-ccache", false, "use ccache to speed up compilation")
	f.BoolVar(&opts.useCompilerWrapper, "use-compiler-wrapper", false, "route compilation through the compiler wrapper")
	f.IntVarP(&opts.makeParallelism, "make-parallelism", "j", 0, "parallelism for make/ninja (also YB_MAKE_PARALLELISM)")
	f.BoolVar(&opts.force, "force", false, "rebuild even when build stamps are up to date")
	f.BoolVar(&opts.deleteBuildDir, "delete-build-dir", false, "delete each build directory after a successful build")
	f.StringVar(&opts.lto, "lto", "", "link-time optimization type (thin, full)")
	f.BoolVar(&opts.downloadExtractOnly, "download-extract-only", false, "download and extract sources, do not build")
	f.BoolVar(&opts.checkLibsOnly, "check-libs-only", false, "only scan installed binaries for bad library dependencies")
	f.BoolVar(&opts.createPackage, "create-package", false, "archive the build products after building")
	f.BoolVar(&opts.addChecksum, "add-checksum", false, "record checksums for archives missing from the manifest")
	f.BoolVar(&opts.compileCommands, "compile-commands", false, "aggregate compilation commands for IDE indexing")
	f.BoolVar(&opts.perBuildDirs, "per-build-dirs", false, "separate build/install trees per compiler configuration")
	f.StringSliceVar(&opts.devRepos, "dev-repo", nil, "use a local checkout for a dependency, as name=path")
	f.BoolVar(&opts.verbose, "verbose", false, "verbose output")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func validateOptions(opts *cmdOptions, args []string) error {
	if len(args) > 0 && len(opts.skip) > 0 {
		return fmt.Errorf("--skip is not compatible with naming dependencies to build")
	}
	if opts.toolchain != "" && (opts.devtoolset > 0 || opts.compilerPrefix != "") {
		return fmt.Errorf("--toolchain cannot be combined with --devtoolset or --compiler-prefix")
	}
	if opts.devtoolset > 0 && opts.compilerFamily == "clang" {
		return fmt.Errorf("--devtoolset implies gcc, not compiler family %q", opts.compilerFamily)
	}
	if opts.buildType != "" {
		if _, err := tpbuild.ParseBuildType(opts.buildType); err != nil {
			return err
		}
	}
	if opts.lto != "" && opts.lto != "thin" && opts.lto != "full" {
		return fmt.Errorf("invalid --lto type %q, expected thin or full", opts.lto)
	}
	for _, spec := range opts.devRepos {
		if !strings.Contains(spec, "=") {
			return fmt.Errorf("invalid --dev-repo %q, expected name=path", spec)
		}
	}
	return nil
}

func run(ctx context.Context, opts *cmdOptions, args []string) error {
	tpbuild.Verbose = opts.verbose

	root := opts.root
	if root == "" {
		var err error
		if root, err = os.Getwd(); err != nil {
			return err
		}
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	settings, err := tpbuild.LoadSettings(root)
	if err != nil {
		return err
	}

	selected, err := deps.Select(args, opts.skip)
	if err != nil {
		return err
	}

	layout := tpbuild.NewLayout(root)
	layout.PerBuildDirs = opts.perBuildDirs
	for _, spec := range opts.devRepos {
		name, path, _ := strings.Cut(spec, "=")
		layout.DevRepos[name] = path
	}

	checksums, err := loadOrCreateChecksums(root)
	if err != nil {
		return err
	}

	executor := tpbuild.NewExecutor(ctx)

	dm := &tpbuild.DownloadManager{
		Layout:       layout,
		Checksums:    checksums,
		Exec:         executor,
		MirrorPrefix: settings.MirrorPrefix,
		AddChecksums: opts.addChecksum,
	}
	if err := dm.ConfigureS3Mirror(settings); err != nil {
		return err
	}

	linuxbrewDir, err := tpbuild.LinuxbrewDirFromEnv()
	if err != nil {
		return err
	}

	compilers := &tpbuild.CompilerChoice{
		Family:             opts.compilerFamily,
		Prefix:             opts.compilerPrefix,
		Suffix:             opts.compilerSuffix,
		Devtoolset:         opts.devtoolset,
		UseCompilerWrapper: opts.useCompilerWrapper,
		UseCcache:          opts.useCcache,
		LinuxbrewDir:       linuxbrewDir,
	}

	var toolchain *tpbuild.Toolchain
	if opts.toolchain != "" {
		if toolchain, err = tpbuild.EnsureToolchain(opts.toolchain, dm); err != nil {
			return err
		}
		compilers.Family = toolchain.Family
		compilers.Prefix = toolchain.Dir
		compilers.ExpectedMajorVersion = toolchain.Major
	}
	if err := compilers.Resolve(); err != nil {
		return err
	}
	if opts.perBuildDirs {
		layout.ConfigSignature = compilers.ConfigSignature(opts.lto)
	}

	// The standalone scan still needs the resolved compiler: which system
	// libraries are acceptable depends on what built the tree.
	if opts.checkLibsOnly {
		return tpbuild.NewConfiguredLibChecker(layout, compilers, settings.ExtraAllowedLibPaths).Run()
	}

	if opts.clean || opts.cleanDownloads {
		for _, dep := range selected {
			if err := layout.CleanDependency(dep, tpbuild.BuildTypes(), opts.cleanDownloads); err != nil {
				return err
			}
		}
	}

	if opts.downloadExtractOnly {
		return tpbuild.PrefetchDependencies(ctx, dm, selected)
	}

	makeParallelism := opts.makeParallelism
	if makeParallelism == 0 {
		if env := os.Getenv("YB_MAKE_PARALLELISM"); env != "" {
			if makeParallelism, err = strconv.Atoi(env); err != nil {
				return fmt.Errorf("invalid YB_MAKE_PARALLELISM: %w", err)
			}
		}
	}
	if makeParallelism == 0 {
		makeParallelism = settings.MakeParallelism
	}

	builder := tpbuild.NewBuilder(layout, compilers, dm, executor, settings)
	builder.Force = opts.force
	builder.DeleteBuildDirAfter = opts.deleteBuildDir
	builder.SkipSanitizers = opts.skipSanitizers
	builder.CompileCommands = opts.compileCommands
	builder.VerboseOutput = opts.verbose
	builder.LTOType = opts.lto
	builder.MakeParallelism = makeParallelism
	builder.Toolchain = toolchain
	if opts.buildType != "" {
		t, _ := tpbuild.ParseBuildType(opts.buildType)
		builder.ExplicitBuildType = &t
	}

	if err := builder.Run(selected); err != nil {
		return err
	}

	checker := tpbuild.NewConfiguredLibChecker(layout, compilers,
		append(settings.ExtraAllowedLibPaths, builder.AllowedLibPaths()...))
	if err := checker.Run(); err != nil {
		return err
	}

	if opts.createPackage {
		if _, err := tpbuild.CreatePackage(layout, layout.ConfigSignature); err != nil {
			return err
		}
	}
	return nil
}

// loadOrCreateChecksums opens the checksum manifest, creating an empty one on
// first use so --add-checksum has a file to append to.
func loadOrCreateChecksums(root string) (*tpbuild.ChecksumStore, error) {
	path := filepath.Join(root, tpbuild.ChecksumFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return nil, err
		}
	}
	return tpbuild.LoadChecksums(path)
}
