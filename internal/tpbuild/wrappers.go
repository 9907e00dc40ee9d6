package tpbuild

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// The compiler wrappers are symlinks back to the tpbuild binary itself; the
// CLI dispatches on argv[0] before any flag parsing. Each wrapper reads the
// real compiler path from its environment variable, optionally records a
// compile-command fragment, and execs the real compiler in place.
const (
	ccWrapperName  = "cc-wrapper"
	cxxWrapperName = "cxx-wrapper"

	realCCEnvVar  = "TPBUILD_REAL_CC"
	realCXXEnvVar = "TPBUILD_REAL_CXX"
)

// WrapperDir is where the wrapper links live under the root.
func WrapperDir(root string) string {
	return filepath.Join(root, "wrappers")
}

// WriteCompilerWrappers (re)creates the wrapper directory with cc-wrapper and
// cxx-wrapper links pointing back at this executable.
func WriteCompilerWrappers(root string) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("cannot locate own executable for compiler wrappers: %w", err)
	}
	dir := WrapperDir(root)
	if err := removeAndRecreate(dir); err != nil {
		return err
	}
	for _, name := range []string{ccWrapperName, cxxWrapperName} {
		if err := os.Symlink(self, filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// WrapperModeFromArgv0 returns the environment variable holding the real
// compiler path when argv0 is one of the wrapper links, or "" for a normal
// invocation.
func WrapperModeFromArgv0(argv0 string) string {
	switch filepath.Base(argv0) {
	case ccWrapperName:
		return realCCEnvVar
	case cxxWrapperName:
		return realCXXEnvVar
	}
	return ""
}

// RunCompilerWrapper is the wrapper entry point: record a compile-command
// fragment when requested, then replace this process with the real compiler.
func RunCompilerWrapper(realEnvVar string, args []string) error {
	realCompiler := os.Getenv(realEnvVar)
	if realCompiler == "" {
		return fmt.Errorf("compiler wrapper invoked but %s is not set", realEnvVar)
	}
	if err := maybeWriteCompileCommandFragment(realCompiler, args); err != nil {
		// Recording is best effort; the compilation itself must proceed.
		warnf("Could not record compile command: %v", err)
	}
	return unix.Exec(realCompiler, append([]string{realCompiler}, args...), os.Environ())
}

var compilableSourceExtensions = map[string]bool{
	".c": true, ".cc": true, ".cpp": true, ".cxx": true,
}

// maybeWriteCompileCommandFragment records one compile command into the
// fragment directory. Nothing is recorded outside compile-commands runs,
// while configure-style probes run, or for link-only invocations.
func maybeWriteCompileCommandFragment(realCompiler string, args []string) error {
	tmpDir := os.Getenv(compileCommandsTmpDirEnvVar)
	if tmpDir == "" || os.Getenv(configuringEnvVar) != "" {
		return nil
	}

	compiling := false
	sourceFile := ""
	for _, arg := range args {
		if arg == "-c" {
			compiling = true
			continue
		}
		if !strings.HasPrefix(arg, "-") && compilableSourceExtensions[filepath.Ext(arg)] {
			sourceFile = arg
		}
	}
	if !compiling || sourceFile == "" {
		return nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	data, err := json.Marshal(compileCommand{
		Directory: dir,
		File:      sourceFile,
		Arguments: append([]string{realCompiler}, args...),
	})
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(tmpDir, "*"+compileCommandFileSuffix)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
