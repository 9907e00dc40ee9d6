package tpbuild

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// lowestSupportedGCCVersion is the oldest GCC able to build the full set of
// dependencies.
const lowestSupportedGCCVersion = "7.0.0"

// CompilerChoice resolves which C and C++ compilers to use, identifies them,
// and validates that the pair is usable. All inputs are explicit; nothing is
// read from package-level state.
type CompilerChoice struct {
	// Family is the requested compiler family: "gcc", "clang" or "auto".
	Family string

	// Prefix is an installation root; compilers are looked up under
	// <Prefix>/bin. Empty means search PATH.
	Prefix string

	// Suffix is appended to the executable names (e.g. "-11" for gcc-11).
	Suffix string

	// Devtoolset selects a Red Hat devtoolset; compilers must then resolve
	// under /opt/rh/devtoolset-<N>/.
	Devtoolset int

	// ExpectedMajorVersion, when non-zero, must match the identified
	// compiler's major version.
	ExpectedMajorVersion int

	UseCompilerWrapper bool
	UseCcache          bool

	// LinuxbrewDir is the Linuxbrew root when building against a Linuxbrew
	// toolchain, empty otherwise.
	LinuxbrewDir string

	ccPath      string
	cxxPath     string
	ccIdentity  *CompilerIdentity
	cxxIdentity *CompilerIdentity
}

// compilerNames returns the C and C++ executable base names for the family.
func compilerNames(family string) (cc, cxx string) {
	if family == FamilyClang {
		return "clang", "clang++"
	}
	return "gcc", "g++"
}

// EffectiveFamily is the family actually in use after auto-detection rules:
// macOS always builds with clang, a devtoolset always means gcc.
func (c *CompilerChoice) EffectiveFamily() string {
	if runtime.GOOS == "darwin" {
		return FamilyClang
	}
	if c.Devtoolset > 0 {
		return FamilyGCC
	}
	if c.Family == "" || c.Family == "auto" {
		return FamilyClang
	}
	return c.Family
}

// findCompiler resolves one compiler executable honoring prefix and suffix.
func (c *CompilerChoice) findCompiler(baseName string) (string, error) {
	name := baseName + c.Suffix
	if c.Prefix != "" {
		candidate := filepath.Join(c.Prefix, "bin", name)
		if pathExists(candidate) {
			return candidate, nil
		}
		return "", fmt.Errorf("compiler %s not found under %s", name, filepath.Join(c.Prefix, "bin"))
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("compiler %s not found on PATH: %w", name, err)
	}
	return path, nil
}

// Resolve locates both compilers and identifies them, validating the pair.
func (c *CompilerChoice) Resolve() error {
	ccName, cxxName := compilerNames(c.EffectiveFamily())

	var err error
	if c.ccPath, err = c.findCompiler(ccName); err != nil {
		return err
	}
	if c.cxxPath, err = c.findCompiler(cxxName); err != nil {
		return err
	}

	if c.Devtoolset > 0 {
		expectedRoot := fmt.Sprintf("/opt/rh/devtoolset-%d/", c.Devtoolset)
		for _, p := range []string{c.ccPath, c.cxxPath} {
			if !strings.HasPrefix(p, expectedRoot) {
				return fmt.Errorf("devtoolset-%d requested but compiler %s is not under %s",
					c.Devtoolset, p, expectedRoot)
			}
		}
	}

	if c.ccIdentity, err = IdentifyCompiler(c.ccPath); err != nil {
		return fmt.Errorf("identifying %s: %w", c.ccPath, err)
	}
	if c.cxxIdentity, err = IdentifyCompiler(c.cxxPath); err != nil {
		return fmt.Errorf("identifying %s: %w", c.cxxPath, err)
	}
	return c.validate()
}

func (c *CompilerChoice) validate() error {
	if !c.ccIdentity.CompatibleWith(c.cxxIdentity) {
		return fmt.Errorf("C and C++ compilers do not match: %s (%s) vs %s (%s)",
			c.ccPath, c.ccIdentity, c.cxxPath, c.cxxIdentity)
	}
	family := c.EffectiveFamily()
	if c.ccIdentity.Family != family {
		return fmt.Errorf("requested a %s compiler but %s identifies as %s",
			family, c.ccPath, c.ccIdentity)
	}
	if family == FamilyGCC && compareVersions(c.ccIdentity.Version, lowestSupportedGCCVersion) < 0 {
		return fmt.Errorf("gcc %s is too old, need at least %s",
			c.ccIdentity.Version, lowestSupportedGCCVersion)
	}
	if c.ExpectedMajorVersion != 0 && c.ccIdentity.MajorVersion() != c.ExpectedMajorVersion {
		return fmt.Errorf("expected %s major version %d, found %s at %s",
			family, c.ExpectedMajorVersion, c.ccIdentity.Version, c.ccPath)
	}
	return nil
}

// CC returns the resolved C compiler path.
func (c *CompilerChoice) CC() string { return c.ccPath }

// CXX returns the resolved C++ compiler path.
func (c *CompilerChoice) CXX() string { return c.cxxPath }

// Identity returns the identified compiler (C and C++ are validated equal).
func (c *CompilerChoice) Identity() *CompilerIdentity { return c.ccIdentity }

// IsClang reports whether the effective family is clang.
func (c *CompilerChoice) IsClang() bool { return c.EffectiveFamily() == FamilyClang }

// IsGCC reports whether the effective family is gcc.
func (c *CompilerChoice) IsGCC() bool { return c.EffectiveFamily() == FamilyGCC }

// UsingLinuxbrew reports whether a Linuxbrew toolchain backs the build.
func (c *CompilerChoice) UsingLinuxbrew() bool { return c.LinuxbrewDir != "" }

// ConfigSignature tags directories for this compiler configuration, e.g.
// "clang15-x86_64" or "gcc11-linuxbrew-x86_64".
func (c *CompilerChoice) ConfigSignature(lto string) string {
	parts := []string{fmt.Sprintf("%s%d", c.Identity().Family, c.Identity().MajorVersion())}
	if c.UsingLinuxbrew() {
		parts = append(parts, "linuxbrew")
	}
	if lto != "" {
		parts = append(parts, lto+"-lto")
	}
	parts = append(parts, arch)
	return strings.Join(parts, "-")
}

// CompilerEnv returns the CC/CXX assignments for a build, routing through
// ccache or the compiler wrapper when enabled. wrapperDir holds the wrapper
// executables; realCC/realCXX may differ from the primary pair during the
// clang-forced uninstrumented pass. forceWrapper routes through the wrapper
// even when it is not globally enabled.
func (c *CompilerChoice) CompilerEnv(wrapperDir, realCC, realCXX string, forceWrapper bool) map[string]string {
	env := map[string]string{}
	cc, cxx := realCC, realCXX
	if cc == "" {
		cc = c.ccPath
	}
	if cxx == "" {
		cxx = c.cxxPath
	}
	switch {
	case c.UseCompilerWrapper || forceWrapper:
		env["CC"] = filepath.Join(wrapperDir, ccWrapperName)
		env["CXX"] = filepath.Join(wrapperDir, cxxWrapperName)
		env[realCCEnvVar] = cc
		env[realCXXEnvVar] = cxx
	case c.UseCcache:
		env["CC"] = "ccache " + cc
		env["CXX"] = "ccache " + cxx
	default:
		env["CC"] = cc
		env["CXX"] = cxx
	}
	return env
}
