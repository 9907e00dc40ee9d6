package tpbuild

import (
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnidentifiableCompiler reports that a compiler's -v output matched no
// known banner.
var ErrUnidentifiableCompiler = errors.New("could not identify compiler")

// Compiler families.
const (
	FamilyGCC   = "gcc"
	FamilyClang = "clang"
)

var (
	clangVersionRE = regexp.MustCompile(`\bclang version (\d+(?:\.\d+)+)`)
	gccVersionRE   = regexp.MustCompile(`\bgcc version (\d+(?:\.\d+)+)`)
	// Homebrew-style banner: "gcc-8 (Homebrew GCC 8.4.0) 8.4.0"
	gccSuffixedRE = regexp.MustCompile(`(?m)^gcc-\d+ \([^)]*\) (\d+(?:\.\d+)+)`)
)

// CompilerIdentity is the family and exact version of one compiler binary.
type CompilerIdentity struct {
	Family  string
	Version string
}

func (id *CompilerIdentity) String() string {
	return fmt.Sprintf("%s %s", id.Family, id.Version)
}

// MajorVersion is the leading component of the version.
func (id *CompilerIdentity) MajorVersion() int {
	head, _, _ := strings.Cut(id.Version, ".")
	n, _ := strconv.Atoi(head)
	return n
}

// CompatibleWith reports whether two identities may be used as a C/C++ pair:
// same family, identical version string.
func (id *CompilerIdentity) CompatibleWith(other *CompilerIdentity) bool {
	return id.Family == other.Family && id.Version == other.Version
}

// ParseCompilerBanner identifies a compiler from its -v output.
func ParseCompilerBanner(output string) (*CompilerIdentity, error) {
	if m := clangVersionRE.FindStringSubmatch(output); m != nil {
		return &CompilerIdentity{Family: FamilyClang, Version: m[1]}, nil
	}
	if m := gccVersionRE.FindStringSubmatch(output); m != nil {
		return &CompilerIdentity{Family: FamilyGCC, Version: m[1]}, nil
	}
	if m := gccSuffixedRE.FindStringSubmatch(output); m != nil {
		return &CompilerIdentity{Family: FamilyGCC, Version: m[1]}, nil
	}
	return nil, fmt.Errorf("%w from output:\n%s", ErrUnidentifiableCompiler, strings.TrimSpace(output))
}

// IdentifyCompiler runs compilerPath -v and parses the banner. Both output
// streams are considered; gcc and clang print the banner to stderr.
func IdentifyCompiler(compilerPath string) (*CompilerIdentity, error) {
	cmd := exec.Command(compilerPath, "-v")
	out, err := cmd.CombinedOutput()
	if err != nil && len(out) == 0 {
		return nil, fmt.Errorf("failed to run %s -v: %w", compilerPath, err)
	}
	return ParseCompilerBanner(string(out))
}

// compareVersions compares dotted numeric versions, returning -1, 0 or 1.
// Missing components count as zero.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		var av, bv int
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}
