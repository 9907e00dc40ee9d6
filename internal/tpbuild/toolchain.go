package tpbuild

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

// Toolchain is a downloaded compiler installation selected with --toolchain.
type Toolchain struct {
	Kind   string // e.g. "llvm15"
	Dir    string
	Family string
	Major  int
}

var toolchainKindRE = regexp.MustCompile(`^llvm(\d+)$`)

// llvmReleaseVersions maps an LLVM major version to the exact release
// downloaded for it.
var llvmReleaseVersions = map[int]string{
	11: "11.1.0",
	12: "12.0.1",
	13: "13.0.1",
	14: "14.0.6",
	15: "15.0.7",
	16: "16.0.6",
	17: "17.0.6",
}

// llvmArchiveURL builds the release URL for the host platform.
func llvmArchiveURL(fullVersion string) (string, error) {
	if runtime.GOOS != "linux" {
		return "", fmt.Errorf("toolchain downloads are only supported on Linux")
	}
	var platform string
	switch runtime.GOARCH {
	case "amd64":
		platform = "x86_64-linux-gnu-ubuntu-18.04"
	case "arm64":
		platform = "aarch64-linux-gnu"
	default:
		return "", fmt.Errorf("no toolchain archive for architecture %s", runtime.GOARCH)
	}
	return fmt.Sprintf(
		"https://github.com/llvm/llvm-project/releases/download/llvmorg-%s/clang+llvm-%s-%s.tar.xz",
		fullVersion, fullVersion, platform), nil
}

// EnsureToolchain downloads and unpacks the requested toolchain if it is not
// already present, and records its URL and local path at the root.
func EnsureToolchain(kind string, dm *DownloadManager) (*Toolchain, error) {
	m := toolchainKindRE.FindStringSubmatch(kind)
	if m == nil {
		return nil, fmt.Errorf("unknown toolchain %q, expected llvm<major>", kind)
	}
	major, _ := strconv.Atoi(m[1])
	fullVersion, ok := llvmReleaseVersions[major]
	if !ok {
		return nil, fmt.Errorf("no known release for llvm major version %d", major)
	}
	url, err := llvmArchiveURL(fullVersion)
	if err != nil {
		return nil, err
	}

	logf("Ensuring toolchain %s is installed", kind)
	dir, err := dm.DownloadToolchain(url, dm.Layout.ToolsDir())
	if err != nil {
		return nil, err
	}

	// Record the active toolchain so wrapper scripts and later invocations
	// can find it without re-parsing flags.
	root := dm.Layout.Root
	if err := os.WriteFile(filepath.Join(root, "toolchain_url.txt"), []byte(url+"\n"), 0o644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(root, "toolchain_path.txt"), []byte(dir+"\n"), 0o644); err != nil {
		return nil, err
	}

	return &Toolchain{Kind: kind, Dir: dir, Family: FamilyClang, Major: major}, nil
}

// LinuxbrewDirFromEnv returns the Linuxbrew root from YB_LINUXBREW_DIR,
// validating that it exists.
func LinuxbrewDirFromEnv() (string, error) {
	dir := os.Getenv("YB_LINUXBREW_DIR")
	if dir == "" {
		return "", nil
	}
	dir = strings.TrimRight(dir, "/")
	if !dirExists(dir) {
		return "", fmt.Errorf("YB_LINUXBREW_DIR points to a non-existent directory: %s", dir)
	}
	return dir, nil
}
