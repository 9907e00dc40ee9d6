package tpbuild

import (
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
)

// File kinds the scan never inspects: static libraries, headers, build
// system metadata.
var ignoredLibCheckExtensions = []string{
	".a", ".la", ".pc", ".inc", ".h", ".hpp", ".cmake", ".cppm", ".json",
}

var ignoredLibCheckFileNames = map[string]bool{
	"LICENSE":       true,
	"krb5-send-pr":  true,
	".clang-format": true,
}

var ignoredLibCheckDirSuffixes = []string{
	"/include/c++/v1",
	"/include/c++/v1/experimental",
	"/include/c++/v1/ext",
}

// glibc components that every dynamic binary may resolve from the system.
var baseAllowedSystemLibraries = []string{
	"libc", "libdl", "libm", "libpthread", "libresolv", "librt", "libutil",
	"ld-linux",
}

// libc++abi loads the sanitizer runtime from the LLVM distribution, which
// itself reports libc++ as not found. Harmless, so it gets a pass.
var libcxxNotFoundRE = regexp.MustCompile(`^\tlibc\+\+\.so\.[0-9]+ => not found`)

var systemLibraryRE = regexp.MustCompile(
	`^.* => /lib(?:64|/(?:x86_64|aarch64)-linux-gnu)/([^ /]+) .*$`)

// LibChecker verifies that every installed dynamic executable and shared
// library resolves its dependencies from allowed locations only: system
// directories, the install tree, and directories registered as rpath targets
// during the build.
type LibChecker struct {
	Layout *Layout

	allowedPathPatterns    []string
	allowedSystemLibraries map[string]bool
	neededLibsToRemove     map[string]bool
	allowedRE              *regexp.Regexp
	tool                   string
}

// NewLibChecker builds a checker for the platform, allowing the install tree
// plus extraAllowedPaths.
func NewLibChecker(layout *Layout, extraAllowedPaths []string) *LibChecker {
	c := &LibChecker{
		Layout:                 layout,
		allowedSystemLibraries: make(map[string]bool),
		neededLibsToRemove:     map[string]bool{"libatomic": true},
	}
	for _, lib := range baseAllowedSystemLibraries {
		c.allowedSystemLibraries[lib] = true
	}

	if runtime.GOOS == "darwin" {
		c.tool = "otool -L"
		c.allowedPathPatterns = []string{
			`^\t/System/Library/`,
			`^Archive `,
			`^/`,
			`^\t@rpath`,
			`^\t@loader_path`,
			`^\t` + regexp.QuoteMeta(layout.Root),
			`^\t/usr/lib/`,
		}
	} else {
		c.tool = "ldd"
		c.allowedPathPatterns = []string{
			`^\tlinux-vdso`,
			`^\t/lib64/`,
			`^\t/lib/ld-linux-.*`,
			`^\tstatically linked`,
			`^\tnot a dynamic executable`,
			`ldd: warning: you do not have execution permission`,
			`^.* => /lib64/`,
			`^.* => /lib/`,
			`^.* => /usr/lib/x86_64-linux-gnu/`,
			`^.* => ` + regexp.QuoteMeta(layout.Root),
		}
	}

	sorted := append([]string{}, extraAllowedPaths...)
	sort.Strings(sorted)
	for _, p := range sorted {
		logf("Extra allowed shared lib path: %s", p)
		c.allowedPathPatterns = append(c.allowedPathPatterns,
			`.* => `+regexp.QuoteMeta(p)+`/`)
	}
	return c
}

// NewConfiguredLibChecker builds a checker with the compiler-specific
// allowances already applied. Duplicate extra paths (e.g. the same rpath
// registered by several dependencies) are collapsed.
func NewConfiguredLibChecker(layout *Layout, compilers *CompilerChoice, extraAllowedPaths []string) *LibChecker {
	c := NewLibChecker(layout, uniqueStrings(extraAllowedPaths))
	c.ConfigureForCompiler(compilers)
	return c
}

// ConfigureForCompiler adjusts the allowed system libraries to the compiler
// that produced the binaries.
func (c *LibChecker) ConfigureForCompiler(compilers *CompilerChoice) {
	if compilers.IsGCC() {
		// GCC links against the system-wide libstdc++.
		c.allowedSystemLibraries["libstdc++"] = true
	}
	if compilers.IsGCC() ||
		(compilers.IsClang() && compilers.Identity().MajorVersion() >= 13) {
		c.allowedSystemLibraries["libgcc_s"] = true
	} else {
		c.neededLibsToRemove["libgcc_s"] = true
	}
	if compilers.IsGCC() && compilers.Identity().MajorVersion() >= 11 {
		c.allowedSystemLibraries["libgomp"] = true
	}
}

// Run scans every installed binary across all build types and fails if any
// resolves a library from a disallowed location. All problems are reported
// before failing.
func (c *LibChecker) Run() error {
	c.allowedRE = regexp.MustCompile(strings.Join(c.allowedPathPatterns, "|"))

	heading("Scanning installed executables and libraries...")
	files, err := c.collectFiles()
	if err != nil {
		return err
	}

	if runtime.GOOS == "linux" {
		for _, f := range files {
			if err := c.removeUnusedNeededLibs(f); err != nil {
				return err
			}
		}
	}

	pass := true
	for _, f := range files {
		ok, err := c.checkFile(f)
		if err != nil {
			return err
		}
		if !ok {
			pass = false
		}
	}
	if !pass {
		return fmt.Errorf("found problematic library dependencies, using tool: %s", c.tool)
	}
	logf("No problems found with library dependencies.")
	return nil
}

var libCheckDirRE = regexp.MustCompile(`^(lib|libcxx|s?bin)$`)

func (c *LibChecker) collectFiles() ([]string, error) {
	var files []string
	for _, t := range BuildTypeNames() {
		installedDir := filepath.Join(c.Layout.InstalledRoot(), t)
		entries, err := os.ReadDir(installedDir)
		if err != nil {
			if os.IsNotExist(err) {
				debugf("Directory %s does not exist, skipping\n", installedDir)
				continue
			}
			return nil, err
		}
		for _, entry := range entries {
			if !entry.IsDir() || !libCheckDirRE.MatchString(entry.Name()) {
				continue
			}
			root := filepath.Join(installedDir, entry.Name())
			err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return err
				}
				ok, err := c.shouldCheckFile(path)
				if err != nil {
					return err
				}
				if ok {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}
	return files, nil
}

func (c *LibChecker) shouldCheckFile(path string) (bool, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return false, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return false, nil
	}
	for _, ext := range ignoredLibCheckExtensions {
		if strings.HasSuffix(path, ext) {
			return false, nil
		}
	}
	if ignoredLibCheckFileNames[filepath.Base(path)] {
		return false, nil
	}
	dir := filepath.Dir(path)
	for _, suffix := range ignoredLibCheckDirSuffixes {
		if strings.HasSuffix(dir, suffix) {
			return false, nil
		}
	}
	textBased, err := isLinkerScript(path)
	if err != nil {
		return false, err
	}
	return !textBased, nil
}

// isLinkerScript detects text-based .so files such as libc++.so, which
// contains INPUT(libc++.so.1 -lunwind -lc++abi) and cannot be run through
// ldd.
func isLinkerScript(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	buf := make([]byte, 5)
	n, _ := f.Read(buf)
	return strings.HasPrefix(string(buf[:n]), "INPUT"), nil
}

func (c *LibChecker) checkFile(path string) (bool, error) {
	if runtime.GOOS == "darwin" {
		return c.checkFileOtool(path)
	}
	return c.checkFileLDD(path)
}

func (c *LibChecker) checkFileOtool(path string) (bool, error) {
	out, err := exec.Command("otool", "-L", path).CombinedOutput()
	if err != nil {
		return false, fmt.Errorf("otool -L %s: %w", path, err)
	}
	if strings.Contains(string(out), "is not an object file") {
		return true, nil
	}
	return c.checkDepLines(path, strings.Split(string(out), "\n"), nil), nil
}

func (c *LibChecker) checkFileLDD(path string) (bool, error) {
	cmd := exec.Command("ldd", path)
	cmd.Env = append(os.Environ(), "LC_ALL=en_US.UTF-8")
	out, err := cmd.CombinedOutput()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() > 1 {
			warnf("Unexpected failure from ldd on %s: %v\n%s", path, err, out)
			return false, nil
		}
	}
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")

	// libc++abi loads the ASAN runtime from the LLVM distribution, which
	// reports libc++ as not found. Allowed, see the comment on the regex.
	var extraAllowed *regexp.Regexp
	if strings.HasPrefix(filepath.Base(path), "libc++abi.so.") {
		extraAllowed = libcxxNotFoundRE
	}

	rel, relErr := filepath.Rel(c.Layout.InstalledRoot(), path)
	isSanitized := relErr == nil &&
		(strings.HasPrefix(rel, "asan/") || strings.HasPrefix(rel, "tsan/"))

	ok := true
	for _, line := range lines {
		if m := systemLibraryRE.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			// Sanitized libc++/libc++abi legitimately pull in the system
			// libgcc_s; those builds are not meant to be portable.
			if !c.isAllowedSystemLib(m[1], isSanitized) {
				warnf("Disallowed system library: %s. File: %s", m[1], path)
				ok = false
			}
		}
	}
	return c.checkDepLines(path, lines, extraAllowed) && ok, nil
}

func (c *LibChecker) isAllowedSystemLib(libName string, sanitized bool) bool {
	check := func(allowed string) bool {
		return strings.HasPrefix(libName, allowed+".") ||
			strings.HasPrefix(libName, allowed+"-")
	}
	for allowed := range c.allowedSystemLibraries {
		if check(allowed) {
			return true
		}
	}
	return sanitized && check("libgcc_s")
}

func (c *LibChecker) checkDepLines(path string, lines []string, extraAllowed *regexp.Regexp) bool {
	ok := true
	for _, line := range lines {
		if line == "" || c.allowedRE.MatchString(line) {
			continue
		}
		if extraAllowed != nil && extraAllowed.MatchString(line) {
			continue
		}
		if ok {
			warnf("%s:", path)
			ok = false
		}
		warnf("Bad path: %s", line)
	}
	return ok
}

var skippedLDDUnusedPrefixes = []string{"Unused ", "ldd: warning: ", "not a dynamic"}

// removeUnusedNeededLibs strips NEEDED entries that ldd -u reports as unused
// and that are known removable, such as libatomic, so portable binaries do
// not carry dead references to system libraries.
func (c *LibChecker) removeUnusedNeededLibs(path string) error {
	needed, err := printNeededLibs(path)
	if err != nil || len(needed) == 0 {
		return err
	}
	neededSet := make(map[string]bool, len(needed))
	for _, lib := range needed {
		neededSet[lib] = true
	}

	cmd := exec.Command("ldd", "-u", path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() > 1 {
			return fmt.Errorf("ldd -u %s: %w\n%s", path, err, out)
		}
	}

	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "Inconsistency") {
			return fmt.Errorf("ldd -u failed on %s: %s", path, line)
		}
		skip := false
		for _, prefix := range skippedLDDUnusedPrefixes {
			if strings.HasPrefix(line, prefix) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		unusedName := filepath.Base(line)
		if strings.HasPrefix(unusedName, "ld-linux-") || !neededSet[unusedName] {
			continue
		}
		for removable := range c.neededLibsToRemove {
			if strings.HasPrefix(unusedName, removable+".") {
				if out, err := exec.Command("patchelf", "--remove-needed", unusedName, path).CombinedOutput(); err != nil {
					return fmt.Errorf("patchelf --remove-needed %s %s: %w\n%s", unusedName, path, err, out)
				}
				logf("Removed unused needed lib %s from %s", unusedName, path)
				break
			}
		}
	}
	return nil
}

func printNeededLibs(path string) ([]string, error) {
	out, err := exec.Command("patchelf", "--print-needed", path).CombinedOutput()
	if err != nil {
		// patchelf exits nonzero on non-ELF files; nothing to check then.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("patchelf --print-needed %s: %w\n%s", path, err, out)
	}
	var libs []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			libs = append(libs, line)
		}
	}
	return libs, nil
}
