package tpbuild

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// debugf prints debug messages when verbose output is enabled
func debugf(format string, args ...any) {
	if Verbose {
		fmt.Printf(format, args...)
	}
}

// logf prints an arrow-prefixed status line.
func logf(format string, args ...any) {
	colArrow.Print("-> ")
	colSuccess.Printf(format+"\n", args...)
}

// warnf prints an arrow-prefixed warning line.
func warnf(format string, args ...any) {
	colArrow.Print("-> ")
	colWarn.Printf(format+"\n", args...)
}

// heading prints a separator block around a phase title.
func heading(format string, args ...any) {
	line := strings.Repeat("-", 80)
	fmt.Println(line)
	colInfo.Printf(format+"\n", args...)
	fmt.Println(line)
}

// mkdirIfMissing creates dir and parents when absent.
func mkdirIfMissing(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// removeAndRecreate wipes dir and creates it fresh.
func removeAndRecreate(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove directory %s: %w", dir, err)
	}
	return mkdirIfMissing(dir)
}

// pathExists reports whether path exists (file or directory).
func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// dirExists reports whether path exists and is a directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// writeFileAtomic writes data to path via a temp sibling and rename.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// symlinkForce replaces any existing link at linkPath with one pointing at
// target, using create-temp-then-rename so concurrent walkers never observe
// a missing link.
func symlinkForce(target, linkPath string) error {
	tmp := fmt.Sprintf("%s.tmp.%d", linkPath, os.Getpid())
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("failed to create temp symlink: %w", err)
	}
	if err := os.Rename(tmp, linkPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to symlink %s -> %s: %w", linkPath, target, err)
	}
	return nil
}

// ensureLib64Symlink creates <prefix>/lib and a lib64 -> lib symlink so
// installers that hardcode lib64 land in the same tree.
func ensureLib64Symlink(prefix string) error {
	libDir := filepath.Join(prefix, "lib")
	if err := mkdirIfMissing(libDir); err != nil {
		return err
	}
	lib64 := filepath.Join(prefix, "lib64")
	if pathExists(lib64) {
		return nil
	}
	return os.Symlink("lib", lib64)
}

// uniqueStrings returns ss with duplicates removed, first occurrence wins.
func uniqueStrings(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := ss[:0:0]
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
