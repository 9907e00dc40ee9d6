package tpbuild

import (
	"bufio"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// ChecksumFileName is the manifest of expected archive checksums at the
// repository root.
const ChecksumFileName = "thirdparty_src_checksums.txt"

// ErrChecksumMismatch reports a downloaded file whose SHA-256 digest does
// not match the manifest.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// ChecksumStore holds the expected SHA-256 digest for every known archive
// file name. Safe for concurrent use; parallel prefetch workers look up and
// append checksums from multiple goroutines.
type ChecksumStore struct {
	Path string

	mu   sync.RWMutex
	sums map[string]string
}

// LoadChecksums parses the checksum manifest. Each non-comment line is
// "<64-hex-sha256>  <filename>". Malformed lines are an error, not a skip.
func LoadChecksums(path string) (*ChecksumStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open checksum file: %w", err)
	}
	defer f.Close()

	store := &ChecksumStore{Path: path, sums: make(map[string]string)}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s:%d: expected '<sha256>  <filename>', got %q", path, lineNo, line)
		}
		sum, name := fields[0], fields[1]
		if !isValidSHA256(sum) {
			return nil, fmt.Errorf("%s:%d: invalid SHA-256 digest %q for %s", path, lineNo, sum, name)
		}
		store.sums[name] = strings.ToLower(sum)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return store, nil
}

func isValidSHA256(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// Get returns the expected digest for a file name.
func (c *ChecksumStore) Get(fileName string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sum, ok := c.sums[fileName]
	return sum, ok
}

// Append adds a checksum line for fileName to the manifest and the in-memory
// map. An existing entry is an error; stale entries must be edited by hand.
// The file is appended under an exclusive flock so concurrent orchestrator
// processes sharing one manifest cannot interleave lines.
func (c *ChecksumStore) Append(fileName, sum string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sums[fileName]; ok {
		return fmt.Errorf("checksum for %s already present in %s", fileName, c.Path)
	}
	if !isValidSHA256(sum) {
		return fmt.Errorf("invalid SHA-256 digest %q", sum)
	}
	f, err := os.OpenFile(c.Path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("failed to lock %s: %w", c.Path, err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)
	if _, err := fmt.Fprintf(f, "%s  %s\n", strings.ToLower(sum), fileName); err != nil {
		return err
	}
	c.sums[fileName] = strings.ToLower(sum)
	return nil
}

// ComputeSHA256 returns the hex SHA-256 digest of the file at path.
func ComputeSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// VerifyFileChecksum compares the file's digest against expected and returns
// ErrChecksumMismatch (wrapped with both digests) when they differ.
func VerifyFileChecksum(path, expected string) error {
	actual, err := ComputeSHA256(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("%w for %s: expected %s, got %s", ErrChecksumMismatch, path, expected, actual)
	}
	return nil
}
