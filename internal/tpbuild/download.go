package tpbuild

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sys/unix"
	"lukechampine.com/blake3"
)

const (
	// maxFetchAttempts bounds the retries of a single URL.
	maxFetchAttempts = 20

	// maxRedownloadAttempts bounds full re-downloads after a checksum
	// mismatch of an already transferred file.
	maxRedownloadAttempts = 3

	initialRetrySleep  = 1 * time.Second
	retrySleepIncrease = 500 * time.Millisecond

	// notFoundSentinel is the body some mirrors return with HTTP 200 for a
	// missing file. Matching the first 14 bytes is a best-effort heuristic.
	notFoundSentinel = "404: Not Found"
)

// ErrDownloadFailed reports that every attempt against every applicable URL
// failed.
var ErrDownloadFailed = errors.New("download failed")

// DownloadManager fetches archives with retries, checksum verification and
// alternate-mirror fallback, and materializes patched source trees.
type DownloadManager struct {
	Layout    *Layout
	Checksums *ChecksumStore
	Exec      *Executor

	// MirrorPrefix, when set, is tried after the canonical URL is
	// exhausted: prefix + "/" + basename. An s3:// prefix routes through
	// the S3 mirror client instead of HTTP.
	MirrorPrefix string
	s3           *S3Mirror

	// AddChecksums records the digest of any archive missing from the
	// checksum manifest instead of failing.
	AddChecksums bool
}

// mirrorURL builds the alternate URL for a file, or "" when no mirror is
// configured.
func (dm *DownloadManager) mirrorURL(fileName string) string {
	if dm.MirrorPrefix == "" {
		return ""
	}
	return strings.TrimRight(dm.MirrorPrefix, "/") + "/" + fileName
}

// ConfigureS3Mirror wires an S3/R2 bucket as the alternate mirror.
func (dm *DownloadManager) ConfigureS3Mirror(s *Settings) error {
	if !strings.HasPrefix(dm.MirrorPrefix, "s3://") {
		return nil
	}
	s3m, err := NewS3Mirror(dm.MirrorPrefix, s)
	if err != nil {
		return err
	}
	dm.s3 = s3m
	return nil
}

// EnsureFileDownloaded makes sure destPath exists with the expected SHA-256
// digest, downloading (and re-downloading on mismatch) as needed. An
// existing file with a valid checksum causes no network traffic at all.
func (dm *DownloadManager) EnsureFileDownloaded(url, destPath, expectedSum string) error {
	if err := mkdirIfMissing(filepath.Dir(destPath)); err != nil {
		return err
	}

	// Serialize on the destination so concurrent orchestrators sharing a
	// download cache do not clobber each other.
	lockPath := destPath + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer lockFile.Close()
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire download lock: %w", err)
	}
	defer unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)

	if pathExists(destPath) {
		if err := VerifyFileChecksum(destPath, expectedSum); err == nil {
			debugf("Already downloaded with valid checksum: %s\n", destPath)
			return nil
		} else if !errors.Is(err, ErrChecksumMismatch) {
			return err
		}
		warnf("Checksum mismatch for existing file %s, re-downloading", filepath.Base(destPath))
		if err := os.Remove(destPath); err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxRedownloadAttempts; attempt++ {
		if err := dm.downloadToFile(url, filepath.Base(destPath), destPath); err != nil {
			return err
		}
		lastErr = VerifyFileChecksum(destPath, expectedSum)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, ErrChecksumMismatch) {
			return lastErr
		}
		warnf("Checksum mismatch after download of %s (attempt %d of %d)",
			filepath.Base(destPath), attempt, maxRedownloadAttempts)
		if err := os.Remove(destPath); err != nil {
			return err
		}
	}
	return lastErr
}

// downloadToFile transfers url to destPath, falling back to the alternate
// mirror when every attempt against the canonical URL fails.
func (dm *DownloadManager) downloadToFile(url, fileName, destPath string) error {
	primaryErr := dm.downloadWithRetries(url, destPath)
	if primaryErr == nil {
		return nil
	}
	alt := dm.mirrorURL(fileName)
	if alt == "" {
		return primaryErr
	}
	warnf("Download of %s failed, trying alternate mirror", url)
	if dm.s3 != nil {
		if err := dm.s3.Download(dm.Exec.Context, fileName, destPath); err != nil {
			return fmt.Errorf("%w: %v; mirror: %v", ErrDownloadFailed, primaryErr, err)
		}
		return nil
	}
	if err := dm.downloadWithRetries(alt, destPath); err != nil {
		return fmt.Errorf("%w: %v; mirror: %v", ErrDownloadFailed, primaryErr, err)
	}
	return nil
}

// downloadWithRetries fetches one URL with bounded retries and linear
// backoff. A body that begins with the 404 sentinel counts as a failure.
func (dm *DownloadManager) downloadWithRetries(url, destPath string) error {
	sleep := initialRetrySleep
	var lastErr error
	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		if attempt > 1 {
			debugf("Retrying download of %s in %v (attempt %d of %d)\n", url, sleep, attempt, maxFetchAttempts)
			time.Sleep(sleep)
			sleep += retrySleepIncrease
		}
		lastErr = dm.downloadOnce(url, destPath)
		if lastErr == nil {
			if isNotFoundBody(destPath) {
				os.Remove(destPath)
				// A sentinel body means the file does not exist at this
				// URL; retrying will not help.
				return fmt.Errorf("%w: %s returned a not-found page", ErrDownloadFailed, url)
			}
			return nil
		}
		os.Remove(destPath)
	}
	return fmt.Errorf("%w: %s after %d attempts: %v", ErrDownloadFailed, url, maxFetchAttempts, lastErr)
}

// isNotFoundBody checks the first bytes of a downloaded file for the
// sentinel some mirrors serve instead of an HTTP error.
func isNotFoundBody(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	buf := make([]byte, len(notFoundSentinel))
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return false
	}
	return string(buf[:n]) == notFoundSentinel
}

// downloadOnce performs a single transfer. curl is preferred, then wget,
// then the native HTTP client.
func (dm *DownloadManager) downloadOnce(url, destPath string) error {
	debugf("Downloading %s -> %s\n", url, destPath)

	if _, err := exec.LookPath("curl"); err == nil {
		args := []string{"-L", "--fail", "-o", destPath}
		if stdoutIsTerminal() {
			args = append(args, "-#")
		} else {
			args = append(args, "-sS")
		}
		args = append(args, url)
		cmd := exec.Command("curl", args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := dm.Exec.Run(cmd); err == nil {
			return nil
		}
		debugf("curl failed, falling back to wget\n")
	}

	if _, err := exec.LookPath("wget"); err == nil {
		cmd := exec.Command("wget", "-nv", "-O", destPath, url)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := dm.Exec.Run(cmd); err == nil {
			return nil
		}
		debugf("wget failed, falling back to native Go HTTP client\n")
	}

	return httpDownload(url, destPath)
}

// httpDownload is the native fallback with a progress bar on terminals.
func httpDownload(url, destPath string) error {
	client := &http.Client{Timeout: 300 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("native http get failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %s", resp.Status)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", destPath, err)
	}
	defer out.Close()

	var w io.Writer = out
	if stdoutIsTerminal() {
		bar := progressbar.DefaultBytes(resp.ContentLength, filepath.Base(destPath))
		w = io.MultiWriter(out, bar)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to write to destination file: %w", err)
	}
	return nil
}

// patchMarkerName encodes everything that affects the patched source tree:
// the patch schema version, the patch count, and a digest of the patch file
// contents so an edited patch invalidates the marker.
func (dm *DownloadManager) patchMarkerName(dep *Dependency) (string, error) {
	name := fmt.Sprintf("patchmarker-version%d-%dpatches", dep.PatchVersion, len(dep.Patches))
	if len(dep.Patches) == 0 {
		return name, nil
	}
	h := blake3.New(32, nil)
	for _, p := range dep.Patches {
		data, err := os.ReadFile(filepath.Join(dm.Layout.Root, "patches", p))
		if err != nil {
			return "", fmt.Errorf("could not read patch %s: %w", p, err)
		}
		h.Write([]byte(p))
		h.Write(data)
	}
	return fmt.Sprintf("%s-%x", name, h.Sum(nil)[:4]), nil
}

// DownloadDependency makes the dependency's patched source tree available,
// downloading, extracting and patching as needed. The patch marker written
// as the very last step makes the whole operation restartable: a tree
// without its marker is wiped and rebuilt from the archive.
func (dm *DownloadManager) DownloadDependency(dep *Dependency) error {
	srcPath := dm.Layout.SourcePath(dep)

	if dep.MkdirOnly {
		return mkdirIfMissing(srcPath)
	}
	if dm.Layout.IsDevRepo(dep) {
		debugf("Using dev repo for %s: %s\n", dep.Name, srcPath)
		return nil
	}

	markerName, err := dm.patchMarkerName(dep)
	if err != nil {
		return err
	}
	markerPath := filepath.Join(srcPath, markerName)
	if pathExists(markerPath) {
		debugf("Source tree for %s already prepared\n", dep.Name)
		return nil
	}

	archivePath, err := dm.Layout.ArchivePath(dep)
	if err != nil {
		return err
	}
	fileName := filepath.Base(archivePath)
	expectedSum, ok := dm.Checksums.Get(fileName)
	if !ok {
		if !dm.AddChecksums {
			return fmt.Errorf("no checksum for %s in %s; run with --add-checksum %s",
				fileName, dm.Checksums.Path, dep.Name)
		}
		expectedSum, err = dm.recordChecksum(dep.DownloadURL(), fileName, archivePath)
		if err != nil {
			return err
		}
	}
	if err := dm.EnsureFileDownloaded(dep.DownloadURL(), archivePath, expectedSum); err != nil {
		return err
	}

	// A source tree without its marker is in an unknown state (previous
	// run interrupted, or patches changed). Start over.
	if pathExists(srcPath) {
		logf("Re-extracting %s (missing patch marker)", dep.Name)
		if err := os.RemoveAll(srcPath); err != nil {
			return err
		}
	}
	if err := extractArchive(archivePath, srcPath); err != nil {
		return err
	}

	for i := range dep.ExtraDownloads {
		if err := dm.downloadExtra(dep, &dep.ExtraDownloads[i], srcPath); err != nil {
			return err
		}
	}

	if err := dm.applyPatches(dep, srcPath); err != nil {
		return err
	}

	f, err := os.Create(markerPath)
	if err != nil {
		return fmt.Errorf("failed to write patch marker: %w", err)
	}
	return f.Close()
}

// recordChecksum downloads an archive without prior verification, computes
// its digest and appends it to the manifest.
func (dm *DownloadManager) recordChecksum(url, fileName, archivePath string) (string, error) {
	if !pathExists(archivePath) {
		if err := dm.downloadToFile(url, fileName, archivePath); err != nil {
			return "", err
		}
	}
	sum, err := ComputeSHA256(archivePath)
	if err != nil {
		return "", err
	}
	if err := dm.Checksums.Append(fileName, sum); err != nil {
		return "", err
	}
	logf("Recorded checksum %s for %s", sum, fileName)
	return sum, nil
}

// downloadExtra fetches an extra archive into a subdirectory of the source
// tree and runs its post-exec commands there.
func (dm *DownloadManager) downloadExtra(dep *Dependency, x *ExtraDownload, srcPath string) error {
	archiveName, err := x.ArchiveName()
	if err != nil {
		return err
	}
	archivePath := filepath.Join(dm.Layout.ArchiveDir(), archiveName)
	expectedSum, ok := dm.Checksums.Get(archiveName)
	if !ok {
		return fmt.Errorf("no checksum for extra download %s of %s", archiveName, dep.Name)
	}
	if err := dm.EnsureFileDownloaded(x.URL(), archivePath, expectedSum); err != nil {
		return err
	}
	destDir := filepath.Join(srcPath, x.DirName)
	if err := extractArchive(archivePath, destDir); err != nil {
		return err
	}
	for _, cmd := range x.PostExec {
		if err := dm.Exec.RunInDir(destDir, nil, cmd[0], cmd[1:]...); err != nil {
			return fmt.Errorf("post-exec for extra download %s failed: %w", x.Name, err)
		}
	}
	return nil
}

// applyPatches applies the dependency's patches in order, then runs any
// post-patch commands, all inside the source tree.
func (dm *DownloadManager) applyPatches(dep *Dependency, srcPath string) error {
	for _, p := range dep.Patches {
		patchPath := filepath.Join(dm.Layout.Root, "patches", p)
		logf("Applying patch %s to %s", p, dep.Name)
		err := dm.Exec.RunInDir(srcPath, nil,
			"patch", "-p"+strconv.Itoa(dep.PatchStrip), "-i", patchPath)
		if err != nil {
			return fmt.Errorf("patch %s failed for %s: %w", p, dep.Name, err)
		}
	}
	for _, cmd := range dep.PostPatch {
		if err := dm.Exec.RunInDir(srcPath, nil, cmd[0], cmd[1:]...); err != nil {
			return fmt.Errorf("post-patch command failed for %s: %w", dep.Name, err)
		}
	}
	return nil
}

// DownloadToolchain fetches a toolchain archive whose checksum comes from a
// .sha256 sidecar next to the archive URL, and extracts it under parentDir.
// Returns the extracted toolchain directory.
func (dm *DownloadManager) DownloadToolchain(url, parentDir string) (string, error) {
	fileName := filepath.Base(url)
	base, _, err := SplitArchiveName(fileName)
	if err != nil {
		return "", err
	}
	destDir := filepath.Join(parentDir, base)
	if dirExists(destDir) {
		return destDir, nil
	}

	if err := mkdirIfMissing(parentDir); err != nil {
		return "", err
	}
	sumPath := filepath.Join(parentDir, fileName+".sha256")
	if err := dm.downloadToFile(url+".sha256", fileName+".sha256", sumPath); err != nil {
		return "", err
	}
	sumData, err := os.ReadFile(sumPath)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(string(sumData))
	if len(fields) == 0 || !isValidSHA256(fields[0]) {
		return "", fmt.Errorf("invalid checksum file for %s", url)
	}

	archivePath := filepath.Join(parentDir, fileName)
	if err := dm.EnsureFileDownloaded(url, archivePath, fields[0]); err != nil {
		return "", err
	}
	if err := extractArchive(archivePath, destDir); err != nil {
		return "", err
	}
	return destDir, nil
}
