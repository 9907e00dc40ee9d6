package tpbuild

import (
	"archive/tar"
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

// archiveExtensions are the known archive file extensions, checked
// longest-match-first so ".tar.gz" wins over ".gz".
var archiveExtensions = []string{
	".tar.bz2",
	".tar.gz",
	".tar.xz",
	".tar.zst",
	".tgz",
	".zip",
}

// SplitArchiveName splits an archive file name into the base name and the
// archive extension. The longest known extension that matches wins.
func SplitArchiveName(name string) (base, ext string, err error) {
	best := ""
	for _, e := range archiveExtensions {
		if strings.HasSuffix(name, e) && len(e) > len(best) {
			best = e
		}
	}
	if best == "" {
		return "", "", fmt.Errorf("could not determine archive type of file name: %q", name)
	}
	return strings.TrimSuffix(name, best), best, nil
}

// MakeArchiveName derives the local archive file name for a dependency as
// <name>-<version><ext>, taking the extension from the download URL. A URL
// with no recognizable extension falls back to .tar.gz.
func MakeArchiveName(name, version, downloadURL string) (string, error) {
	ext := ".tar.gz"
	if downloadURL != "" {
		if _, urlExt, err := SplitArchiveName(filepath.Base(downloadURL)); err == nil {
			ext = urlExt
		}
	}
	return fmt.Sprintf("%s-%s%s", name, version, ext), nil
}

// extractArchive extracts archivePath into a fresh temp directory next to
// destDir, requires exactly one non-hidden top-level entry, and renames that
// entry to destDir. Partially extracted state never lands at destDir.
func extractArchive(archivePath, destDir string) error {
	parent := filepath.Dir(destDir)
	if err := mkdirIfMissing(parent); err != nil {
		return err
	}
	tmpDir, err := os.MkdirTemp(parent, ".extract-"+filepath.Base(destDir)+"-")
	if err != nil {
		return fmt.Errorf("failed to create extraction temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := extractInto(archivePath, tmpDir); err != nil {
		return err
	}

	top, err := singleTopLevelEntry(tmpDir)
	if err != nil {
		return fmt.Errorf("archive %s: %w", filepath.Base(archivePath), err)
	}

	if err := os.RemoveAll(destDir); err != nil {
		return fmt.Errorf("failed to remove stale directory %s: %w", destDir, err)
	}
	if err := os.Rename(filepath.Join(tmpDir, top), destDir); err != nil {
		return fmt.Errorf("failed to move extracted tree into place: %w", err)
	}
	return nil
}

// singleTopLevelEntry returns the one non-hidden entry directly under dir,
// or an error naming every entry found when the archive layout is
// unexpected.
func singleTopLevelEntry(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 1 {
		return names[0], nil
	}
	sort.Strings(names)
	return "", fmt.Errorf("expected exactly one top-level entry, found %d: %s",
		len(names), strings.Join(names, ", "))
}

// extractInto unpacks the archive into dest. System tools are tried first;
// when they are absent or fail, the in-process readers take over.
func extractInto(archivePath, dest string) error {
	if strings.HasSuffix(archivePath, ".zip") {
		if _, err := exec.LookPath("unzip"); err == nil {
			cmd := exec.Command("unzip", "-q", "-o", archivePath)
			cmd.Dir = dest
			if err := cmd.Run(); err == nil {
				debugf("Used system unzip for %s\n", archivePath)
				return nil
			}
			debugf("system unzip failed for %s, using Go zip reader\n", archivePath)
		}
		return unzipGo(archivePath, dest)
	}

	if _, err := exec.LookPath("tar"); err == nil {
		// --no-same-owner keeps extracted files owned by the invoking user
		// even when running as root.
		cmd := exec.Command("tar", "--no-same-owner", "-xf", archivePath)
		cmd.Dir = dest
		if err := cmd.Run(); err == nil {
			debugf("Used system tar for %s\n", archivePath)
			return nil
		}
		debugf("system tar failed for %s, using Go readers\n", archivePath)
	}
	return extractTarGo(archivePath, dest)
}

// extractTarGo extracts a tar archive (with possible compression) to dest
// using the pure-Go decompressors.
func extractTarGo(archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer f.Close()

	var r io.Reader = f
	switch {
	case strings.HasSuffix(archivePath, ".tar.gz") || strings.HasSuffix(archivePath, ".tgz"):
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create gzip reader for %s: %w", archivePath, err)
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(archivePath, ".tar.bz2"):
		r = bzip2.NewReader(f)
	case strings.HasSuffix(archivePath, ".tar.xz"):
		xzr, err := xz.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create xz reader for %s: %w", archivePath, err)
		}
		r = xzr
	case strings.HasSuffix(archivePath, ".tar.zst"):
		zst, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create zstd reader for %s: %w", archivePath, err)
		}
		defer zst.Close()
		r = zst
	case strings.HasSuffix(archivePath, ".tar"):
		// No compression
	default:
		return fmt.Errorf("unsupported archive format: %s", archivePath)
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading tar header in %s: %w", archivePath, err)
		}

		if hdr.Typeflag == tar.TypeXHeader || hdr.Typeflag == tar.TypeXGlobalHeader {
			if _, err := io.Copy(io.Discard, tr); err != nil {
				return fmt.Errorf("error skipping extended header data in %s: %w", archivePath, err)
			}
			continue
		}

		name := filepath.Clean(hdr.Name)
		if name == "." || strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			continue
		}
		target := filepath.Join(dest, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)); err != nil {
				return fmt.Errorf("failed to create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("failed to create parent dir for %s: %w", target, err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return fmt.Errorf("failed to create file %s: %w", target, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("failed to write file %s: %w", target, err)
			}
			out.Close()
			if err := os.Chtimes(target, hdr.AccessTime, hdr.ModTime); err != nil {
				debugf("failed to set times for %s: %v\n", target, err)
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil && !os.IsExist(err) {
				return fmt.Errorf("failed to create symlink %s -> %s: %w", target, hdr.Linkname, err)
			}
		case tar.TypeLink:
			linkSrc := filepath.Join(dest, filepath.Clean(hdr.Linkname))
			os.Remove(target)
			if err := os.Link(linkSrc, target); err != nil {
				return fmt.Errorf("failed to create hard link %s -> %s: %w", target, linkSrc, err)
			}
		default:
			debugf("Skipping unsupported tar entry type %c: %s\n", hdr.Typeflag, hdr.Name)
		}
	}
	return nil
}

// unzipGo extracts a zip archive using the in-process reader.
func unzipGo(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	dest, err = filepath.Abs(dest)
	if err != nil {
		return err
	}

	for _, f := range r.File {
		fpath := filepath.Join(dest, f.Name)

		// Keep every path inside the destination directory.
		if !strings.HasPrefix(fpath, dest+string(os.PathSeparator)) {
			return fmt.Errorf("illegal file path in archive: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, os.ModePerm); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(fpath), os.ModePerm); err != nil {
			return err
		}

		outFile, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
		if err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			outFile.Close()
			return err
		}

		_, err = io.Copy(outFile, rc)

		// Close inside the loop to avoid holding too many descriptors.
		outFile.Close()
		rc.Close()

		if err != nil {
			return err
		}
	}
	return nil
}
