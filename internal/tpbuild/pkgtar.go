package tpbuild

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const packageSuffix = ".tar.zst"

// Directories under the root that hold intermediate state rather than build
// products; they never go into a package.
var packageExcludedDirs = map[string]bool{
	".git":     true,
	"build":    true,
	"download": true,
	"src":      true,
	"wrappers": true,
	"venv":     true,
}

var packageExcludedExtensions = []string{".pyc", ".o"}

// CreatePackage archives the install tree and metadata into a zstd-compressed
// tarball next to the root, plus a sidecar checksum file. A constant-name
// symlink is refreshed so CI artifacts can reference the latest package.
func CreatePackage(layout *Layout, configSignature string) (string, error) {
	name := "tpbuild"
	if configSignature != "" {
		name += "-" + configSignature
	}
	tarballName := name + packageSuffix
	tarballPath := filepath.Join(filepath.Dir(layout.Root), tarballName)

	if pathExists(tarballPath) {
		logf("File already exists, deleting: %s", tarballPath)
		if err := os.Remove(tarballPath); err != nil {
			return "", err
		}
	}

	out, err := os.Create(tarballPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	zw, err := zstd.NewWriter(out)
	if err != nil {
		return "", err
	}
	tw := tar.NewWriter(zw)

	rootBase := filepath.Base(layout.Root)
	walkErr := filepath.WalkDir(layout.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(layout.Root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() && packageExcludedDirs[rel] {
			return filepath.SkipDir
		}
		if !d.IsDir() {
			if rel == "a.out" || strings.HasSuffix(rel, packageSuffix) {
				return nil
			}
			for _, ext := range packageExcludedExtensions {
				if strings.HasSuffix(rel, ext) {
					return nil
				}
			}
		}
		return addPackageEntry(tw, path, filepath.Join(rootBase, rel), d)
	})
	if walkErr != nil {
		return "", walkErr
	}
	if err := tw.Close(); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}

	sum, err := ComputeSHA256(tarballPath)
	if err != nil {
		return "", err
	}
	checksumPath := tarballPath + ".sha256"
	if err := os.WriteFile(checksumPath, []byte(fmt.Sprintf("%s  %s\n", sum, tarballName)), 0o644); err != nil {
		return "", err
	}
	logf("Package SHA256 checksum: %s, created checksum file: %s", sum, checksumPath)

	for _, link := range []struct{ target, name string }{
		{tarballPath, filepath.Join(layout.Root, "archive"+packageSuffix)},
		{checksumPath, filepath.Join(layout.Root, "archive"+packageSuffix+".sha256")},
	} {
		if err := symlinkForce(link.target, link.name); err != nil {
			return "", err
		}
	}
	logf("Created package at %s", tarballPath)
	return tarballPath, nil
}

func addPackageEntry(tw *tar.Writer, path, nameInArchive string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var linkTarget string
	if info.Mode()&os.ModeSymlink != 0 {
		if linkTarget, err = os.Readlink(path); err != nil {
			return err
		}
	}

	hdr, err := tar.FileInfoHeader(info, linkTarget)
	if err != nil {
		return err
	}
	hdr.Name = nameInArchive
	if info.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}
