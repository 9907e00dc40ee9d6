package tpbuild

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

func readPackageNames(t *testing.T, path string) map[string]bool {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	zr, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer zr.Close()

	names := map[string]bool{}
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names[hdr.Name] = true
	}
	return names
}

func TestCreatePackage(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "thirdparty")
	layout := NewLayout(root)

	libDir := filepath.Join(layout.InstallPrefix(BuildTypeCommon), "lib")
	require.NoError(t, os.MkdirAll(libDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(libDir, "libz.so.1"), []byte("\x7fELF"), 0o755))
	require.NoError(t, os.Symlink("libz.so.1", filepath.Join(libDir, "libz.so")))

	// Intermediate state must stay out of the package.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "build", "common"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "build", "common", "z.o"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stale.o"), []byte("x"), 0o644))

	tarballPath, err := CreatePackage(layout, "gcc11-x86_64")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(parent, "tpbuild-gcc11-x86_64.tar.zst"), tarballPath)

	names := readPackageNames(t, tarballPath)
	require.True(t, names["thirdparty/installed/common/lib/libz.so.1"])
	require.True(t, names["thirdparty/installed/common/lib/libz.so"])
	require.False(t, names["thirdparty/build/common/z.o"])
	require.False(t, names["thirdparty/src/"])
	require.False(t, names["thirdparty/stale.o"])

	// Sidecar checksum file verifies the tarball.
	sum, err := ComputeSHA256(tarballPath)
	require.NoError(t, err)
	sidecar, err := os.ReadFile(tarballPath + ".sha256")
	require.NoError(t, err)
	require.Contains(t, string(sidecar), sum)

	// Constant-name symlinks point at the latest package.
	link, err := os.Readlink(filepath.Join(root, "archive.tar.zst"))
	require.NoError(t, err)
	require.Equal(t, tarballPath, link)
	_, err = os.Stat(filepath.Join(root, "archive.tar.zst.sha256"))
	require.NoError(t, err)
}

func TestCreatePackageReplacesExisting(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "thirdparty")
	layout := NewLayout(root)
	require.NoError(t, os.MkdirAll(layout.InstallPrefix(BuildTypeCommon), 0o755))

	stale := filepath.Join(parent, "tpbuild.tar.zst")
	require.NoError(t, os.WriteFile(stale, []byte("stale"), 0o644))

	tarballPath, err := CreatePackage(layout, "")
	require.NoError(t, err)
	require.Equal(t, stale, tarballPath)

	// The stale file was replaced with a real archive.
	names := readPackageNames(t, tarballPath)
	require.True(t, names["thirdparty/installed/"])
}
