package tpbuild

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureFileDownloadedUsesCache(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	destPath := filepath.Join(t.TempDir(), "dep-1.0.tar.gz")
	require.NoError(t, os.WriteFile(destPath, []byte("hello"), 0o644))

	dm := &DownloadManager{Exec: NewExecutor(context.Background())}
	require.NoError(t, dm.EnsureFileDownloaded(srv.URL+"/dep-1.0.tar.gz", destPath, helloSHA256))
	require.Equal(t, int64(0), requests.Load(), "a cached valid file causes no network traffic")
}

func TestEnsureFileDownloadedFetchesMissingFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	destPath := filepath.Join(t.TempDir(), "dep-1.0.tar.gz")
	dm := &DownloadManager{Exec: NewExecutor(context.Background())}
	require.NoError(t, dm.EnsureFileDownloaded(srv.URL+"/dep-1.0.tar.gz", destPath, helloSHA256))

	data, err := os.ReadFile(destPath)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestIsNotFoundBody(t *testing.T) {
	dir := t.TempDir()

	sentinel := filepath.Join(dir, "sentinel")
	require.NoError(t, os.WriteFile(sentinel, []byte("404: Not Found"), 0o644))
	require.True(t, isNotFoundBody(sentinel))

	real := filepath.Join(dir, "real")
	require.NoError(t, os.WriteFile(real, []byte("\x1f\x8b actual archive bytes"), 0o644))
	require.False(t, isNotFoundBody(real))

	short := filepath.Join(dir, "short")
	require.NoError(t, os.WriteFile(short, []byte("404"), 0o644))
	require.False(t, isNotFoundBody(short))
}

func TestMirrorURL(t *testing.T) {
	dm := &DownloadManager{}
	require.Equal(t, "", dm.mirrorURL("zlib-1.3.1.tar.gz"))

	dm.MirrorPrefix = "https://mirror.example.com/archives/"
	require.Equal(t, "https://mirror.example.com/archives/zlib-1.3.1.tar.gz",
		dm.mirrorURL("zlib-1.3.1.tar.gz"))
}

func TestConfigureS3MirrorRequiresCredentials(t *testing.T) {
	dm := &DownloadManager{MirrorPrefix: "s3://bucket/prefix"}
	err := dm.ConfigureS3Mirror(&Settings{})
	require.ErrorContains(t, err, "credentials missing")

	// Non-S3 prefixes skip the S3 client entirely.
	dm = &DownloadManager{MirrorPrefix: "https://mirror.example.com"}
	require.NoError(t, dm.ConfigureS3Mirror(&Settings{}))
}

func TestPatchMarkerNameChangesWithPatchContent(t *testing.T) {
	root := t.TempDir()
	patchesDir := filepath.Join(root, "patches")
	require.NoError(t, os.MkdirAll(patchesDir, 0o755))
	patchPath := filepath.Join(patchesDir, "fix.patch")
	require.NoError(t, os.WriteFile(patchPath, []byte("--- a\n+++ b\n"), 0o644))

	dm := &DownloadManager{Layout: NewLayout(root)}
	dep := &Dependency{Name: "dep", Version: "1.0", Patches: []string{"fix.patch"}, PatchVersion: 2}

	name1, err := dm.patchMarkerName(dep)
	require.NoError(t, err)
	require.Contains(t, name1, "patchmarker-version2-1patches")

	// Editing the patch file invalidates the marker name.
	require.NoError(t, os.WriteFile(patchPath, []byte("--- a\n+++ b\n@@ changed\n"), 0o644))
	name2, err := dm.patchMarkerName(dep)
	require.NoError(t, err)
	require.NotEqual(t, name1, name2)

	// No patches means a stable, digest-free name.
	plain, err := dm.patchMarkerName(&Dependency{Name: "plain", Version: "1.0"})
	require.NoError(t, err)
	require.Equal(t, "patchmarker-version0-0patches", plain)
}

func TestDownloadDependencyRequiresChecksum(t *testing.T) {
	root := t.TempDir()
	store, err := LoadChecksums(writeChecksumFile(t, ""))
	require.NoError(t, err)

	dm := &DownloadManager{
		Layout:    NewLayout(root),
		Checksums: store,
		Exec:      NewExecutor(context.Background()),
	}
	dep := &Dependency{Name: "zlib", Version: "1.3.1",
		URLPattern: "https://example.com/zlib-{0}.tar.gz"}
	err = dm.DownloadDependency(dep)
	require.ErrorContains(t, err, "no checksum for zlib-1.3.1.tar.gz")
}

func TestDownloadDependencyMkdirOnly(t *testing.T) {
	root := t.TempDir()
	dm := &DownloadManager{Layout: NewLayout(root)}
	dep := &Dependency{Name: "openssl_fips", Version: "3.0.9", MkdirOnly: true}

	require.NoError(t, dm.DownloadDependency(dep))
	require.True(t, dirExists(dm.Layout.SourcePath(dep)))
}
