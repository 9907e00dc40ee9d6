package tpbuild

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/require"
)

func TestSplitArchiveName(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		ext     string
		wantErr bool
	}{
		{name: "zlib-1.3.1.tar.gz", base: "zlib-1.3.1", ext: ".tar.gz"},
		{name: "boost_1_81_0.tar.bz2", base: "boost_1_81_0", ext: ".tar.bz2"},
		{name: "llvm-project-17.0.6.src.tar.xz", base: "llvm-project-17.0.6.src", ext: ".tar.xz"},
		{name: "icu4c-70_1-src.tgz", base: "icu4c-70_1-src", ext: ".tgz"},
		{name: "hiredis-0.13.3.zip", base: "hiredis-0.13.3", ext: ".zip"},
		{name: "archive.tar.zst", base: "archive", ext: ".tar.zst"},
		{name: "README.md", wantErr: true},
	}
	for _, tt := range tests {
		base, ext, err := SplitArchiveName(tt.name)
		if tt.wantErr {
			require.Error(t, err, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		require.Equal(t, tt.base, base)
		require.Equal(t, tt.ext, ext)
	}
}

func TestMakeArchiveName(t *testing.T) {
	name, err := MakeArchiveName("zlib", "1.3.1",
		"https://github.com/madler/zlib/releases/download/v1.3.1/zlib-1.3.1.tar.gz")
	require.NoError(t, err)
	require.Equal(t, "zlib-1.3.1.tar.gz", name)

	// The extension comes from the URL, not a default.
	name, err = MakeArchiveName("hiredis", "0.13.3", "https://github.com/redis/hiredis/archive/v0.13.3.zip")
	require.NoError(t, err)
	require.Equal(t, "hiredis-0.13.3.zip", name)

	// No recognizable extension falls back to .tar.gz.
	name, err = MakeArchiveName("dep", "1.0", "https://example.com/download?id=42")
	require.NoError(t, err)
	require.Equal(t, "dep-1.0.tar.gz", name)
}

// writeTestTarball creates a .tar.gz with a single top-level directory.
func writeTestTarball(t *testing.T, path, topDir string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	gz := pgzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: topDir + "/", Typeflag: tar.TypeDir, Mode: 0o755,
	}))
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: topDir + "/" + name, Typeflag: tar.TypeReg,
			Mode: 0o644, Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
}

func TestExtractArchiveStripsTopLevelDir(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "dep-1.0.tar.gz")
	writeTestTarball(t, archivePath, "dep-1.0-release", map[string]string{
		"configure":    "#!/bin/sh\n",
		"src/main.c":   "int main() { return 0; }\n",
		"include/x.h":  "#pragma once\n",
		".hidden-file": "ignored for top-level counting\n",
	})

	destDir := filepath.Join(dir, "src", "dep-1.0")
	require.NoError(t, extractArchive(archivePath, destDir))

	data, err := os.ReadFile(filepath.Join(destDir, "src", "main.c"))
	require.NoError(t, err)
	require.Contains(t, string(data), "int main")

	// The temp extraction dir must be gone.
	entries, err := os.ReadDir(filepath.Join(dir, "src"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestSingleTopLevelEntry(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "only-dir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".marker"), nil, 0o644))

	top, err := singleTopLevelEntry(dir)
	require.NoError(t, err)
	require.Equal(t, "only-dir", top)

	require.NoError(t, os.Mkdir(filepath.Join(dir, "second"), 0o755))
	_, err = singleTopLevelEntry(dir)
	require.ErrorContains(t, err, "expected exactly one top-level entry")
}
