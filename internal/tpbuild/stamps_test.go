package tpbuild

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShouldRebuild(t *testing.T) {
	tests := []struct {
		name                                      string
		srcExists, buildDirExists, stampMatches, force bool
		want                                      bool
	}{
		{"up to date", true, true, true, false, false},
		{"force wins", true, true, true, true, true},
		{"missing sources", false, true, true, false, true},
		{"missing build dir", true, false, true, false, true},
		{"stale stamp", true, true, false, false, true},
		{"everything missing", false, false, false, false, true},
	}
	for _, tt := range tests {
		got := shouldRebuild(tt.srcExists, tt.buildDirExists, tt.stampMatches, tt.force)
		require.Equal(t, tt.want, got, tt.name)
	}
}

func TestReadWriteStamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".build-stamp-zlib")

	// Missing stamp reads as empty, not as an error.
	stamp, err := ReadStamp(path)
	require.NoError(t, err)
	require.Equal(t, "", stamp)

	const content = "git_commit_sha1=abc123\n"
	require.NoError(t, WriteStamp(path, content))
	stamp, err = ReadStamp(path)
	require.NoError(t, err)
	require.Equal(t, content, stamp)

	// No temp file residue from the atomic write.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestStampInputPathsTrackDependencyDefinition(t *testing.T) {
	dep := &Dependency{Name: "zlib", Version: "1.3.1"}
	paths := stampInputPaths(dep)
	require.Contains(t, paths, filepath.Join("internal", "tpbuild", "deps", "zlib.go"))
	require.Contains(t, paths, filepath.Join("internal", "tpbuild", "builder.go"))
	require.Contains(t, paths, "main.go")

	// Hyphenated dependency names map to underscored file names.
	hyphenated := &Dependency{Name: "cassandra-cpp-driver", Version: "2.9.0"}
	require.Contains(t, stampInputPaths(hyphenated),
		filepath.Join("internal", "tpbuild", "deps", "cassandra_cpp_driver.go"))
}
