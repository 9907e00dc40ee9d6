package tpbuild

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func TestDebugfGatedOnVerbose(t *testing.T) {
	origVerbose := Verbose
	defer func() { Verbose = origVerbose }()

	Verbose = true
	out := captureStdout(t, func() { debugf("building %s\n", "zlib") })
	require.Equal(t, "building zlib\n", out)

	Verbose = false
	out = captureStdout(t, func() { debugf("building %s\n", "zlib") })
	require.Empty(t, out)
}

func TestUniqueStrings(t *testing.T) {
	require.Equal(t, []string{"/a", "/b"}, uniqueStrings([]string{"/a", "/b", "/a", "/b"}))
	require.Empty(t, uniqueStrings(nil))
}

func TestRemoveAndRecreate(t *testing.T) {
	dir := t.TempDir() + "/sub"
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(dir+"/old", []byte("x"), 0o644))

	require.NoError(t, removeAndRecreate(dir))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}
