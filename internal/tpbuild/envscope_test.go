package tpbuild

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushEnvRestoresPreviousState(t *testing.T) {
	t.Setenv("TPBUILD_TEST_SET", "original")
	os.Unsetenv("TPBUILD_TEST_UNSET")

	scope := PushEnv(map[string]string{
		"TPBUILD_TEST_SET":   "overridden",
		"TPBUILD_TEST_UNSET": "now-set",
		"TPBUILD_TEST_CLEAR": "",
	})
	require.Equal(t, "overridden", os.Getenv("TPBUILD_TEST_SET"))
	require.Equal(t, "now-set", os.Getenv("TPBUILD_TEST_UNSET"))
	_, ok := os.LookupEnv("TPBUILD_TEST_CLEAR")
	require.False(t, ok, "empty value must unset the variable")

	scope.Restore()
	require.Equal(t, "original", os.Getenv("TPBUILD_TEST_SET"))
	_, ok = os.LookupEnv("TPBUILD_TEST_UNSET")
	require.False(t, ok, "variable absent before the scope must be absent after")
}

func TestWriteEnvScript(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeEnvScript(dir, map[string]string{
		"CXXFLAGS": "-O3 -fPIC",
		"CC":       "/usr/bin/clang",
		"TRICKY":   "it's quoted",
	}))

	data, err := os.ReadFile(filepath.Join(dir, envScriptName))
	require.NoError(t, err)
	script := string(data)

	require.Contains(t, script, "export CC='/usr/bin/clang'\n")
	require.Contains(t, script, "export CXXFLAGS='-O3 -fPIC'\n")
	require.Contains(t, script, `export TRICKY='it'\''s quoted'`)

	// Variables are emitted in sorted order for stable diffs.
	require.Less(t, strings.Index(script, "export CC="), strings.Index(script, "export CXXFLAGS="))
}

func TestShellQuote(t *testing.T) {
	require.Equal(t, "'plain'", shellQuote("plain"))
	require.Equal(t, `'a'\''b'`, shellQuote("a'b"))
	require.Equal(t, "''", shellQuote(""))
}
