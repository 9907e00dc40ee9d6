package tpbuild

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildEnvRoutesThroughWrapper(t *testing.T) {
	b := newTestBuilder(t, FamilyGCC)
	b.buildType = BuildTypeCommon

	plain := &Dependency{Name: "zlib", Version: "1.3.1"}
	env := b.buildEnv(plain)
	require.NotContains(t, env["CC"], "cc-wrapper")
	require.NotContains(t, env, "TPBUILD_REAL_CC")

	wrapped := &Dependency{Name: "krb5", Version: "1.21.3", NeedCompilerWrapper: true}
	env = b.buildEnv(wrapped)
	require.Equal(t, filepath.Join(b.Layout.Root, "wrappers", "cc-wrapper"), env["CC"])
	require.Equal(t, filepath.Join(b.Layout.Root, "wrappers", "cxx-wrapper"), env["CXX"])
	require.Contains(t, env, "TPBUILD_REAL_CC")
	require.Contains(t, env, "TPBUILD_REAL_CXX")

	// Compile-command collection forces the wrapper for every dependency;
	// the wrapper is what writes the fragments.
	b.CompileCommands = true
	env = b.buildEnv(plain)
	require.Equal(t, filepath.Join(b.Layout.Root, "wrappers", "cc-wrapper"), env["CC"])
}
