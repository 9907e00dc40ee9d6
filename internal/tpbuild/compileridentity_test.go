package tpbuild

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const clangBanner = `clang version 17.0.6 (https://github.com/llvm/llvm-project.git 6009708b4367171ccdbf4b5905cb6a803753fe18)
Target: x86_64-unknown-linux-gnu
Thread model: posix
InstalledDir: /opt/llvm/bin`

const gccBanner = `Using built-in specs.
COLLECT_GCC=gcc
Target: x86_64-redhat-linux
gcc version 11.2.1 20220127 (Red Hat 11.2.1-9) (GCC)`

const homebrewGCCBanner = `gcc-8 (Homebrew GCC 8.4.0) 8.4.0
Copyright (C) 2018 Free Software Foundation, Inc.`

func TestParseCompilerBanner(t *testing.T) {
	id, err := ParseCompilerBanner(clangBanner)
	require.NoError(t, err)
	require.Equal(t, FamilyClang, id.Family)
	require.Equal(t, "17.0.6", id.Version)
	require.Equal(t, 17, id.MajorVersion())

	id, err = ParseCompilerBanner(gccBanner)
	require.NoError(t, err)
	require.Equal(t, FamilyGCC, id.Family)
	require.Equal(t, "11.2.1", id.Version)
	require.Equal(t, 11, id.MajorVersion())

	id, err = ParseCompilerBanner(homebrewGCCBanner)
	require.NoError(t, err)
	require.Equal(t, FamilyGCC, id.Family)
	require.Equal(t, "8.4.0", id.Version)

	_, err = ParseCompilerBanner("cc: some unrelated output")
	require.ErrorIs(t, err, ErrUnidentifiableCompiler)
}

func TestCompilerIdentityCompatibleWith(t *testing.T) {
	a := &CompilerIdentity{Family: FamilyClang, Version: "17.0.6"}
	require.True(t, a.CompatibleWith(&CompilerIdentity{Family: FamilyClang, Version: "17.0.6"}))
	require.False(t, a.CompatibleWith(&CompilerIdentity{Family: FamilyClang, Version: "17.0.5"}))
	require.False(t, a.CompatibleWith(&CompilerIdentity{Family: FamilyGCC, Version: "17.0.6"}))
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"7.0.0", "7.0.0", 0},
		{"7.0", "7.0.0", 0},
		{"6.5.0", "7.0.0", -1},
		{"11.2.1", "7.0.0", 1},
		{"10", "9.9.9", 1},
		{"7.0.1", "7.0", 1},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, compareVersions(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}
