package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateOptions(t *testing.T) {
	require.NoError(t, validateOptions(&cmdOptions{}, nil))
	require.NoError(t, validateOptions(&cmdOptions{}, []string{"zlib", "snappy"}))

	err := validateOptions(&cmdOptions{skip: []string{"boost"}}, []string{"zlib"})
	require.ErrorContains(t, err, "--skip is not compatible")

	err = validateOptions(&cmdOptions{toolchain: "llvm17", devtoolset: 11}, nil)
	require.ErrorContains(t, err, "--toolchain cannot be combined")

	err = validateOptions(&cmdOptions{toolchain: "llvm17", compilerPrefix: "/opt/llvm"}, nil)
	require.ErrorContains(t, err, "--toolchain cannot be combined")
	require.NoError(t, validateOptions(&cmdOptions{toolchain: "llvm17"}, nil))

	err = validateOptions(&cmdOptions{devtoolset: 11, compilerFamily: "clang"}, nil)
	require.ErrorContains(t, err, "--devtoolset implies gcc")
	require.NoError(t, validateOptions(&cmdOptions{devtoolset: 11, compilerFamily: "gcc"}, nil))
}

func TestValidateOptionsBuildType(t *testing.T) {
	for _, bt := range []string{"common", "uninstrumented", "clang_uninstrumented", "asan", "tsan"} {
		require.NoError(t, validateOptions(&cmdOptions{buildType: bt}, nil))
	}
	require.Error(t, validateOptions(&cmdOptions{buildType: "release"}, nil))
}

func TestValidateOptionsLTO(t *testing.T) {
	require.NoError(t, validateOptions(&cmdOptions{lto: "thin"}, nil))
	require.NoError(t, validateOptions(&cmdOptions{lto: "full"}, nil))
	require.ErrorContains(t, validateOptions(&cmdOptions{lto: "fat"}, nil), "invalid --lto type")
}

func TestValidateOptionsDevRepos(t *testing.T) {
	require.NoError(t, validateOptions(&cmdOptions{devRepos: []string{"snappy=/home/me/snappy"}}, nil))
	err := validateOptions(&cmdOptions{devRepos: []string{"snappy"}}, nil)
	require.ErrorContains(t, err, "expected name=path")
}
