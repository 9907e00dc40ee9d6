package tpbuild

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLayoutPaths(t *testing.T) {
	l := NewLayout("/opt/thirdparty")
	dep := &Dependency{Name: "zlib", Version: "1.3.1"}

	require.Equal(t, "/opt/thirdparty/download", l.ArchiveDir())
	require.Equal(t, "/opt/thirdparty/src/zlib-1.3.1", l.SourcePath(dep))
	require.Equal(t, "/opt/thirdparty/build/common/zlib-1.3.1", l.BuildDir(BuildTypeCommon, dep))
	require.Equal(t, "/opt/thirdparty/installed/asan", l.InstallPrefix(BuildTypeASAN))
	require.Equal(t, "/opt/thirdparty/installed/common", l.CommonInstallPrefix())
	require.Equal(t, "/opt/thirdparty/build/tsan/.build-stamp-zlib", l.StampPath(BuildTypeTSAN, dep))

	archivePath, err := l.ArchivePath(dep)
	require.NoError(t, err)
	require.Equal(t, "", archivePath, "no URL means nothing to download")

	dep.URLPattern = "https://example.com/zlib-{0}.tar.gz"
	archivePath, err = l.ArchivePath(dep)
	require.NoError(t, err)
	require.Equal(t, "/opt/thirdparty/download/zlib-1.3.1.tar.gz", archivePath)
}

func TestLayoutPerBuildDirs(t *testing.T) {
	l := NewLayout("/opt/thirdparty")
	l.PerBuildDirs = true
	l.ConfigSignature = "clang17-x86_64"
	dep := &Dependency{Name: "zlib", Version: "1.3.1"}

	require.Equal(t, "/opt/thirdparty/build/clang17-x86_64/common/zlib-1.3.1",
		l.BuildDir(BuildTypeCommon, dep))
	require.Equal(t, "/opt/thirdparty/installed/clang17-x86_64/uninstrumented",
		l.InstallPrefix(BuildTypeUninstrumented))

	// Sources and downloads are shared across configurations.
	require.Equal(t, "/opt/thirdparty/src/zlib-1.3.1", l.SourcePath(dep))
	require.Equal(t, "/opt/thirdparty/download", l.ArchiveDir())
}

func TestLayoutDevRepos(t *testing.T) {
	l := NewLayout("/opt/thirdparty")
	l.DevRepos["zlib"] = "/home/user/zlib-checkout"
	dep := &Dependency{Name: "zlib", Version: "1.3.1"}

	require.True(t, l.IsDevRepo(dep))
	require.Equal(t, "/home/user/zlib-checkout", l.SourcePath(dep))
	require.False(t, l.IsDevRepo(&Dependency{Name: "boost", Version: "1.81.0"}))
}

func TestCleanDependencyKeepsDevRepoSources(t *testing.T) {
	root := t.TempDir()
	checkout := t.TempDir()
	l := NewLayout(root)
	l.DevRepos["zlib"] = checkout

	dep := &Dependency{Name: "zlib", Version: "1.3.1",
		URLPattern: "https://example.com/zlib-{0}.tar.gz"}

	buildDir := l.BuildDir(BuildTypeCommon, dep)
	require.NoError(t, os.MkdirAll(buildDir, 0o755))
	keepMe := filepath.Join(checkout, "file.c")
	require.NoError(t, os.WriteFile(keepMe, []byte("x"), 0o644))

	require.NoError(t, l.CleanDependency(dep, BuildTypes(), false))
	require.False(t, dirExists(buildDir))
	require.True(t, pathExists(keepMe), "dev repo sources must never be wiped")
}

func TestConfigSignature(t *testing.T) {
	c := &CompilerChoice{
		ccIdentity: &CompilerIdentity{Family: FamilyClang, Version: "17.0.6"},
	}
	require.Equal(t, "clang17-"+arch, c.ConfigSignature(""))
	require.Equal(t, "clang17-thin-lto-"+arch, c.ConfigSignature("thin"))

	c.LinuxbrewDir = "/opt/linuxbrew"
	require.Equal(t, "clang17-linuxbrew-"+arch, c.ConfigSignature(""))
}
