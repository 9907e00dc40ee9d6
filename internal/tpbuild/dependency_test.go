package tpbuild

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDependencyDownloadURL(t *testing.T) {
	d := &Dependency{
		Name:       "boost",
		Version:    "1.81.0",
		URLPattern: "https://archives.boost.io/release/{0}/source/boost_{1}.tar.bz2",
	}
	require.Equal(t,
		"https://archives.boost.io/release/1.81.0/source/boost_1_81_0.tar.bz2",
		d.DownloadURL())
}

func TestDependencyDirName(t *testing.T) {
	d := &Dependency{Name: "zlib", Version: "1.3.1"}
	require.Equal(t, "zlib-1.3.1", d.DirName())

	d.DirNameOverride = "zlib-source"
	require.Equal(t, "zlib-source", d.DirName())
}

func TestDependencyArchiveName(t *testing.T) {
	d := &Dependency{
		Name:       "hiredis",
		Version:    "0.13.3",
		URLPattern: "https://github.com/redis/hiredis/archive/v{0}.zip",
	}
	name, err := d.ArchiveName()
	require.NoError(t, err)
	require.Equal(t, "hiredis-0.13.3.zip", name)

	d.ArchiveNameOverride = "custom.tar.gz"
	name, err = d.ArchiveName()
	require.NoError(t, err)
	require.Equal(t, "custom.tar.gz", name)

	mkdirOnly := &Dependency{Name: "openssl_fips", Version: "3.0.9", MkdirOnly: true}
	name, err = mkdirOnly.ArchiveName()
	require.NoError(t, err)
	require.Equal(t, "", name)
}

func TestDependencyValidate(t *testing.T) {
	build := func(b *Builder) error { return nil }

	valid := &Dependency{Name: "zlib", Version: "1.3.1", URLPattern: "https://x/{0}.tar.gz", Build: build}
	require.NoError(t, valid.Validate())

	require.Error(t, (&Dependency{Version: "1.0", URLPattern: "u", Build: build}).Validate())
	require.Error(t, (&Dependency{Name: "x", URLPattern: "u", Build: build}).Validate())
	require.Error(t, (&Dependency{Name: "x", Version: "1.0", URLPattern: "u"}).Validate())
	require.Error(t, (&Dependency{Name: "x", Version: "1.0", Build: build}).Validate())

	// Mkdir-only dependencies need neither a URL nor a build function.
	require.NoError(t, (&Dependency{Name: "x", Version: "1.0", MkdirOnly: true}).Validate())
	require.Error(t, (&Dependency{Name: "x", Version: "1.0", MkdirOnly: true, URLPattern: "u"}).Validate())
}

func TestExtraDownloadURL(t *testing.T) {
	x := &ExtraDownload{
		Name:       "cmake",
		Version:    "3.25.1",
		URLPattern: "https://github.com/Kitware/CMake/releases/download/v{0}/cmake-{0}.tar.gz",
		DirName:    "cmake",
	}
	require.Equal(t,
		"https://github.com/Kitware/CMake/releases/download/v3.25.1/cmake-3.25.1.tar.gz",
		x.URL())
	name, err := x.ArchiveName()
	require.NoError(t, err)
	require.Equal(t, "cmake-3.25.1.tar.gz", name)
}
