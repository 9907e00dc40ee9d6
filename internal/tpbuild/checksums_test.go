package tpbuild

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	emptyFileSHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	helloSHA256     = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
)

func writeChecksumFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ChecksumFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadChecksums(t *testing.T) {
	path := writeChecksumFile(t, strings.Join([]string{
		"# comment line",
		"",
		emptyFileSHA256 + "  zlib-1.3.1.tar.gz",
		helloSHA256 + "  boost_1_81_0.tar.bz2",
	}, "\n") + "\n")

	store, err := LoadChecksums(path)
	require.NoError(t, err)

	sum, ok := store.Get("zlib-1.3.1.tar.gz")
	require.True(t, ok)
	require.Equal(t, emptyFileSHA256, sum)

	_, ok = store.Get("unknown.tar.gz")
	require.False(t, ok)
}

func TestLoadChecksumsRejectsMalformedLines(t *testing.T) {
	_, err := LoadChecksums(writeChecksumFile(t, "just-one-field\n"))
	require.ErrorContains(t, err, "expected")

	_, err = LoadChecksums(writeChecksumFile(t, "nothex  file.tar.gz\n"))
	require.ErrorContains(t, err, "invalid SHA-256")
}

func TestChecksumStoreAppend(t *testing.T) {
	path := writeChecksumFile(t, emptyFileSHA256+"  existing.tar.gz\n")
	store, err := LoadChecksums(path)
	require.NoError(t, err)

	require.Error(t, store.Append("existing.tar.gz", helloSHA256))
	require.Error(t, store.Append("new.tar.gz", "nothex"))
	require.NoError(t, store.Append("new.tar.gz", strings.ToUpper(helloSHA256)))

	// The entry is visible in memory and survives a reload.
	sum, ok := store.Get("new.tar.gz")
	require.True(t, ok)
	require.Equal(t, helloSHA256, sum)

	reloaded, err := LoadChecksums(path)
	require.NoError(t, err)
	sum, ok = reloaded.Get("new.tar.gz")
	require.True(t, ok)
	require.Equal(t, helloSHA256, sum)
}

func TestChecksumStoreConcurrentAppend(t *testing.T) {
	path := writeChecksumFile(t, "")
	store, err := LoadChecksums(path)
	require.NoError(t, err)

	// Prefetch workers append checksums from several goroutines at once.
	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("dep-%d.tar.gz", i)
			if err := store.Append(name, emptyFileSHA256); err != nil {
				errs <- err
				return
			}
			if _, ok := store.Get(name); !ok {
				errs <- fmt.Errorf("appended checksum for %s not visible", name)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	reloaded, err := LoadChecksums(path)
	require.NoError(t, err)
	for i := 0; i < workers; i++ {
		sum, ok := reloaded.Get(fmt.Sprintf("dep-%d.tar.gz", i))
		require.True(t, ok)
		require.Equal(t, emptyFileSHA256, sum)
	}
}

func TestVerifyFileChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	require.NoError(t, VerifyFileChecksum(path, helloSHA256))
	require.NoError(t, VerifyFileChecksum(path, strings.ToUpper(helloSHA256)))

	err := VerifyFileChecksum(path, emptyFileSHA256)
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestComputeSHA256(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	sum, err := ComputeSHA256(path)
	require.NoError(t, err)
	require.Equal(t, emptyFileSHA256, sum)
}
