package tpbuild

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadSettingsMissingFile(t *testing.T) {
	s, err := LoadSettings(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, &Settings{}, s)
}

func TestLoadSettings(t *testing.T) {
	root := t.TempDir()
	content := `
mirror_prefix: s3://archives/thirdparty
s3:
  endpoint: https://accountid.r2.cloudflarestorage.com
  access_key_id: AKID
  secret_access_key: SECRET
extra_allowed_lib_paths:
  - /opt/rh/devtoolset-11/root/usr/lib64
make_parallelism: 8
`
	require.NoError(t, os.WriteFile(filepath.Join(root, SettingsFileName), []byte(content), 0o644))

	s, err := LoadSettings(root)
	require.NoError(t, err)
	require.Equal(t, "s3://archives/thirdparty", s.MirrorPrefix)
	require.Equal(t, "AKID", s.S3.AccessKeyID)
	require.Equal(t, []string{"/opt/rh/devtoolset-11/root/usr/lib64"}, s.ExtraAllowedLibPaths)
	require.Equal(t, 8, s.MakeParallelism)
}

func TestLoadSettingsMalformed(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(root, SettingsFileName), []byte("mirror_prefix: [unclosed"), 0o644))
	_, err := LoadSettings(root)
	require.ErrorContains(t, err, "failed to parse")
}
