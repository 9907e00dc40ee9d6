package tpbuild

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SettingsFileName is the optional per-checkout settings file at the
// third-party root.
const SettingsFileName = ".tpbuild.yaml"

// S3Settings holds credentials for an S3/R2 alternate mirror.
type S3Settings struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Settings are defaults loaded from the settings file; command-line flags
// override them.
type Settings struct {
	// MirrorPrefix is tried after the canonical URL fails. May be an
	// https:// prefix or s3://bucket/prefix.
	MirrorPrefix string `yaml:"mirror_prefix"`

	S3 S3Settings `yaml:"s3"`

	// ExtraAllowedLibPaths extends the shared-library allow-list used by
	// the post-build scan.
	ExtraAllowedLibPaths []string `yaml:"extra_allowed_lib_paths"`

	MakeParallelism int `yaml:"make_parallelism"`
}

// LoadSettings reads the settings file under root. A missing file yields
// zero-value settings; a malformed one is an error.
func LoadSettings(root string) (*Settings, error) {
	s := &Settings{}
	path := filepath.Join(root, SettingsFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	debugf("Loaded settings from %s\n", path)
	return s, nil
}
