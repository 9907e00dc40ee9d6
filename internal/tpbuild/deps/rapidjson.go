package deps

import (
	"path/filepath"

	"tpbuild/internal/tpbuild"
)

// RapidJSON is header-only; installing it is a plain copy.
func RapidJSON() *tpbuild.Dependency {
	d := &tpbuild.Dependency{
		Name:       "rapidjson",
		Version:    "1.1.0",
		URLPattern: "https://github.com/Tencent/rapidjson/archive/v{0}.zip",
		Group:      tpbuild.BuildGroupCommon,
	}
	d.Build = func(b *tpbuild.Builder) error {
		srcInclude := filepath.Join(b.SourceDir(d), "include", "rapidjson")
		return b.Exec.RunInDir("", nil, "cp", "-R", srcInclude, b.PrefixInclude())
	}
	return d
}
