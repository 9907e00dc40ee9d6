package deps

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tpbuild/internal/tpbuild"
)

func Snappy() *tpbuild.Dependency {
	d := &tpbuild.Dependency{
		Name:         "snappy",
		Version:      "1.1.3",
		URLPattern:   "https://github.com/google/snappy/archive/{0}.tar.gz",
		Group:        tpbuild.BuildGroupInstrumented,
		CopySources:  true,
		PatchVersion: 1,
		Patches:      []string{"snappy-define-guard-macro.patch"},
		PatchStrip:   1,
		PostPatch:    [][]string{{"autoreconf", "-fvi"}},
	}
	d.Build = func(b *tpbuild.Builder) error {
		return b.BuildWithConfigure(d, tpbuild.ConfigureOptions{
			ExtraArgs:     []string{"--with-pic"},
			PostConfigure: disableLzo2InSnappyTest,
		})
	}
	return d
}

// disableLzo2InSnappyTest keeps the snappy unit test from linking liblzo2,
// which configure sometimes picks up from a system directory.
func disableLzo2InSnappyTest(b *tpbuild.Builder) error {
	configPath := filepath.Join(b.BuildDir(), "config.h")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("cannot read snappy config.h: %w", err)
	}
	var kept []string
	removed := false
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "#define HAVE_LIBLZO2 1" {
			removed = true
			continue
		}
		kept = append(kept, line)
	}
	if !removed {
		return nil
	}
	return os.WriteFile(configPath, []byte(strings.Join(kept, "\n")), 0o644)
}
