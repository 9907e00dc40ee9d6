package tpbuild

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// EnvScope applies a set of environment variables and restores the previous
// values (including unset-ness) when released. Always release with defer so
// one dependency's environment never leaks into the next.
type EnvScope struct {
	saved map[string]*string
}

// PushEnv sets every variable in vars, remembering prior state. An empty
// value unsets the variable.
func PushEnv(vars map[string]string) *EnvScope {
	s := &EnvScope{saved: make(map[string]*string, len(vars))}
	for k, v := range vars {
		if old, ok := os.LookupEnv(k); ok {
			oldCopy := old
			s.saved[k] = &oldCopy
		} else {
			s.saved[k] = nil
		}
		if v == "" {
			os.Unsetenv(k)
		} else {
			os.Setenv(k, v)
		}
	}
	return s
}

// Restore puts the environment back exactly as it was.
func (s *EnvScope) Restore() {
	for k, old := range s.saved {
		if old == nil {
			os.Unsetenv(k)
		} else {
			os.Setenv(k, *old)
		}
	}
}

// envScriptName is the environment dump written into every build directory
// so a failed build can be reproduced by hand.
const envScriptName = "dependency_env.sh"

// writeEnvScript dumps vars as a sourceable shell script in buildDir.
func writeEnvScript(buildDir string, vars map[string]string) error {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("# Environment used for this build. Source this file to reproduce.\n")
	for _, k := range keys {
		fmt.Fprintf(&sb, "export %s=%s\n", k, shellQuote(vars[k]))
	}
	return os.WriteFile(filepath.Join(buildDir, envScriptName), []byte(sb.String()), 0o644)
}

// shellQuote single-quotes a value for POSIX shells.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
