package tpbuild

import (
	"crypto/sha256"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// stampInputPaths are the repo-relative files whose state is folded into a
// dependency's build stamp: the dependency's own definition plus the shared
// build logic. Changing any of them forces a rebuild of affected deps.
func stampInputPaths(dep *Dependency) []string {
	fileName := strings.ReplaceAll(dep.Name, "-", "_") + ".go"
	return []string{
		filepath.Join("internal", "tpbuild", "deps", fileName),
		filepath.Join("internal", "tpbuild", "builder.go"),
		"main.go",
	}
}

// BuildStamp captures the exact state of a dependency's build inputs: the
// last commit touching them plus digests of any uncommitted changes.
func BuildStamp(repoRoot string, dep *Dependency) (string, error) {
	paths := stampInputPaths(dep)

	gitArgs := append([]string{"log", "--pretty=%H", "-n", "1", "--"}, paths...)
	commit, err := runGit(repoRoot, gitArgs...)
	if err != nil {
		return "", err
	}

	diff, err := runGit(repoRoot, append([]string{"diff", "--"}, paths...)...)
	if err != nil {
		return "", err
	}
	cachedDiff, err := runGit(repoRoot, append([]string{"diff", "--cached", "--"}, paths...)...)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "git_commit_sha1=%s\n", strings.TrimSpace(commit))
	fmt.Fprintf(&sb, "git_diff_sha256=%x\n", sha256.Sum256([]byte(diff)))
	fmt.Fprintf(&sb, "git_staged_diff_sha256=%x\n", sha256.Sum256([]byte(cachedDiff)))
	return sb.String(), nil
}

func runGit(repoRoot string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = repoRoot
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

// ReadStamp returns the saved stamp, or "" when none exists.
func ReadStamp(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// WriteStamp saves the stamp after a successful build.
func WriteStamp(path, stamp string) error {
	if err := mkdirIfMissing(filepath.Dir(path)); err != nil {
		return err
	}
	return writeFileAtomic(path, []byte(stamp), 0o644)
}

// shouldRebuild decides whether a dependency must be rebuilt for a pass. It
// is a pure function of the observed state so the decision logic can be
// verified exhaustively.
func shouldRebuild(srcExists, buildDirExists, stampMatches, force bool) bool {
	if force {
		return true
	}
	if !srcExists || !buildDirExists {
		return true
	}
	return !stampMatches
}

// NeedsRebuild evaluates the rebuild decision for one dependency and pass,
// returning the fresh stamp so a successful build can record it.
func (b *Builder) NeedsRebuild(t BuildType, dep *Dependency) (bool, string, error) {
	stamp, err := BuildStamp(b.Layout.Root, dep)
	if err != nil {
		return false, "", err
	}
	saved, err := ReadStamp(b.Layout.StampPath(t, dep))
	if err != nil {
		return false, "", err
	}
	srcExists := pathExists(b.Layout.SourcePath(dep))
	buildDirExists := dirExists(b.Layout.BuildDir(t, dep)) || dep.CopySources
	rebuild := shouldRebuild(srcExists, buildDirExists, saved == stamp, b.Force)
	if !rebuild {
		debugf("%s (%s) is up to date\n", dep.Name, t)
	}
	return rebuild, stamp, nil
}
