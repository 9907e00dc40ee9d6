package tpbuild

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout maps dependencies to their on-disk locations under the third-party
// root: downloaded archives, extracted sources, per-build-type build
// directories, install prefixes and build stamps.
type Layout struct {
	Root string

	// ConfigSignature tags build and install directories with the active
	// compiler configuration (e.g. "clang15-x86_64") when PerBuildDirs is
	// set, so several configurations can coexist under one root.
	ConfigSignature string
	PerBuildDirs    bool

	// DevRepos maps a dependency name to a local source checkout that
	// replaces the extracted archive.
	DevRepos map[string]string
}

// NewLayout returns a Layout rooted at root.
func NewLayout(root string) *Layout {
	return &Layout{Root: root, DevRepos: make(map[string]string)}
}

// ArchiveDir is the download cache for source archives.
func (l *Layout) ArchiveDir() string { return filepath.Join(l.Root, "download") }

// SourceRoot holds the extracted source trees.
func (l *Layout) SourceRoot() string { return filepath.Join(l.Root, "src") }

// BuildRoot holds the per-build-type build trees.
func (l *Layout) BuildRoot() string {
	if l.PerBuildDirs && l.ConfigSignature != "" {
		return filepath.Join(l.Root, "build", l.ConfigSignature)
	}
	return filepath.Join(l.Root, "build")
}

// InstalledRoot holds the per-build-type install prefixes.
func (l *Layout) InstalledRoot() string {
	if l.PerBuildDirs && l.ConfigSignature != "" {
		return filepath.Join(l.Root, "installed", l.ConfigSignature)
	}
	return filepath.Join(l.Root, "installed")
}

// ToolsDir holds downloaded toolchains.
func (l *Layout) ToolsDir() string { return filepath.Join(l.Root, "tools") }

// ArchivePath is where a dependency's archive is stored, or "" when the
// dependency has nothing to download.
func (l *Layout) ArchivePath(dep *Dependency) (string, error) {
	name, err := dep.ArchiveName()
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", nil
	}
	return filepath.Join(l.ArchiveDir(), name), nil
}

// SourcePath is the dependency's source directory. A dev-repo mapping wins
// over the extracted archive location.
func (l *Layout) SourcePath(dep *Dependency) string {
	if dir, ok := l.DevRepos[dep.Name]; ok {
		return dir
	}
	return filepath.Join(l.SourceRoot(), dep.DirName())
}

// IsDevRepo reports whether the dependency's sources come from a local
// checkout. Dev repos are never wiped or re-extracted.
func (l *Layout) IsDevRepo(dep *Dependency) bool {
	_, ok := l.DevRepos[dep.Name]
	return ok
}

// BuildDir is the out-of-tree build directory for one dependency and build
// type.
func (l *Layout) BuildDir(t BuildType, dep *Dependency) string {
	return filepath.Join(l.BuildRoot(), t.DirName(), dep.DirName())
}

// InstallPrefix is the shared install prefix of a build type.
func (l *Layout) InstallPrefix(t BuildType) string {
	return filepath.Join(l.InstalledRoot(), t.DirName())
}

// CommonInstallPrefix is the prefix of the common pass, used as an extra
// include/lib root by all other passes.
func (l *Layout) CommonInstallPrefix() string {
	return l.InstallPrefix(BuildTypeCommon)
}

// StampPath is the build-stamp file recording the inputs of the last
// successful build of a dependency under a build type.
func (l *Layout) StampPath(t BuildType, dep *Dependency) string {
	return filepath.Join(l.BuildRoot(), t.DirName(), ".build-stamp-"+dep.Name)
}

// PrepareDirs creates the top-level directories.
func (l *Layout) PrepareDirs() error {
	for _, dir := range []string{l.ArchiveDir(), l.SourceRoot(), l.BuildRoot(), l.InstalledRoot()} {
		if err := mkdirIfMissing(dir); err != nil {
			return err
		}
	}
	return nil
}

// CleanDependency removes everything derived for one dependency: stamps,
// build dirs, install markers and (unless it is a dev repo) the source tree.
// With archives set, the downloaded archive goes too.
func (l *Layout) CleanDependency(dep *Dependency, buildTypes []BuildType, archives bool) error {
	for _, t := range buildTypes {
		for _, path := range []string{l.StampPath(t, dep), l.BuildDir(t, dep)} {
			debugf("Removing %s\n", path)
			if err := os.RemoveAll(path); err != nil {
				return fmt.Errorf("failed to remove %s: %w", path, err)
			}
		}
	}
	if !l.IsDevRepo(dep) {
		if err := os.RemoveAll(l.SourcePath(dep)); err != nil {
			return err
		}
	}
	if archives {
		archivePath, err := l.ArchivePath(dep)
		if err != nil {
			return err
		}
		if archivePath != "" {
			if err := os.RemoveAll(archivePath); err != nil {
				return err
			}
		}
	}
	return nil
}
