package tpbuild

import (
	"fmt"
	"strings"
)

// ExtraDownload is an additional archive fetched and extracted into a
// subdirectory of the dependency's source tree, with optional shell commands
// run inside it afterwards.
type ExtraDownload struct {
	Name       string
	Version    string
	URLPattern string // {0} expands to the version
	DirName    string // relative to the dependency source dir
	PostExec   [][]string
}

// URL expands the pattern with the version.
func (x *ExtraDownload) URL() string {
	return strings.ReplaceAll(x.URLPattern, "{0}", x.Version)
}

// ArchiveName derives the local file name for the extra download.
func (x *ExtraDownload) ArchiveName() (string, error) {
	return MakeArchiveName(x.Name, x.Version, x.URL())
}

// Dependency describes one third-party library: where to get it, how to
// patch it, which passes build it, and hooks that inject per-dependency
// flags. All hook fields are optional; a nil hook contributes nothing.
type Dependency struct {
	Name       string
	Version    string
	URLPattern string // {0} -> version, {1} -> version with dots as underscores
	Group      BuildGroup

	// ArchiveName overrides the derived archive file name. Empty means
	// derive from name/version/URL; dependencies fetched some other way
	// (git checkouts, mkdir-only placeholders) set archiveNameNone.
	ArchiveNameOverride string

	// DirNameOverride replaces the default <name>-<version> source
	// directory name, for archives whose top-level dir is named otherwise.
	DirNameOverride string

	License string

	// CopySources makes the build run inside a copy of the source tree
	// instead of a separate build directory.
	CopySources bool

	// SharedAndStatic builds the dependency twice, once with shared
	// libraries and once static.
	SharedAndStatic bool

	// MkdirOnly dependencies have no archive at all; their source directory
	// is simply created so later steps can populate it.
	MkdirOnly bool

	Patches      []string
	PatchStrip   int
	PatchVersion int
	PostPatch    [][]string

	ExtraDownloads []ExtraDownload

	// Build performs the actual build and install. Required unless
	// MkdirOnly is set.
	Build func(b *Builder) error

	// ShouldBuild can veto the build for the current pass (e.g. Linux-only
	// dependencies). Nil means always build.
	ShouldBuild func(b *Builder) bool

	// Flag hooks; appended after all baseline and compiler-family flags.
	AdditionalCFlags         func(b *Builder) []string
	AdditionalCXXFlags       func(b *Builder) []string
	AdditionalCompilerFlags  func(b *Builder) []string
	AdditionalLDFlags        func(b *Builder) []string
	AdditionalLeadingLDFlags func(b *Builder) []string
	AdditionalAssemblerFlags func(b *Builder) []string
	AdditionalCMakeArgs      func(b *Builder) []string

	// UseCPPFlagsEnvVar routes preprocessor flags through CPPFLAGS instead
	// of folding them into CFLAGS/CXXFLAGS.
	UseCPPFlagsEnvVar bool

	// NeedCompilerWrapper forces the compiler wrapper for this dependency
	// even when not globally enabled.
	NeedCompilerWrapper bool
}

// DownloadURL expands the URL pattern with the dependency version.
func (d *Dependency) DownloadURL() string {
	url := strings.ReplaceAll(d.URLPattern, "{0}", d.Version)
	return strings.ReplaceAll(url, "{1}", strings.ReplaceAll(d.Version, ".", "_"))
}

// ArchiveName returns the local archive file name, or "" for dependencies
// that have nothing to download.
func (d *Dependency) ArchiveName() (string, error) {
	if d.MkdirOnly {
		return "", nil
	}
	if d.ArchiveNameOverride != "" {
		return d.ArchiveNameOverride, nil
	}
	return MakeArchiveName(d.Name, d.Version, d.DownloadURL())
}

// DirName is the name of the dependency's source directory.
func (d *Dependency) DirName() string {
	if d.DirNameOverride != "" {
		return d.DirNameOverride
	}
	return fmt.Sprintf("%s-%s", d.Name, d.Version)
}

// Validate checks structural invariants of the descriptor.
func (d *Dependency) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("dependency has no name")
	}
	if d.Version == "" {
		return fmt.Errorf("dependency %s has no version", d.Name)
	}
	if d.Build == nil && !d.MkdirOnly {
		return fmt.Errorf("dependency %s has no build function", d.Name)
	}
	if d.MkdirOnly && d.URLPattern != "" {
		return fmt.Errorf("dependency %s is mkdir-only but has a download URL", d.Name)
	}
	if !d.MkdirOnly && d.URLPattern == "" {
		return fmt.Errorf("dependency %s has no download URL", d.Name)
	}
	return nil
}
