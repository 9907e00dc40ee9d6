package tpbuild

import (
	"runtime"

	"github.com/gookit/color"
	"golang.org/x/term"
	"os"
)

// Global variables
var (
	Verbose bool
	arch    = runtime.GOARCH

	// Version is overridden at build time via -ldflags.
	Version = "dev"
)

// color helpers
var (
	colInfo    = color.Info // style provided by gookit/color
	colWarn    = color.Warn
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
)

// OnLinux reports whether this is a Linux build host.
func OnLinux() bool { return runtime.GOOS == "linux" }

// OnMacOS reports whether this is a macOS build host.
func OnMacOS() bool { return runtime.GOOS == "darwin" }

// stdoutIsTerminal reports whether stdout is a TTY; progress bars and
// color are suppressed when it is not.
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func init() {
	if !stdoutIsTerminal() {
		color.Disable()
	}
}
