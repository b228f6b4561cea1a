package subaru

import (
	"errors"
	"fmt"

	"github.com/gookit/color"
)

// Global variables
var (
	rootDir        string
	CacheDir       string
	IndexCache     string
	Installed      string
	ConfigFile     = "/etc/subaru.conf"
	ReposFile      = "/etc/subaru/repos.toml"
	Debug          bool
	Verbose        bool
	version        = "dev"     // overridden at build time
	buildDate      = "unknown" // overridden at build time
	MirrorURL      string
	errNotFound    = errors.New("package not found")
	errUnavailable = errors.New("file list unavailable")
)

// color helpers
var (
	colInfo    = color.Info
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
	colNote    = color.Tag("notice")
)

// debugf prints debug messages when Debug is true
func debugf(format string, args ...any) {
	if Debug {
		fmt.Printf(format, args...)
	}
}
