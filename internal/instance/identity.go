// Package instance derives a stable identity for the hosting application
// instance. Multiple instances share one machine, one filesystem and one OS
// user; the identity string is what keeps their port allocations apart.
package instance

import (
	"os"
	"path/filepath"
	"strings"
)

// For mocking in tests
var osArgs = func() []string { return os.Args }
var osGetenv = os.Getenv
var osUserHomeDir = os.UserHomeDir
var osStat = os.Stat

// basedirEnvVar overrides discovery when the host process was launched
// without an explicit --basedir argument.
const basedirEnvVar = "RTCBRIDGE_BASEDIR"

// defaultBasedirName is the host application's conventional data directory.
const defaultBasedirName = ".octoprint"

// Identity is the stable per-instance identity string. It seeds deterministic
// port selection; it need not be globally unique, but the same instance must
// derive the same value across restarts.
type Identity string

// String makes Identity satisfy the fmt.Stringer interface.
func (id Identity) String() string {
	return string(id)
}

// Derive determines the instance identity from, in order: a --basedir
// command-line argument, the RTCBRIDGE_BASEDIR environment variable, and the
// default host data directory if it exists. An empty Identity is returned when
// none of these apply; allocation still works, every such instance just maps
// to the same slot.
func Derive() Identity {
	if basedir := basedirFromArgs(osArgs()); basedir != "" {
		return Identity(basedir)
	}

	if basedir := osGetenv(basedirEnvVar); basedir != "" {
		return Identity(basedir)
	}

	if homeDir, err := osUserHomeDir(); err == nil {
		defaultPath := filepath.Join(homeDir, defaultBasedirName)
		if _, err := osStat(defaultPath); err == nil {
			return Identity(defaultPath)
		}
	}

	return ""
}

// basedirFromArgs scans an argv-style slice for "--basedir <path>" or
// "--basedir=<path>".
func basedirFromArgs(args []string) string {
	for i, arg := range args {
		if arg == "--basedir" && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, "--basedir=") {
			return strings.SplitN(arg, "=", 2)[1]
		}
	}
	return ""
}
