// Package version exposes build identification for the CLI and logs.
package version

import (
	"fmt"
	"runtime"
)

// Semantic version of the module. GitCommit and BuildDate are meant to be
// stamped at build time via -ldflags.
const (
	Major = 0
	Minor = 3
	Patch = 0
)

var (
	GitCommit = ""
	BuildDate = ""
)

// Version returns the semantic version string.
func Version() string {
	return fmt.Sprintf("%d.%d.%d", Major, Minor, Patch)
}

// String returns the full human-readable version line.
func String() string {
	s := fmt.Sprintf("defolio v%s", Version())
	if len(GitCommit) >= 7 {
		s += fmt.Sprintf(" (commit: %s)", GitCommit[:7])
	}
	if BuildDate != "" {
		s += fmt.Sprintf(" (built: %s)", BuildDate)
	}
	return s + fmt.Sprintf(" (go: %s, platform: %s/%s)", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
