// Package version holds build metadata stamped in with -ldflags, e.g.
//
//	-X github.com/Prajanya-g/lvl.ai/internal/version.Version=v0.3.0
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// GoVersion returns the Go runtime version string.
func GoVersion() string { return runtime.Version() }

// String renders the version block printed by each service's version command.
func String(service string) string {
	return fmt.Sprintf("%s %s\n  commit:     %s\n  built:      %s\n  go version: %s",
		service, Version, GitCommit, BuildTime, GoVersion())
}
