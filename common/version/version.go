// Package version holds build metadata injected with -ldflags.
package version

import "fmt"

var (
	// Version is the semantic version of the copilot binaries.
	Version = "v0.0.0-dev"

	// GitCommit is the commit the binaries were built from.
	GitCommit = "unknown"

	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// Info returns a one-line description, used by `copilotctl --version` and the
// /status endpoint.
func Info() string {
	return fmt.Sprintf("%s (%s) built at %s", Version, GitCommit, BuildTime)
}
