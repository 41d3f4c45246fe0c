// Package version carries build metadata injected via -ldflags.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String returns a single-line description for startup logging.
func String() string {
	return fmt.Sprintf("driftsight %s (%s, built %s)", Version, GitSHA, BuildTime)
}
