package version

import "fmt"

// Set via -ldflags at build time.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = ""
)

// GetInfo returns a one-line build description.
func GetInfo() string {
	if BuildTime == "" {
		return fmt.Sprintf("%s (%s)", Version, CommitSHA)
	}
	return fmt.Sprintf("%s (%s, built %s)", Version, CommitSHA, BuildTime)
}
