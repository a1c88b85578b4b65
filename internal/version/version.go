// Package version carries build metadata injected at link time:
//
//	go build -ldflags "-X git.home.luguber.info/inful/sitebuilder/internal/version.Version=v1.2.0"
package version

import "fmt"

// Version is the release version.
var Version = "dev"

// Build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders version, commit and build time for --version.
func String() string {
	return fmt.Sprintf("sitebuilder %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
