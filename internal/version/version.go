// Package version identifies the build. The allocator is deployed from
// HEAD rather than tagged releases, so builds are named by commit.
package version

import "fmt"

// Set at build time via -ldflags.
var (
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns the human-readable build identifier.
func String() string {
	commit := Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("automaton %s (built %s)", commit, BuildTime)
}
