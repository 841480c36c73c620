// Package version reports the binary's build identity.
package version

import (
	"fmt"
	"runtime/debug"
)

// Release builds override these via ldflags, e.g.
//
//	go build -ldflags "-X stashdb/version.Tag=v1.2.0"
//
// Anything left empty is filled from the VCS metadata Go embeds, falling
// back to "unknown" for builds outside a checkout.
var (
	Tag       = "dev"
	GitCommit = ""
	BuildTime = ""
)

// String returns a one-line description of this build.
func String() string {
	commit, built := GitCommit, BuildTime
	if commit == "" || built == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" && commit == "" && len(s.Value) >= 8 {
					commit = s.Value[:8]
				}
				if s.Key == "vcs.time" && built == "" {
					built = s.Value
				}
			}
		}
	}
	if commit == "" {
		commit = "unknown"
	}
	if built == "" {
		built = "unknown"
	}
	return fmt.Sprintf("stashdb %s (commit %s, built %s)", Tag, commit, built)
}
