// Package version holds build metadata for aisum.
package version

import "runtime/debug"

// Set with -ldflags "-X aisum/internal/version.Version=... -X aisum/internal/version.Commit=...".
var (
	Version   = "0.4.0"
	Commit    = ""
	BuildDate = ""
)

// ShortCommit returns the first seven characters of the build commit,
// falling back to the VCS revision recorded by the Go toolchain.
func ShortCommit() string {
	rev := Commit
	if rev == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					rev = s.Value
				}
			}
		}
	}
	if len(rev) > 7 {
		rev = rev[:7]
	}
	return rev
}

// String is the version shown by --version and the health endpoint.
func String() string {
	if c := ShortCommit(); c != "" {
		return Version + "+" + c
	}
	return Version
}

// UserAgent identifies aisum to Jira and the generation service.
func UserAgent() string {
	return "aisum/" + Version
}

// Details lists every known build attribute, one per line.
func Details() string {
	out := "aisum " + String()
	if BuildDate != "" {
		out += "\nbuilt " + BuildDate
	}
	return out
}
