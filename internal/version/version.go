// Package version describes the running cellwatch build. Release builds set
// Version, GitCommit and BuildDate with -ldflags "-X ..."; other builds fall
// back to what the Go toolchain stamped into the binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Build is the identity of the running binary.
type Build struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Modified  bool   `json:"modified,omitempty"`
}

// Current returns the build identity. ldflags values win; unset ones are
// filled from the module version and VCS stamps when present.
func Current() Build {
	b := Build{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fillFromBuildInfo(&b, bi)
	}
	return b
}

func fillFromBuildInfo(b *Build, bi *debug.BuildInfo) {
	if b.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		b.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.GitCommit == "unknown" {
				b.GitCommit = s.Value
			}
		case "vcs.time":
			if b.BuildDate == "unknown" {
				b.BuildDate = s.Value
			}
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
}

// Info is the one-line form printed by `cellwatch version`.
func Info() string {
	b := Current()
	commit := b.GitCommit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if b.Modified {
		commit += "+dirty"
	}
	return fmt.Sprintf("cellwatch %s (commit %s, built %s, %s, %s)",
		b.Version, commit, b.BuildDate, b.GoVersion, b.Platform)
}

// UserAgent identifies cellwatch in outgoing HTTP requests.
func UserAgent() string {
	b := Current()
	return fmt.Sprintf("cellwatch/%s (%s)", b.Version, b.Platform)
}
