// Package version reports what build of outreach is running.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Stamped with -ldflags "-X github.com/soyeahso/outreach/internal/version.Version=...".
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Date      string `json:"date,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// Get returns the stamped values. Commit and date fall back to the VCS
// settings the Go toolchain embeds when they were not stamped.
func Get() Build {
	b := Build{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		b = b.withVCS(info.Settings)
	}
	return b
}

func (b Build) withVCS(settings []debug.BuildSetting) Build {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "" {
				b.Commit = s.Value
			}
		case "vcs.time":
			if b.Date == "" {
				b.Date = s.Value
			}
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
	return b
}

// ShortCommit is the first seven characters of the commit, or "unknown".
func (b Build) ShortCommit() string {
	switch {
	case b.Commit == "":
		return "unknown"
	case len(b.Commit) > 7:
		return b.Commit[:7]
	}
	return b.Commit
}

func (b Build) String() string {
	commit := b.ShortCommit()
	if b.Modified {
		commit += "+dirty"
	}
	date := b.Date
	if date == "" {
		date = "unknown"
	}
	return fmt.Sprintf("outreach %s (commit %s, built %s, %s, %s)", b.Version, commit, date, b.GoVersion, b.Platform)
}
