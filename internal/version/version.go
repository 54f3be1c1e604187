// Package version carries build information for ntx-snmpd. Variables are
// injected at build time via ldflags, e.g.
//
//	-ldflags "-X github.com/mancow2001/ntx-custom-monitor/internal/version.Version=1.2.0"
package version

import (
	"fmt"
	"runtime"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Current returns the build information of this binary.
func Current() Build {
	return Build{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (b Build) String() string {
	return fmt.Sprintf("ntx-snmpd %s (commit: %s, built: %s, %s %s)",
		b.Version, b.GitCommit, b.BuildDate, b.GoVersion, b.Platform)
}

// Info returns a formatted version string for the version command.
func Info() string { return Current().String() }

// Short returns just the version string. It is the value served under the
// system version OID.
func Short() string { return Version }

// UserAgent identifies the daemon to Prism Central.
func UserAgent() string { return "ntx-snmpd/" + Version }
