// Package version holds build information for the recorder tools
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Set via -ldflags "-X esp-csi-recorder/internal/version.Version=..."
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info describes the running binary
type Info struct {
	Version   string
	GitCommit string
	BuildDate string
	GoVersion string
	Platform  string
}

// Get returns the build information of the running binary
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Short returns the version with an abbreviated commit, e.g. 0.1.0-1a2b3c4
func (i Info) Short() string {
	if i.GitCommit == "unknown" || i.GitCommit == "" {
		return i.Version
	}
	commit := i.GitCommit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return i.Version + "-" + commit
}

// Banner renders the multi-line text printed by --version
func (i Info) Banner(app string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s version %s", app, i.Short())
	if i.BuildDate != "unknown" && i.BuildDate != "" {
		fmt.Fprintf(&b, "\nBuilt: %s", i.BuildDate)
	}
	fmt.Fprintf(&b, "\nGo: %s\nPlatform: %s", i.GoVersion, i.Platform)
	return b.String()
}
