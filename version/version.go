// Package version reports the build of the rex binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time with
// -ldflags "-X github.com/grovetools/rex/version.Version=v1.2.3 -X ...Commit=abc123".
var (
	Version   = "dev"
	Commit    = "none"
	Branch    = "unknown"
	BuildDate = "unknown"
)

// Info holds all the versioning information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Branch    string `json:"branch"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// GetInfo returns the build information. A binary built without ldflags
// falls back to the VCS revision recorded by the Go toolchain.
func GetInfo() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Branch:    Branch,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
	if info.Commit == "none" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				switch s.Key {
				case "vcs.revision":
					info.Commit = s.Value
				case "vcs.time":
					if info.BuildDate == "unknown" {
						info.BuildDate = s.Value
					}
				}
			}
		}
	}
	return info
}

func (i Info) String() string {
	return fmt.Sprintf(
		"Version:\t%s\nCommit:\t\t%s\nBranch:\t\t%s\nBuild Date:\t%s\nGo Version:\t%s\nPlatform:\t%s",
		i.Version, i.Commit, i.Branch, i.BuildDate, i.GoVersion, i.Platform,
	)
}
