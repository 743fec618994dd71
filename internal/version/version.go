// Package version reports the build identity of the stockd binary.
package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/stockd"

// buildVersion is set via -ldflags "-X pkt.systems/stockd/internal/version.buildVersion=...".
var buildVersion = ""

// Info is the build identity printed by `stockd version` and advertised as
// the MCP implementation version.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Module    string `json:"module" yaml:"module"`
	Revision  string `json:"revision,omitempty" yaml:"revision,omitempty"`
	BuildTime string `json:"build_time,omitempty" yaml:"build_time,omitempty"`
	Modified  bool   `json:"modified,omitempty" yaml:"modified,omitempty"`
	GoVersion string `json:"go_version" yaml:"go_version"`
}

// Current returns the best available version string.
func Current() string {
	return Read().Version
}

// Read collects Info from link-time flags and embedded build settings.
func Read() Info {
	info := Info{Module: defaultModule, GoVersion: runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if ok {
		if path := strings.TrimSpace(bi.Main.Path); path != "" {
			info.Module = path
		}
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				info.Revision = setting.Value
			case "vcs.time":
				info.BuildTime = setting.Value
			case "vcs.modified":
				info.Modified = setting.Value == "true"
			}
		}
	}
	switch {
	case strings.TrimSpace(buildVersion) != "":
		info.Version = strings.TrimSpace(buildVersion)
	case ok && bi.Main.Version != "" && bi.Main.Version != "(devel)":
		info.Version = bi.Main.Version
	default:
		info.Version = pseudoVersion(info)
	}
	return info
}

// pseudoVersion derives a Go-style pseudo version from VCS stamps.
func pseudoVersion(info Info) string {
	if info.Revision == "" || info.BuildTime == "" {
		return "v0.0.0-unknown"
	}
	parsed, err := time.Parse(time.RFC3339, info.BuildTime)
	if err != nil {
		return "v0.0.0-unknown"
	}
	rev := info.Revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	ver := "v0.0.0-" + parsed.UTC().Format("20060102150405") + "-" + rev
	if info.Modified {
		ver += "+dirty"
	}
	return ver
}
