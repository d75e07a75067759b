// Package version reports the build metadata of the listing service.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

const (
	// Unknown is used when build metadata is not provided.
	Unknown = "unknown"
	// DevelopmentVersion is the default version in local builds.
	DevelopmentVersion = "dev"

	shortCommitLength = 12
)

var (
	// AppVersion is set at build time:
	// go build -ldflags="-X github.com/nimburion/listing/pkg/version.AppVersion=v1.2.3"
	AppVersion = DevelopmentVersion

	// GitCommit is set at build time. When empty, the vcs.revision stamped by
	// the Go toolchain is used.
	GitCommit = Unknown

	// BuildTime is set at build time as RFC3339. When empty, vcs.time is used.
	BuildTime = Unknown
)

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// Info is served on /version and printed by the version command.
type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Modified  bool   `json:"modified,omitempty"`
}

// Current returns the build metadata of the running binary. Values injected
// with -ldflags win over what the toolchain stamped.
func Current(serviceName string) Info {
	info := Info{
		Service:   normalizeOrDefault(serviceName, Unknown),
		Version:   normalize(AppVersion),
		Commit:    normalize(GitCommit),
		BuildTime: normalize(BuildTime),
		GoVersion: runtime.Version(),
	}

	if bi, ok := readBuildInfo(); ok {
		if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = shortCommit(setting.Value)
				}
			case "vcs.time":
				if info.BuildTime == "" {
					info.BuildTime = setting.Value
				}
			case "vcs.modified":
				info.Modified = setting.Value == "true"
			}
		}
	}

	info.Version = normalizeOrDefault(info.Version, DevelopmentVersion)
	info.Commit = normalizeOrDefault(info.Commit, Unknown)
	info.BuildTime = normalizeOrDefault(info.BuildTime, Unknown)
	return info
}

func (i Info) String() string {
	dirty := ""
	if i.Modified {
		dirty = "+dirty"
	}
	return fmt.Sprintf("%s@%s (commit=%s%s, build_time=%s, %s)", i.Service, i.Version, i.Commit, dirty, i.BuildTime, i.GoVersion)
}

// normalize treats the Unknown and dev placeholders as unset so build info
// can fill them.
func normalize(v string) string {
	v = strings.TrimSpace(v)
	if v == Unknown || v == DevelopmentVersion {
		return ""
	}
	return v
}

func normalizeOrDefault(v, fallback string) string {
	norm := strings.TrimSpace(v)
	if norm == "" {
		return fallback
	}
	return norm
}

func shortCommit(rev string) string {
	if len(rev) > shortCommitLength {
		return rev[:shortCommitLength]
	}
	return rev
}
