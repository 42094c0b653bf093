// Package version provides build-time metadata for the devsync binary.
// Version, GitCommit, and BuildDate are injected at compile time via -ldflags;
// module information embedded by the Go toolchain fills the gaps.
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/Masterminds/semver/v3"
)

const esbuildModule = "github.com/evanw/esbuild"

// Build-time values injected via -ldflags.
var (
	version   = "dev"
	gitCommit = "none"
	buildDate = "unknown"
)

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Info holds the build metadata for the binary.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
	Esbuild   string `json:"esbuild,omitempty"`
}

// GetInfo returns the current build information.
func GetInfo() Info {
	info := Info{
		Version:   version,
		GitCommit: shortCommit(gitCommit),
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}

	if bi, ok := readBuildInfo(); ok {
		for _, dep := range bi.Deps {
			if dep.Path == esbuildModule {
				info.Esbuild = dep.Version
			}
		}
	}

	return info
}

// IsRelease reports whether Version is a semantic version without a
// prerelease suffix. "dev" and "v1.2.0-rc.1" are not releases.
func (i Info) IsRelease() bool {
	v, err := semver.NewVersion(i.Version)
	if err != nil {
		return false
	}

	return v.Prerelease() == ""
}

// String returns a human-readable single-line version string.
func (i Info) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "devsync %s (commit: %s, built: %s, %s %s",
		i.Version, i.GitCommit, i.BuildDate, i.GoVersion, i.Platform)

	if i.Esbuild != "" {
		fmt.Fprintf(&b, ", esbuild %s", i.Esbuild)
	}

	b.WriteString(")")

	return b.String()
}

// JSON returns the version info as indented JSON.
func (i Info) JSON() (string, error) {
	data, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling version info: %w", err)
	}

	return string(data), nil
}

// shortCommit truncates a commit SHA to 7 characters.
func shortCommit(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}

	return commit
}
