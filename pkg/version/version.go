// Package version holds build-time identification for meridiand and
// meridianctl.
package version

import "fmt"

// Version, GitCommit, and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/meridian-sdn/meridian/pkg/version.Version=v1.0.0 \
//	  -X github.com/meridian-sdn/meridian/pkg/version.GitCommit=abc1234 \
//	  -X github.com/meridian-sdn/meridian/pkg/version.BuildDate=2026-07-29"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns a single-line human-readable build identification string.
func Info() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate)
}
