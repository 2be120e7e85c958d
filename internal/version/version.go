// Package version holds build information injected via ldflags:
//
//	go build -ldflags "-X github.com/guojianbin/TinyCron/internal/version.Version=1.2.0 \
//	                   -X github.com/guojianbin/TinyCron/internal/version.Commit=abc123 \
//	                   -X github.com/guojianbin/TinyCron/internal/version.BuildTime=2025-01-29T12:00:00Z"
package version

import "runtime"

var (
	// Version is the semantic version (e.g. "1.2.0"), "dev" for local builds.
	Version = "dev"

	// Commit is the git commit the binary was built from.
	Commit = "unknown"

	// BuildTime is when the binary was built (RFC3339).
	BuildTime = "unknown"
)

// Info returns a one-line version string.
func Info() string {
	return "tinycron " + Version + " (commit: " + Commit + ", built: " + BuildTime + ", " + runtime.Version() + ")"
}
