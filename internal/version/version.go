// Package version provides build version information for the application.
package version

// Version is the build version string, set by ldflags during build.
var Version = "v0.9.0-dev"

// BuildTime is the build timestamp, set by ldflags during build.
var BuildTime = "unknown"
