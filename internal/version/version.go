// Package version holds the build version, set at link time with
// -ldflags "-X github.com/galamiram/spottui/internal/version.Version=v1.2.3"
package version

// Version of the running binary
var Version = "dev"
