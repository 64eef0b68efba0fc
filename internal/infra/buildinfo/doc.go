// Package buildinfo provides build information for rxhttp-server.
//
// Version, Commit and BuildTime are injected via ldflags; the Go version
// is read from the runtime.
package buildinfo
