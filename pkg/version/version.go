package version

import (
	"fmt"
	"runtime"
)

// These variables are intended to be set at build time via -ldflags.
var (
	// Version is the semantic version of the build, e.g. v0.1.0. Defaults to "dev".
	Version = "dev"
	// Commit is the short git commit hash.
	Commit = ""
	// Date is the build timestamp in RFC3339.
	Date = ""
	// Go is the Go toolchain version used for the build.
	Go = runtime.Version()
)

// Product is the name sent in the User-Agent header of every API request.
const Product = "feedclient"

// Info returns version/build metadata suitable for logging or `feedctl version`.
func Info() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"date":    Date,
		"go":      Go,
	}
}

// UserAgent returns the User-Agent value for outgoing API requests.
func UserAgent() string {
	if Commit == "" {
		return fmt.Sprintf("%s/%s", Product, Version)
	}
	return fmt.Sprintf("%s/%s (%s)", Product, Version, Commit)
}
