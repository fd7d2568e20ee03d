// Package version carries build metadata stamped in at link time:
//
//	go build -ldflags "-X github.com/banshee-data/scanmatch/internal/version.Version=v0.3.0 \
//	  -X github.com/banshee-data/scanmatch/internal/version.GitSHA=$(git rev-parse --short HEAD)"
//
// Version is also recorded with every registration run stored in SQLite.
package version

import "fmt"

var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// String formats the build metadata for -version output.
func String() string {
	return fmt.Sprintf("scanmatch %s (%s, built %s)", Version, GitSHA, BuildTime)
}
