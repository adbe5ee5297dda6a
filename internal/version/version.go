// Package version holds the daemon's own release version. The only durable
// wire format is the packfile, which carries its own format version field
// (see internal/packfile.FormatVersion), so no handshake or version
// transmission machinery lives here.
package version

import "fmt"

const (
	// Major is the daemon's current major version.
	Major = 0
	// Minor is the daemon's current minor version.
	Minor = 1
	// Patch is the daemon's current patch version.
	Patch = 0
)

// Semantic is the "major.minor.patch" rendering of the current version.
var Semantic string

func init() {
	Semantic = fmt.Sprintf("%d.%d.%d", Major, Minor, Patch)
}
