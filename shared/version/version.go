// Package version returns the version string for the currently running
// process.
package version

import (
	"fmt"
	"time"
)

// The value of these vars are set through linker options.
var gitCommit = "local build"
var buildDate = "moments ago"
var gitTag = "unknown"

// GetVersion returns the version string of this build.
func GetVersion() string {
	if buildDate == "{DATE}" {
		buildDate = time.Now().Format(time.RFC3339)
	}
	return fmt.Sprintf("Beamgate/%s/%s. Built at: %s", gitTag, gitCommit, buildDate)
}
