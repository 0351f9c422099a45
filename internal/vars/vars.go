// Package vars holds build-time variables populated via the linker (ldflags).
package vars

import (
	"fmt"
	"io"
	"strconv"
	"time"
)

// License of the project
const License = "AGPL-3.0"

var (
	// Name of the project
	Name = "sampq"

	// Version of application (git tag) semver/tag, e.g. v1.2.3
	Version = "dev"

	// Commit is the current git commit, full or short git SHA
	Commit = "unknown"

	// Revision build, count of commits
	Revision = 0

	// BuildTime is the time of start build app, RFC3339 UTC
	BuildTime = time.Unix(0, 0)

	// URL to repository (https)
	URL = "https://github.com/woozymasta/sampq"

	_revision  string
	_buildTime string
)

func init() {
	if n, err := strconv.Atoi(_revision); err == nil {
		Revision = n
	}

	if _buildTime != "" {
		if t, err := time.Parse(time.RFC3339, _buildTime); err == nil {
			BuildTime = t.UTC()
		}
	}
}

// Fprint writes the build information to w.
func Fprint(w io.Writer) {
	_, _ = fmt.Fprintf(w, `name:     %s
url:      %s
version:  %s
commit:   %s
revision: %d
built:    %s
license:  %s
`, Name, URL, Version, CommitShort(), Revision, BuildTime.Format(time.RFC3339), License)
}

// UserAgent is the short identifier written to debug logs.
func UserAgent() string {
	return Name + "/" + Version
}

// CommitShort returns the first 7 characters of the git commit hash.
func CommitShort() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}

	return Commit
}
