// Package version holds the build identity stamped in with
//
//	-ldflags "-X github.com/banshee-data/cave.view/internal/version.Version=..."
package version

import "fmt"

var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// Info is the build identity as reported by the status API.
type Info struct {
	Version   string `json:"version"`
	GitSHA    string `json:"git_sha"`
	BuildTime string `json:"build_time"`
}

// Get returns the stamped build identity.
func Get() Info {
	return Info{Version: Version, GitSHA: GitSHA, BuildTime: BuildTime}
}

func (i Info) String() string {
	return fmt.Sprintf("cave %s (%s, built %s)", i.Version, i.GitSHA, i.BuildTime)
}
