// Package version exposes build-time version information.
//
// The variables are intended to be set at build time via -ldflags, e.g.
//
//	go build -ldflags "-X .../internal/version.version=v1.2.3"
package version

var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// Info contains the build version details.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
}

// Get returns the build version information.
func Get() Info {
	return Info{
		Version:   version,
		GitCommit: gitCommit,
		BuildDate: buildDate,
	}
}
