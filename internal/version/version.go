// Package version provides build and version information for pipecheck.
package version

import "runtime/debug"

// Version is the current release version of pipecheck.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/AaronLay10/pipecheck/internal/version.Version=x.y.z"
var Version = "0.1.0"

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Revision  string `json:"revision,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
}

// Get returns Version plus the VCS details embedded by the Go toolchain.
func Get() Info {
	info := Info{Version: Version}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Revision = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}
