package buildinfo

import "runtime/debug"

// Set with -ldflags "-X github.com/offlinefirst/tinymacro/internal/buildinfo.version=..." and friends.
var (
	version   = "dev"
	commit    = ""
	buildDate = ""
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// SetVersion allows build scripts to override the CLI version information.
func SetVersion(v string) {
	if v == "" {
		return
	}
	version = v
}

// Version returns the semantic version or module version associated with the build.
func Version() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

// Get returns the version together with the VCS revision and time recorded
// by the Go toolchain when the linker flags leave them unset.
func Get() Info {
	out := Info{Version: Version(), Commit: commit, BuildDate: buildDate}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if out.Commit == "" {
					out.Commit = s.Value
				}
			case "vcs.time":
				if out.BuildDate == "" {
					out.BuildDate = s.Value
				}
			}
		}
	}
	if out.Commit == "" {
		out.Commit = "none"
	}
	if out.BuildDate == "" {
		out.BuildDate = "unknown"
	}
	return out
}
