// Package buildinfo exposes version information stamped at link time, with
// the VCS data embedded by the Go toolchain as a fallback.
package buildinfo

import (
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X logistrans/internal/buildinfo.Version=..."
var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

func Info() map[string]string {
	commit, builtAt := Commit, BuiltAt
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if builtAt == "" {
					builtAt = s.Value
				}
			}
		}
	}
	return map[string]string{
		"version":   Version,
		"commit":    commit,
		"builtAt":   builtAt,
		"goVersion": runtime.Version(),
	}
}
