// Package version provides build-time version information.
package version

import "runtime/debug"

// version is set at build time via -ldflags.
var version = "dev" //nolint:gochecknoglobals // ldflags requires package-level var

// String returns the current version. Development builds append the VCS
// revision embedded by the Go toolchain, when there is one.
func String() string {
	if version != "dev" {
		return version
	}
	if rev := revision(); rev != "" {
		return version + "+" + rev
	}
	return version
}

// revision returns the short vcs.revision build setting, or "".
func revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return ""
}
