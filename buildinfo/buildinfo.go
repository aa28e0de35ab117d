// Package buildinfo exposes compile-time build metadata. §9 of
// spec.md calls out the teacher's use of runtime reflection over
// assembly attributes to read build metadata as a pattern to
// re-architect; here it is replaced with plain package-level vars
// overridable at link time via -ldflags, following the teacher's own
// version-package convention.
package buildinfo

// Version is the runtime's build version. Override with:
//
//	go build -ldflags "-X github.com/nanoforge/qmfrt/buildinfo.Version=1.2.3"
var Version = "dev"

// Commit is the VCS revision this build was produced from.
var Commit = "unknown"

// String renders a human-readable build identifier for log lines and
// the inspect CLI operation's --verbose output.
func String() string {
	return Version + " (" + Commit + ")"
}
