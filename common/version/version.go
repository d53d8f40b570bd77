// Package version holds build metadata injected with -ldflags.
package version

var (
	Version   = "v0.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info formats the build metadata for the version command.
func Info() string {
	return "Leva " + Version + " (" + GitCommit + ", built " + BuildTime + ")"
}
