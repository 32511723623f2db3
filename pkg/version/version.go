// Package version reports the hoi-bridge build, injected with -ldflags.
package version

//nolint:gochecknoglobals // set through -ldflags "-X"
var (
	version = "dev"
	commit  = "unknown"
)

// Version returns the release version.
func Version() string {
	return version
}

// Commit returns the source revision the binary was built from.
func Commit() string {
	return commit
}

// String returns the version and commit together.
func String() string {
	return version + " (" + commit + ")"
}
