package buildinfo

// Set at link time:
//
//	-X 'github.com/m3rciful/vkbot/core/buildinfo.Version=v0.3.0'
//	-X 'github.com/m3rciful/vkbot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/vkbot/core/buildinfo.Date=2026-10-01T12:00:00Z'
var (
	// Version is the release tag of the build.
	Version = "dev"
	// Commit is the source revision of the build.
	Commit = "local"
	// Date is the RFC3339 build timestamp.
	Date = ""
)

// String renders the build identity as "version (commit, date)".
func String() string {
	if Date == "" {
		return Version + " (" + Commit + ")"
	}
	return Version + " (" + Commit + ", " + Date + ")"
}
