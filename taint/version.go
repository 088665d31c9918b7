package taint

// Version information for the taint tracer runtime.
const (
	// Version is the current version of the tracer runtime.
	Version = "0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// Info provides runtime information about the tracer.
type Info struct {
	// Version is the runtime version string.
	Version string

	// Model is the trace model implemented.
	Model string

	// Enabled indicates whether recording is active.
	Enabled bool
}

// GetInfo returns information about the tracer runtime.
//
// Example:
//
//	info := taint.GetInfo()
//	fmt.Printf("taint tracer %s (%s)\n", info.Version, info.Model)
func GetInfo() Info {
	return Info{
		Version: Version,
		Model:   "per-goroutine event chains, label last-usage index",
		Enabled: Enabled(),
	}
}
