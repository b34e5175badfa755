package ir

// Version constants for the IR schema and the host.
const (
	// IRVersion is the IR schema version.
	IRVersion = "1"

	// HostVersion is the module host version.
	HostVersion = "0.1.0"
)
