package ir

// Version constants for the IR schema and library.
const (
	// IRVersion is the IR schema version. Bump when SelectNode snapshots
	// change shape.
	IRVersion = "1"

	// LibraryVersion is the loadplan version reported by the CLI.
	LibraryVersion = "0.1.0"
)
