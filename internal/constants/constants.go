// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Pipeline constants
const (
	// MaxPendingCommits bounds the queue of evolved templates awaiting a retried commit.
	// When full, the oldest entry is dropped.
	MaxPendingCommits = 1000

	// CommitRetryInterval is how often, in seconds, the server retries pending template commits
	CommitRetryInterval = 30

	// FinalizeInterval is how often, in seconds, the server finalizes closed business days
	FinalizeInterval = 300
)

// Debounce constants
const (
	// DebounceRestoreLimit is the number of recent punches used to seed in-memory debounce state
	DebounceRestoreLimit = 1000
)

// Handler pagination constants
const (
	// DefaultRecentPunches is the default number of punches returned by the recent punches endpoint
	DefaultRecentPunches = 50

	// MaxRecentPunches caps the limit query parameter of the recent punches endpoint
	MaxRecentPunches = 1000

	// DefaultAttendanceDays is the report range used when no from/to is given
	DefaultAttendanceDays = 31

	// MaxRequestBodyBytes limits the size of JSON request bodies
	MaxRequestBodyBytes = 1 << 20
)

// Ingest constants
const (
	// IngestScannerBuffer is the maximum line length accepted by the ingest command.
	// A 512-dim embedding in JSON is roughly 10 KB.
	IngestScannerBuffer = 4 << 20
)
