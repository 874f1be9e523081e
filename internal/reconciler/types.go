package reconciler

import (
	"time"

	"dashsync/internal/dashboard"
	"dashsync/internal/source"
)

// Config holds configuration for the Controller.
type Config struct {
	// MaxAttempts is the number of attempts made for a failing operation
	// before the key is marked failed. Defaults to 5.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry. Defaults to 1 second.
	InitialBackoff time.Duration

	// MaxBackoff caps the retry delay. Defaults to 5 minutes.
	MaxBackoff time.Duration

	// Concurrency is the number of backend calls issued in parallel while
	// processing one event. Defaults to 4.
	Concurrency int

	// ShutdownGracePeriod is how long in-flight backend calls may run after
	// the controller is asked to stop. Defaults to 30 seconds.
	ShutdownGracePeriod time.Duration

	// MarkerTag is the tag carried by every managed dashboard. When set,
	// Rebuild seeds the index with the dashboards carrying it.
	MarkerTag string
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.ShutdownGracePeriod <= 0 {
		c.ShutdownGracePeriod = 30 * time.Second
	}
	return c
}

// TrackedEntry is the controller's record of a dashboard it believes exists
// in Grafana.
type TrackedEntry struct {
	Key dashboard.IdentityKey

	// Checksum of the last applied content. Empty for entries rebuilt from
	// Grafana at startup, so they are updated on first sight.
	Checksum string

	// BackendID is the uid Grafana reported for the dashboard.
	BackendID string

	// Source owns the dashboard. Zero for rebuilt entries until a source
	// claims the key.
	Source     source.SourceKey
	PayloadKey string
	Title      string

	AppliedAt time.Time
}

// KeyState is the reconciliation state of one identity key.
type KeyState int

const (
	// StateAbsent means there is neither a desired document nor a tracked entry.
	StateAbsent KeyState = iota

	// StatePendingCreate means a document is desired but nothing is tracked.
	StatePendingCreate

	// StateTracked means the tracked checksum matches the desired document.
	StateTracked

	// StatePendingUpdate means the tracked checksum differs from the desired document.
	StatePendingUpdate

	// StatePendingDelete means an entry is tracked but no document is desired.
	StatePendingDelete
)

func (s KeyState) String() string {
	switch s {
	case StateAbsent:
		return "Absent"
	case StatePendingCreate:
		return "PendingCreate"
	case StateTracked:
		return "Tracked"
	case StatePendingUpdate:
		return "PendingUpdate"
	case StatePendingDelete:
		return "PendingDelete"
	default:
		return "Unknown"
	}
}

// stateOf classifies a key from its desired document and tracked entry,
// either of which may be nil.
func stateOf(doc *dashboard.Document, entry *TrackedEntry) KeyState {
	switch {
	case doc == nil && entry == nil:
		return StateAbsent
	case entry == nil:
		return StatePendingCreate
	case doc == nil:
		return StatePendingDelete
	case doc.Checksum == entry.Checksum:
		return StateTracked
	default:
		return StatePendingUpdate
	}
}

// Operation is a backend write.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Failure describes a key whose last backend operation failed.
type Failure struct {
	Key       dashboard.IdentityKey
	Source    source.SourceKey
	Operation Operation

	// Checksum is the content the failure applies to; empty for deletes.
	Checksum string

	// Attempts made in the current series.
	Attempts int

	// Error is the sanitized error message of the last attempt.
	Error string

	// Fatal failures are not retried until a resync or a content change.
	Fatal bool

	// GaveUp is set once MaxAttempts were exhausted.
	GaveUp bool

	LastAttempt time.Time

	// NextRetry is zero when no retry is scheduled.
	NextRetry time.Time
}
