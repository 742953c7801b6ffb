package domain

import (
	"context"
	"os"
	"time"
)

// Namespace partitions the key-value store.
type Namespace string

const (
	// NamespaceSync holds user configuration shared across installs.
	NamespaceSync Namespace = "sync"
	// NamespaceLocal holds per-install state: session, exception usage, token, tabs.
	NamespaceLocal Namespace = "local"
)

// KeyValueStore is the persistence collaborator.
// Values are opaque JSON documents.
// Implementation: SQLCipher encrypted database.
type KeyValueStore interface {
	// Get returns the stored values for keys; missing keys are absent from the map.
	Get(ctx context.Context, ns Namespace, keys ...string) (map[string][]byte, error)

	// Set writes all values in one transaction.
	Set(ctx context.Context, ns Namespace, values map[string][]byte) error

	// Remove deletes keys; missing keys are ignored.
	Remove(ctx context.Context, ns Namespace, keys ...string) error

	// Close releases resources (e.g., database connection).
	Close() error
}

// ConfigStore loads and saves the user configuration.
type ConfigStore interface {
	LoadConfig(ctx context.Context) (*Configuration, error)
	SaveConfig(ctx context.Context, cfg *Configuration) error
}

// SessionStore persists the focus session.
type SessionStore interface {
	// LoadSession returns a zero session when none is stored.
	LoadSession(ctx context.Context) (*FocusSession, error)
	SaveSession(ctx context.Context, s *FocusSession) error
}

// ExceptionStore persists exception usage.
type ExceptionStore interface {
	// LoadException returns nil when nothing is stored.
	LoadException(ctx context.Context) (*ExceptionState, error)
	SaveException(ctx context.Context, st *ExceptionState) error
}

// TokenSource provides the calendar access token.
// Token acquisition (OAuth) happens outside this module.
type TokenSource interface {
	// Token returns ErrCalendarUnauthorized when no token is available.
	Token(ctx context.Context) (string, error)
}

// CalendarSource fetches events overlapping a time window.
// Implementation: Google Calendar v3 REST API.
type CalendarSource interface {
	// FetchEvents returns ErrCalendarUnauthorized (wrapped) on invalid credentials.
	FetchEvents(ctx context.Context, token string, window TimeWindow, keywordHint string) ([]CalendarEvent, error)
}

// FilterEngine is the external network filter that enforces compiled rules.
type FilterEngine interface {
	// ActiveRules returns every rule currently installed, including ones outside the reserved window.
	ActiveRules(ctx context.Context) ([]CompiledFilterRule, error)

	// ApplyChanges removes and adds rules atomically.
	// Returns ErrCapacityExceeded (wrapped) when the result would not fit.
	ApplyChanges(ctx context.Context, changes RuleChanges) error
}

// HistoryRecorder keeps a log of focus state transitions.
// Implementation: SQLite database.
type HistoryRecorder interface {
	RecordTransition(ctx context.Context, t Transition) error
	Recent(ctx context.Context, limit int) ([]Transition, error)
}

// Clock abstracts time for the state machine and budget tracker.
type Clock interface {
	Now() time.Time
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// Signal delivers sig to pid.
	Signal(pid int, sig os.Signal) error

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// DaemonRegistry provides daemon discovery and registration.
// Implementation: JSON file in the data directory.
type DaemonRegistry interface {
	// Register saves the daemon's PID.
	Register(daemon Daemon) error

	// UpdateHeartbeat updates timestamp for liveness check.
	UpdateHeartbeat() error

	// IsAlive checks whether the registered daemon is running.
	IsAlive() (bool, error)

	// GetAll returns registry state (nil when nothing is registered).
	GetAll() (*RegistryEntry, error)

	// Clear removes the registration.
	Clear() error

	// GetRegistryPath returns the registry file path (for tests).
	GetRegistryPath() string
}

// KeyProvider supplies the store encryption key.
// Implementation: hidden key file in the data directory.
type KeyProvider interface {
	// GetKey returns the 256-bit key.
	GetKey() ([]byte, error)

	// StoreKey persists key.
	StoreKey(key []byte) error

	// KeyExists reports whether a key has been stored.
	KeyExists() bool
}

// TokenStore saves the calendar token handed to the CLI.
type TokenStore interface {
	TokenSource
	SetToken(ctx context.Context, token string) error
	ClearToken(ctx context.Context) error
}
