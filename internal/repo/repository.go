package repo

import (
	"context"
	"time"

	"github.com/hamed0406/pingwatch/internal/domain"
)

// Ports (interfaces) — swap in any DB adapter later.

// TargetStore is the registry of target definitions.
type TargetStore interface {
	List(ctx context.Context) ([]*domain.Target, error)
	// Get returns domain.ErrNotFound for an unknown id.
	Get(ctx context.Context, id domain.TargetID) (*domain.Target, error)
	// Add inserts or replaces t, assigning ID and CreatedAt when unset.
	Add(ctx context.Context, t *domain.Target) error
	// Create inserts t and fails with domain.ErrConflict when the id is taken.
	Create(ctx context.Context, t *domain.Target) error
	Delete(ctx context.Context, id domain.TargetID) error
	SetPaused(ctx context.Context, id domain.TargetID, paused bool) error
}

// ObservationStore is the append-only observation log together with the
// per-target state derived from it.
type ObservationStore interface {
	// Append durably records obs and replaces the target's state with next
	// as one unit. Readers never see one without the other. It assigns
	// obs.Seq.
	Append(ctx context.Context, obs *domain.Observation, next domain.TargetState) error
	// Query returns observations checked at or after since, oldest first.
	Query(ctx context.Context, id domain.TargetID, since time.Time) ([]*domain.Observation, error)
	// State returns false when the target has never been observed.
	State(ctx context.Context, id domain.TargetID) (domain.TargetState, bool, error)
	States(ctx context.Context) ([]domain.TargetState, error)
	// Counts returns the number of up observations and the total since since.
	Counts(ctx context.Context, id domain.TargetID, since time.Time) (up, total int, err error)
}

// SettingsStore holds the single global notification record.
type SettingsStore interface {
	NotificationConfig(ctx context.Context) (domain.NotificationConfig, error)
	SetNotificationConfig(ctx context.Context, cfg domain.NotificationConfig) error
}

// Store is everything the engine persists.
type Store interface {
	TargetStore
	ObservationStore
	SettingsStore
	Close()
}
