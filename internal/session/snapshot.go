// Package session persists the minimal trip state needed to resume
// after a reload or cold start. Persistence is an optimization, not a
// correctness requirement: the server stays the source of truth, so
// every backend here is best-effort and corrupt data reads as absent.
package session

import (
	"context"
	"time"

	"ridesync/internal/auth"
	"ridesync/internal/models"
)

// Snapshot is the persisted slice of session sync state. The format is
// versionless JSON; readers tolerate missing fields so the schema can
// evolve without migration logic.
type Snapshot struct {
	TripID         string       `json:"trip_id,omitempty"`
	AuthMode       auth.Mode    `json:"auth_mode,omitempty"`
	GuestSessionID string       `json:"guest_session_id,omitempty"`
	Screen         string       `json:"screen,omitempty"`
	Trip           *models.Trip `json:"trip,omitempty"`
	SavedAt        time.Time    `json:"saved_at,omitempty"`
}

// Resumable reports whether the snapshot references a trip worth
// confirming with the server: it has an id and the recorded screen is
// not a post-trip one.
func (s *Snapshot) Resumable() bool {
	if s == nil || s.TripID == "" {
		return false
	}
	switch s.Screen {
	case "", "trip-complete", "dashboard", "booking":
		return false
	}
	return true
}

// Store is the durable snapshot home. Load returns (nil, nil) when no
// usable snapshot exists; it never surfaces corrupt data as an error
// the caller must handle.
type Store interface {
	Save(ctx context.Context, snapshot *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
	Clear(ctx context.Context) error
}
