// Package activity records an audit trail of operator and system actions.
// Recording is best-effort: a failed write is logged and never propagates to
// the operation being recorded.
package activity

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/FathanAS/fdvp-backend/internal/models"
	"github.com/FathanAS/fdvp-backend/internal/store"
)

// Recorder writes activity entries to the durable store.
type Recorder struct {
	store store.DataStore
	log   zerolog.Logger
}

// NewRecorder creates a recorder backed by the given store.
func NewRecorder(s store.DataStore, logger zerolog.Logger) *Recorder {
	return &Recorder{store: s, log: logger}
}

// Record persists an activity entry, stamping its ID and creation time.
func (r *Recorder) Record(ctx context.Context, e models.ActivityEntry) {
	if r == nil || r.store == nil {
		return
	}
	e.ID = ulid.Make().String()
	e.CreatedAt = time.Now().UTC()

	if err := r.store.AddActivity(ctx, &e); err != nil {
		r.log.Warn().Err(err).Str("action", e.Action).Msg("activity record failed")
	}
}
