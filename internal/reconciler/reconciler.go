// Package reconciler merges validated partial trip events into persisted
// entity records.
package reconciler

import (
	"context"

	"github.com/tripstream-systems/tripstream/internal/models"
	"github.com/tripstream-systems/tripstream/internal/store"
)

// Reconciler applies validated events to the trip store.
type Reconciler struct {
	trips store.TripStore
}

// New creates a reconciler over the given trip store.
func New(trips store.TripStore) *Reconciler {
	return &Reconciler{trips: trips}
}

// Merge upserts every non-identifier field of a validated payload into the
// record for entityID. The merge is phase-agnostic: fields are written
// last-writer-wins with no cross-field reconciliation, and the store applies
// them in a single atomic statement, so merging the two phases in either
// order, or re-applying the same event under at-least-once delivery,
// converges to the same record.
//
// A store failure is returned unwrapped so the caller can leave the event
// unacknowledged and let the transport retry it.
func (r *Reconciler) Merge(ctx context.Context, entityID string, payload map[string]any) error {
	fields := make(map[string]string)
	var extra map[string]any
	for key, value := range payload {
		if key == models.FieldEntityID {
			continue
		}
		if models.KnownFields[key] {
			fields[key] = models.CanonicalString(value)
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[key] = value
	}

	return r.trips.MergeFields(ctx, entityID, fields, extra)
}
