// Package quarantine accumulates failure history for events that cannot be
// reconciled.
package quarantine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tripstream-systems/tripstream/internal/store"
)

// Accumulator appends rejection reasons to per-key error records. It never
// inspects or validates the payload it is handed; quarantine accepts
// whatever the validator rejected.
type Accumulator struct {
	errors store.ErrorStore
	now    func() time.Time
}

// New creates an accumulator over the given error store.
func New(errors store.ErrorStore) *Accumulator {
	return &Accumulator{errors: errors, now: time.Now}
}

// Record appends (reason, now) to the entity's failure history and replaces
// the stored payload with the current one. Reason history is kept in
// arrival order; payload history is not kept.
func (a *Accumulator) Record(ctx context.Context, entityID, reason string, payload map[string]any) error {
	ts := a.now().UTC().Format("2006-01-02T15:04:05.999999") + "Z"
	return a.errors.AppendFailure(ctx, entityID, reason, ts, payload)
}

// SyntheticID generates a quarantine key for events whose identifier is
// missing or unusable.
func SyntheticID() string {
	return fmt.Sprintf("unknown-%s", uuid.New().String())
}
