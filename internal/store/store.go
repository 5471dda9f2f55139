// Package store persists trip and quarantine records.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/tripstream-systems/tripstream/internal/models"
)

// ErrNotFound signals the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrUnavailable marks transient store failures. Callers must treat these
// as retryable and must not confuse them with validation failures; an event
// hitting an unavailable store stays unacknowledged so the transport
// redelivers it.
var ErrUnavailable = errors.New("store unavailable")

// IsRetryable reports whether the error is a transient store failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// TripStore persists entity records keyed by entity id.
type TripStore interface {
	// MergeFields upserts the given fields into the record for entityID in
	// one atomic statement. Only the named fields are written; fields the
	// caller did not provide are never touched, so concurrent merges of the
	// two trip phases commute. Known fields land in typed columns, extra
	// keys merge into the open extension map last-writer-wins per key.
	MergeFields(ctx context.Context, entityID string, fields map[string]string, extra map[string]any) error

	// GetTrip loads one record. Returns ErrNotFound when absent.
	GetTrip(ctx context.Context, entityID string) (*models.TripRecord, error)

	// ScanTrips streams every record through fn. An error from fn stops the
	// scan and is returned as-is.
	ScanTrips(ctx context.Context, fn func(*models.TripRecord) error) error
}

// ErrorStore persists quarantine records keyed by (possibly synthetic)
// entity id.
type ErrorStore interface {
	// AppendFailure atomically appends one (reason, timestamp) pair to the
	// record's history and replaces the stored payload with original.
	// Creates the record on first failure for the key.
	AppendFailure(ctx context.Context, entityID, reason, timestamp string, original map[string]any) error

	// GetError loads one quarantine record. Returns ErrNotFound when absent.
	GetError(ctx context.Context, entityID string) (*models.ErrorRecord, error)
}
