// Package blobstore abstracts the object store holding KPI output, the
// processed-date ledger and archived run logs.
package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound signals that the requested object does not exist. Callers use
// it to distinguish "absent, initialize a default" from a real I/O failure.
var ErrNotFound = errors.New("object not found")

// Store is a minimal put/get object store keyed by slash-separated paths.
type Store interface {
	// Put writes an object wholesale, replacing any previous content.
	Put(ctx context.Context, key string, data []byte) error

	// Get reads an object. Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
}
