// Package ledger tracks which calendar dates have already been aggregated
// and published, making aggregation runs idempotent across retries.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tripstream-systems/tripstream/internal/blobstore"
)

// Key is the run-state object holding the processed-date set.
const Key = "state/processed_dates.json"

type document struct {
	ProcessedDates []string `json:"processed_dates"`
}

// Ledger is the persisted set of already-published dates. The whole set
// lives in a single versioned object; MarkProcessed unions new dates in and
// rewrites it wholesale.
type Ledger struct {
	store blobstore.Store

	mu    sync.Mutex
	dates map[string]struct{}
}

// Load reads the ledger document, treating a missing object as an empty
// set. Any other read failure is a real error and aborts the run.
func Load(ctx context.Context, store blobstore.Store) (*Ledger, error) {
	l := &Ledger{store: store, dates: make(map[string]struct{})}

	data, err := store.Get(ctx, Key)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return l, nil
		}
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	for _, d := range doc.ProcessedDates {
		l.dates[d] = struct{}{}
	}
	return l, nil
}

// AlreadyProcessed reports whether the date has been published before.
func (l *Ledger) AlreadyProcessed(date string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.dates[date]
	return ok
}

// MarkProcessed unions the dates into the set and persists the result
// wholesale. The union is commutative and order-independent, so repeating a
// mark after a partial failure is safe.
func (l *Ledger) MarkProcessed(ctx context.Context, dates []string) error {
	if len(dates) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, d := range dates {
		l.dates[d] = struct{}{}
	}

	sorted := make([]string, 0, len(l.dates))
	for d := range l.dates {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)

	data, err := json.Marshal(document{ProcessedDates: sorted})
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := l.store.Put(ctx, Key, data); err != nil {
		return fmt.Errorf("persist ledger: %w", err)
	}
	return nil
}

// Dates returns the current set, sorted.
func (l *Ledger) Dates() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.dates))
	for d := range l.dates {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
