package store

import (
	"context"
	"sync"
	"time"

	"github.com/tripstream-systems/tripstream/internal/models"
)

// InMemoryStore implements TripStore and ErrorStore for tests. Merge and
// append semantics mirror the Postgres implementation.
type InMemoryStore struct {
	mu     sync.RWMutex
	trips  map[string]*models.TripRecord
	errors map[string]*models.ErrorRecord

	// FailWith, when set, makes every operation return the given error.
	// Tests use it to simulate an unavailable store.
	FailWith error
}

// NewInMemoryStore returns an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		trips:  make(map[string]*models.TripRecord),
		errors: make(map[string]*models.ErrorRecord),
	}
}

func (s *InMemoryStore) MergeFields(ctx context.Context, entityID string, fields map[string]string, extra map[string]any) error {
	if s.FailWith != nil {
		return unavailable(s.FailWith)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.trips[entityID]
	if !ok {
		rec = &models.TripRecord{EntityID: entityID}
		s.trips[entityID] = rec
	}
	for name, value := range fields {
		rec.SetField(name, value)
	}
	if len(extra) > 0 {
		if rec.Extra == nil {
			rec.Extra = make(map[string]any, len(extra))
		}
		for k, v := range extra {
			rec.Extra[k] = v
		}
	}
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) GetTrip(ctx context.Context, entityID string) (*models.TripRecord, error) {
	if s.FailWith != nil {
		return nil, unavailable(s.FailWith)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.trips[entityID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTrip(rec), nil
}

func (s *InMemoryStore) ScanTrips(ctx context.Context, fn func(*models.TripRecord) error) error {
	if s.FailWith != nil {
		return unavailable(s.FailWith)
	}
	s.mu.RLock()
	records := make([]*models.TripRecord, 0, len(s.trips))
	for _, rec := range s.trips {
		records = append(records, copyTrip(rec))
	}
	s.mu.RUnlock()

	for _, rec := range records {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *InMemoryStore) AppendFailure(ctx context.Context, entityID, reason, timestamp string, original map[string]any) error {
	if s.FailWith != nil {
		return unavailable(s.FailWith)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.errors[entityID]
	if !ok {
		rec = &models.ErrorRecord{EntityID: entityID}
		s.errors[entityID] = rec
	}
	rec.Reasons = append(rec.Reasons, reason)
	rec.Timestamps = append(rec.Timestamps, timestamp)
	rec.OriginalData = original
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) GetError(ctx context.Context, entityID string) (*models.ErrorRecord, error) {
	if s.FailWith != nil {
		return nil, unavailable(s.FailWith)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.errors[entityID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	cp.Reasons = append([]string(nil), rec.Reasons...)
	cp.Timestamps = append([]string(nil), rec.Timestamps...)
	return &cp, nil
}

// ErrorCount returns the number of quarantine records, for tests.
func (s *InMemoryStore) ErrorCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.errors)
}

// ErrorKeys returns all quarantine keys, for tests.
func (s *InMemoryStore) ErrorKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.errors))
	for k := range s.errors {
		keys = append(keys, k)
	}
	return keys
}

func copyTrip(rec *models.TripRecord) *models.TripRecord {
	cp := *rec
	if rec.Extra != nil {
		cp.Extra = make(map[string]any, len(rec.Extra))
		for k, v := range rec.Extra {
			cp.Extra[k] = v
		}
	}
	return &cp
}
