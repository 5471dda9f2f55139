package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tripstream-systems/tripstream/internal/models"
)

// tripColumns maps wire field names to trips table columns. Merges are
// restricted to this set; anything else goes through the extra map.
var tripColumns = map[string]string{
	models.FieldOriginLocationID:      "origin_location_id",
	models.FieldDestinationLocationID: "destination_location_id",
	models.FieldCarrierID:             "carrier_id",
	models.FieldStartTimestamp:        "start_timestamp",
	models.FieldEndTimestamp:          "end_timestamp",
	models.FieldFareAmount:            "fare_amount",
	models.FieldPaymentMethod:         "payment_method",
	models.FieldDistance:              "distance",
}

// PostgresStore implements TripStore and ErrorStore on a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and pings the database.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() { s.pool.Close() }

// MergeFields performs a single-statement field-level upsert. The statement
// lists only the provided columns, so two concurrent merges for the same id
// never clobber each other's disjoint fields, and re-applying the same
// event is a no-op in effect.
func (s *PostgresStore) MergeFields(ctx context.Context, entityID string, fields map[string]string, extra map[string]any) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		if _, ok := tripColumns[name]; !ok {
			return fmt.Errorf("unknown trip field %q", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	cols := []string{"entity_id"}
	args := []any{entityID}
	for _, name := range names {
		cols = append(cols, tripColumns[name])
		args = append(args, fields[name])
	}

	extraJSON := []byte("{}")
	if len(extra) > 0 {
		var err error
		extraJSON, err = json.Marshal(extra)
		if err != nil {
			return fmt.Errorf("encode extra fields for %s: %w", entityID, err)
		}
	}
	cols = append(cols, "extra")
	args = append(args, extraJSON)

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	sets := make([]string, 0, len(cols))
	for _, col := range cols[1 : len(cols)-1] {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	sets = append(sets, "extra = trips.extra || EXCLUDED.extra", "updated_at = now()")

	q := fmt.Sprintf(
		"INSERT INTO trips (%s) VALUES (%s) ON CONFLICT (entity_id) DO UPDATE SET %s",
		strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(sets, ", "),
	)

	if _, err := s.pool.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("merge trip %s: %w", entityID, unavailable(err))
	}
	return nil
}

const tripSelect = `SELECT entity_id, origin_location_id, destination_location_id,
       carrier_id, start_timestamp, end_timestamp, fare_amount,
       payment_method, distance, extra, updated_at
FROM trips`

func scanTripRow(row pgx.Row) (*models.TripRecord, error) {
	var rec models.TripRecord
	var extraJSON []byte
	var updatedAt time.Time
	err := row.Scan(
		&rec.EntityID, &rec.OriginLocationID, &rec.DestinationLocationID,
		&rec.CarrierID, &rec.StartTimestamp, &rec.EndTimestamp, &rec.FareAmount,
		&rec.PaymentMethod, &rec.Distance, &extraJSON, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.UpdatedAt = updatedAt
	if len(extraJSON) > 0 {
		dec := json.NewDecoder(strings.NewReader(string(extraJSON)))
		dec.UseNumber()
		if err := dec.Decode(&rec.Extra); err != nil {
			return nil, fmt.Errorf("decode extra for %s: %w", rec.EntityID, err)
		}
	}
	if len(rec.Extra) == 0 {
		rec.Extra = nil
	}
	return &rec, nil
}

func (s *PostgresStore) GetTrip(ctx context.Context, entityID string) (*models.TripRecord, error) {
	row := s.pool.QueryRow(ctx, tripSelect+" WHERE entity_id = $1", entityID)
	rec, err := scanTripRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get trip %s: %w", entityID, unavailable(err))
	}
	return rec, nil
}

func (s *PostgresStore) ScanTrips(ctx context.Context, fn func(*models.TripRecord) error) error {
	rows, err := s.pool.Query(ctx, tripSelect)
	if err != nil {
		return fmt.Errorf("scan trips: %w", unavailable(err))
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanTripRow(rows)
		if err != nil {
			return fmt.Errorf("scan trips: %w", unavailable(err))
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("scan trips: %w", unavailable(err))
	}
	return nil
}

// AppendFailure grows the per-key reason and timestamp arrays in one atomic
// statement; concurrent failures for the same key are never lost.
func (s *PostgresStore) AppendFailure(ctx context.Context, entityID, reason, timestamp string, original map[string]any) error {
	originalJSON := []byte("null")
	if original != nil {
		var err error
		originalJSON, err = json.Marshal(original)
		if err != nil {
			return fmt.Errorf("encode payload for %s: %w", entityID, err)
		}
	}

	q := `INSERT INTO trip_errors (entity_id, error_reasons, error_timestamps, original_data)
          VALUES ($1, $2, $3, $4)
          ON CONFLICT (entity_id) DO UPDATE SET
            error_reasons = trip_errors.error_reasons || EXCLUDED.error_reasons,
            error_timestamps = trip_errors.error_timestamps || EXCLUDED.error_timestamps,
            original_data = EXCLUDED.original_data,
            updated_at = now()`

	_, err := s.pool.Exec(ctx, q, entityID, []string{reason}, []string{timestamp}, originalJSON)
	if err != nil {
		return fmt.Errorf("append failure for %s: %w", entityID, unavailable(err))
	}
	return nil
}

func (s *PostgresStore) GetError(ctx context.Context, entityID string) (*models.ErrorRecord, error) {
	q := `SELECT entity_id, error_reasons, error_timestamps, original_data, updated_at
          FROM trip_errors WHERE entity_id = $1`

	var rec models.ErrorRecord
	var originalJSON []byte
	err := s.pool.QueryRow(ctx, q, entityID).Scan(
		&rec.EntityID, &rec.Reasons, &rec.Timestamps, &originalJSON, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get error record %s: %w", entityID, unavailable(err))
	}
	if len(originalJSON) > 0 && string(originalJSON) != "null" {
		dec := json.NewDecoder(strings.NewReader(string(originalJSON)))
		dec.UseNumber()
		if err := dec.Decode(&rec.OriginalData); err != nil {
			return nil, fmt.Errorf("decode payload for %s: %w", entityID, err)
		}
	}
	return &rec, nil
}
