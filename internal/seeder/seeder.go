// Package seeder generates synthetic trip event streams for testing the
// pipeline end to end.
package seeder

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/tripstream-systems/tripstream/internal/messaging"
	"github.com/tripstream-systems/tripstream/internal/models"
)

// Publisher sends one event to the transport.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Options control the shape of the generated stream.
type Options struct {
	// Count is the number of trips to generate (each trip is two events).
	Count int

	// InvalidRate is the fraction of trips that emit a deliberately broken
	// event in place of one phase.
	InvalidRate float64

	// DuplicateRate is the fraction of events republished a second time,
	// exercising at-least-once semantics downstream.
	DuplicateRate float64

	// OutOfOrderRate is the fraction of trips whose end event is published
	// before the start event.
	OutOfOrderRate float64

	// TimeSpread places trip end times over this period back from now.
	TimeSpread time.Duration

	// Seed fixes the random sequence; zero seeds from the clock.
	Seed int64
}

// Stats summarizes a seeding run.
type Stats struct {
	Trips      int
	Events     int
	Invalid    int
	Duplicates int
	OutOfOrder int
}

var paymentMethods = []string{"card", "cash", "mobile", "voucher"}

// Run generates and publishes the stream.
func Run(ctx context.Context, pub Publisher, opts Options) (*Stats, error) {
	if opts.Count <= 0 {
		opts.Count = 100
	}
	if opts.TimeSpread <= 0 {
		opts.TimeSpread = 24 * time.Hour
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	faker := gofakeit.New(seed)

	stats := &Stats{}
	for i := 0; i < opts.Count; i++ {
		trip := generateTrip(rng, faker, opts.TimeSpread)
		events := [][]byte{startPayload(trip), endPayload(trip)}

		if rng.Float64() < opts.InvalidRate {
			phase := rng.Intn(2)
			events[phase] = invalidPayload(rng, faker, trip)
			stats.Invalid++
		}
		if rng.Float64() < opts.OutOfOrderRate {
			events[0], events[1] = events[1], events[0]
			stats.OutOfOrder++
		}

		for _, data := range events {
			if err := pub.Publish(ctx, messaging.EventSubject(trip.id), data); err != nil {
				return stats, fmt.Errorf("publish event for %s: %w", trip.id, err)
			}
			stats.Events++

			if rng.Float64() < opts.DuplicateRate {
				if err := pub.Publish(ctx, messaging.EventSubject(trip.id), data); err != nil {
					return stats, fmt.Errorf("republish event for %s: %w", trip.id, err)
				}
				stats.Events++
				stats.Duplicates++
			}
		}
		stats.Trips++
	}
	return stats, nil
}

type trip struct {
	id          string
	origin      string
	destination string
	carrier     string
	start       time.Time
	end         time.Time
	fare        float64
	payment     string
	distance    float64
}

func generateTrip(rng *rand.Rand, faker *gofakeit.Faker, spread time.Duration) trip {
	end := time.Now().UTC().Add(-time.Duration(rng.Int63n(int64(spread))))
	duration := time.Duration(5+rng.Intn(55)) * time.Minute
	return trip{
		id:          fmt.Sprintf("trip-%s", uuid.New().String()),
		origin:      fmt.Sprintf("loc-%03d", rng.Intn(250)+1),
		destination: fmt.Sprintf("loc-%03d", rng.Intn(250)+1),
		carrier:     fmt.Sprintf("carrier-%02d", rng.Intn(12)+1),
		start:       end.Add(-duration),
		end:         end,
		fare:        faker.Price(4.50, 180),
		payment:     paymentMethods[rng.Intn(len(paymentMethods))],
		distance:    float64(rng.Intn(400)+5) / 10,
	}
}

func isoZ(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05") + "Z"
}

func startPayload(tr trip) []byte {
	data, _ := json.Marshal(map[string]any{
		models.FieldEntityID:              tr.id,
		models.FieldEventTimestamp:        isoZ(tr.start),
		models.FieldOriginLocationID:      tr.origin,
		models.FieldDestinationLocationID: tr.destination,
		models.FieldCarrierID:             tr.carrier,
		models.FieldStartTimestamp:        isoZ(tr.start),
	})
	return data
}

func endPayload(tr trip) []byte {
	data, _ := json.Marshal(map[string]any{
		models.FieldEntityID:       tr.id,
		models.FieldEventTimestamp: isoZ(tr.end),
		models.FieldEndTimestamp:   isoZ(tr.end),
		models.FieldFareAmount:     tr.fare,
		models.FieldPaymentMethod:  tr.payment,
		models.FieldDistance:       tr.distance,
	})
	return data
}

// invalidPayload produces one of the failure shapes the validator must
// reject: blank or missing identifiers, missing required fields, payloads
// with no phase discriminator, and undecodable bytes.
func invalidPayload(rng *rand.Rand, faker *gofakeit.Faker, tr trip) []byte {
	switch rng.Intn(5) {
	case 0: // literal "null" identifier
		data, _ := json.Marshal(map[string]any{
			models.FieldEntityID:         "null",
			models.FieldOriginLocationID: tr.origin,
		})
		return data
	case 1: // missing identifier
		data, _ := json.Marshal(map[string]any{
			models.FieldOriginLocationID: tr.origin,
			models.FieldCarrierID:        tr.carrier,
		})
		return data
	case 2: // start event missing a required field
		data, _ := json.Marshal(map[string]any{
			models.FieldEntityID:         tr.id,
			models.FieldOriginLocationID: tr.origin,
			models.FieldStartTimestamp:   isoZ(tr.start),
		})
		return data
	case 3: // no phase discriminator at all
		data, _ := json.Marshal(map[string]any{
			models.FieldEntityID:      tr.id,
			models.FieldPaymentMethod: tr.payment,
			"note":                    faker.Sentence(4),
		})
		return data
	default: // truncated JSON
		return []byte(fmt.Sprintf(`{"entity_id": "%s", "origin_`, tr.id))
	}
}
