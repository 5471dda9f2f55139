// Package aggregator filters completed trips and computes per-day fare KPIs.
package aggregator

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tripstream-systems/tripstream/internal/models"
)

// unionRequired is the full field union a record needs from both phases
// before it qualifies for aggregation. This is deliberately stricter than
// per-event validation: a record that has only seen one phase is never
// complete.
var unionRequired = []string{
	models.FieldEntityID,
	models.FieldOriginLocationID,
	models.FieldDestinationLocationID,
	models.FieldCarrierID,
	models.FieldStartTimestamp,
	models.FieldEndTimestamp,
	models.FieldFareAmount,
	models.FieldPaymentMethod,
	models.FieldDistance,
}

// Qualified is a trip record admitted to aggregation, with its derived
// calendar date and parsed fare.
type Qualified struct {
	Record *models.TripRecord
	Date   string
	Fare   decimal.Decimal
}

// Qualify decides whether a merged record participates in aggregation.
// Returns the qualified record, or a skip reason. Skips are an expected
// aggregation-time outcome and are logged by the caller, never quarantined.
func Qualify(rec *models.TripRecord) (*Qualified, string) {
	for _, field := range unionRequired {
		v := rec.Field(field)
		if strings.TrimSpace(v) == "" || v == "null" {
			return nil, fmt.Sprintf("missing or blank field: %s", field)
		}
	}

	fare, err := decimal.NewFromString(rec.FareAmount)
	if err != nil {
		return nil, fmt.Sprintf("fare amount %q is not numeric", rec.FareAmount)
	}
	if !fare.IsPositive() {
		return nil, fmt.Sprintf("fare amount %s is not positive", fare)
	}

	date, err := endDate(rec.EndTimestamp)
	if err != nil {
		return nil, fmt.Sprintf("end timestamp %q is not parseable", rec.EndTimestamp)
	}

	return &Qualified{Record: rec, Date: date, Fare: fare}, ""
}

// Complete reports whether a record would qualify for aggregation.
func Complete(rec *models.TripRecord) bool {
	q, _ := Qualify(rec)
	return q != nil
}

// endDate derives the UTC calendar date from an end timestamp. A trailing
// literal Z zone marker is stripped before parsing.
func endDate(ts string) (string, error) {
	trimmed := strings.TrimSuffix(ts, "Z")
	parsed, err := parseISO(trimmed)
	if err != nil {
		return "", err
	}
	return parsed.UTC().Format("2006-01-02"), nil
}

// Accepted ISO-8601 forms, with or without fractional seconds or a numeric
// UTC offset. Offset timestamps are normalized to UTC before the date is
// taken.
var isoLayouts = []string{
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02T15:04:05-07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseISO(s string) (time.Time, error) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
