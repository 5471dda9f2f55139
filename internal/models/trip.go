// Package models defines the records shared across the trip pipeline.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Field names as they appear on the wire and in the trips table.
const (
	FieldEntityID              = "entity_id"
	FieldEventTimestamp        = "event_timestamp"
	FieldOriginLocationID      = "origin_location_id"
	FieldDestinationLocationID = "destination_location_id"
	FieldCarrierID             = "carrier_id"
	FieldStartTimestamp        = "start_timestamp"
	FieldEndTimestamp          = "end_timestamp"
	FieldFareAmount            = "fare_amount"
	FieldPaymentMethod         = "payment_method"
	FieldDistance              = "distance"
)

// StartRequired lists the fields a start event must carry, in the order
// they are checked (the first missing one names the rejection reason).
var StartRequired = []string{
	FieldEntityID,
	FieldOriginLocationID,
	FieldDestinationLocationID,
	FieldCarrierID,
	FieldStartTimestamp,
}

// EndRequired lists the fields an end event must carry.
var EndRequired = []string{
	FieldEntityID,
	FieldEndTimestamp,
	FieldFareAmount,
	FieldPaymentMethod,
	FieldDistance,
}

// KnownFields is the set of typed trip columns. Anything else merged into a
// trip lands in the open Extra map.
var KnownFields = map[string]bool{
	FieldOriginLocationID:      true,
	FieldDestinationLocationID: true,
	FieldCarrierID:             true,
	FieldStartTimestamp:        true,
	FieldEndTimestamp:          true,
	FieldFareAmount:            true,
	FieldPaymentMethod:         true,
	FieldDistance:              true,
}

// TripRecord is the persisted union of all fields ever merged in for one
// entity id. Unset fields are empty strings, never nulls.
type TripRecord struct {
	EntityID              string         `json:"entity_id"`
	OriginLocationID      string         `json:"origin_location_id,omitempty"`
	DestinationLocationID string         `json:"destination_location_id,omitempty"`
	CarrierID             string         `json:"carrier_id,omitempty"`
	StartTimestamp        string         `json:"start_timestamp,omitempty"`
	EndTimestamp          string         `json:"end_timestamp,omitempty"`
	FareAmount            string         `json:"fare_amount,omitempty"`
	PaymentMethod         string         `json:"payment_method,omitempty"`
	Distance              string         `json:"distance,omitempty"`
	Extra                 map[string]any `json:"extra,omitempty"`
	UpdatedAt             time.Time      `json:"updated_at,omitempty"`
}

// Field returns the value of a known field by wire name.
func (r *TripRecord) Field(name string) string {
	switch name {
	case FieldEntityID:
		return r.EntityID
	case FieldOriginLocationID:
		return r.OriginLocationID
	case FieldDestinationLocationID:
		return r.DestinationLocationID
	case FieldCarrierID:
		return r.CarrierID
	case FieldStartTimestamp:
		return r.StartTimestamp
	case FieldEndTimestamp:
		return r.EndTimestamp
	case FieldFareAmount:
		return r.FareAmount
	case FieldPaymentMethod:
		return r.PaymentMethod
	case FieldDistance:
		return r.Distance
	}
	return ""
}

// SetField assigns a known field by wire name. Unknown names are ignored;
// callers route those into Extra.
func (r *TripRecord) SetField(name, value string) {
	switch name {
	case FieldOriginLocationID:
		r.OriginLocationID = value
	case FieldDestinationLocationID:
		r.DestinationLocationID = value
	case FieldCarrierID:
		r.CarrierID = value
	case FieldStartTimestamp:
		r.StartTimestamp = value
	case FieldEndTimestamp:
		r.EndTimestamp = value
	case FieldFareAmount:
		r.FareAmount = value
	case FieldPaymentMethod:
		r.PaymentMethod = value
	case FieldDistance:
		r.Distance = value
	}
}

// ErrorRecord accumulates quarantine history for one entity id. Reasons and
// Timestamps always have equal length; OriginalData holds only the most
// recently rejected payload.
type ErrorRecord struct {
	EntityID     string         `json:"entity_id"`
	Reasons      []string       `json:"error_reasons"`
	Timestamps   []string       `json:"error_timestamps"`
	OriginalData map[string]any `json:"original_data,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at,omitempty"`
}

// KPIRecord holds one day's fare statistics. Arithmetic stays in decimal;
// the monetary fields become plain floats only when the record is
// serialized for output.
type KPIRecord struct {
	Date        string
	CountTrips  int
	TotalFare   decimal.Decimal
	AverageFare decimal.Decimal
	MaxFare     decimal.Decimal
	MinFare     decimal.Decimal
}

// MarshalJSON serializes the KPI with monetary fields as standard floats.
func (k KPIRecord) MarshalJSON() ([]byte, error) {
	type out struct {
		Date        string  `json:"date"`
		TotalFare   float64 `json:"total_fare"`
		CountTrips  int     `json:"count_trips"`
		AverageFare float64 `json:"average_fare"`
		MaxFare     float64 `json:"max_fare"`
		MinFare     float64 `json:"min_fare"`
	}
	return json.Marshal(out{
		Date:        k.Date,
		TotalFare:   k.TotalFare.InexactFloat64(),
		CountTrips:  k.CountTrips,
		AverageFare: k.AverageFare.InexactFloat64(),
		MaxFare:     k.MaxFare.InexactFloat64(),
		MinFare:     k.MinFare.InexactFloat64(),
	})
}

// CanonicalString converts a decoded JSON value to its stored string form.
// Numbers become exact decimal strings so no binary float representation
// ever reaches the store.
func CanonicalString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		if d, err := decimal.NewFromString(t.String()); err == nil {
			return d.String()
		}
		return t.String()
	case float64:
		return decimal.NewFromFloat(t).String()
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// IsBlank reports whether a decoded JSON value counts as absent for
// validation purposes: nil, an empty or whitespace-only string, or the
// literal string "null". Non-string values such as numbers are never blank.
func IsBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	return strings.TrimSpace(s) == "" || s == "null"
}
