package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBlank(t *testing.T) {
	tests := []struct {
		name  string
		value any
		blank bool
	}{
		{"nil", nil, true},
		{"empty string", "", true},
		{"whitespace only", "   \t", true},
		{"literal null string", "null", true},
		{"plain value", "loc-001", false},
		{"number", json.Number("12.5"), false},
		{"zero number", json.Number("0"), false},
		{"bool", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.blank, IsBlank(tt.value))
		})
	}
}

func TestCanonicalString(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"string passthrough", "card", "card"},
		{"json number", json.Number("12.50"), "12.5"},
		{"integer number", json.Number("7"), "7"},
		{"negative number", json.Number("-0.10"), "-0.1"},
		{"float64", float64(3.2), "3.2"},
		{"nil", nil, ""},
		{"bool", true, "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalString(tt.value))
		})
	}
}

func TestTripRecord_FieldRoundTrip(t *testing.T) {
	rec := &TripRecord{EntityID: "trip-1"}

	for _, name := range []string{
		FieldOriginLocationID,
		FieldDestinationLocationID,
		FieldCarrierID,
		FieldStartTimestamp,
		FieldEndTimestamp,
		FieldFareAmount,
		FieldPaymentMethod,
		FieldDistance,
	} {
		rec.SetField(name, "v-"+name)
		assert.Equal(t, "v-"+name, rec.Field(name), name)
	}

	// Unknown names are a no-op, not a panic.
	rec.SetField("promo_code", "SUMMER")
	assert.Equal(t, "", rec.Field("promo_code"))
}

func TestKPIRecord_MarshalJSON(t *testing.T) {
	kpi := KPIRecord{
		Date:        "2026-08-29",
		CountTrips:  3,
		TotalFare:   decimal.RequireFromString("60"),
		AverageFare: decimal.RequireFromString("20"),
		MaxFare:     decimal.RequireFromString("30"),
		MinFare:     decimal.RequireFromString("10"),
	}

	data, err := json.Marshal(kpi)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))

	assert.Equal(t, "2026-08-29", out["date"])
	assert.Equal(t, float64(3), out["count_trips"])
	assert.Equal(t, float64(60), out["total_fare"])
	assert.Equal(t, float64(20), out["average_fare"])
	assert.Equal(t, float64(30), out["max_fare"])
	assert.Equal(t, float64(10), out["min_fare"])
}
