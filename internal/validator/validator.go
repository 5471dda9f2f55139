// Package validator classifies raw trip payloads into their event phase.
package validator

import (
	"fmt"

	"github.com/tripstream-systems/tripstream/internal/models"
)

// Phase identifies which half of a trip an event carries.
type Phase string

const (
	PhaseStart   Phase = "start"
	PhaseEnd     Phase = "end"
	PhaseInvalid Phase = "invalid"
)

// Rejection reasons for events that cannot be tied to a phase.
const (
	ReasonMissingIdentifier = "missing or invalid identifier"
	ReasonUnknownRecordType = "unknown record type"
)

// Classify determines the phase of a decoded payload. There is no explicit
// type tag on the wire: presence of the origin_location_id key implies a
// start event, otherwise presence of the end_timestamp key implies an end
// event. That inference happens here exactly once; downstream code carries
// the resolved phase and never re-infers it.
//
// Returns the phase and, for invalid events, the rejection reason. Classify
// is a pure function over a single payload.
func Classify(payload map[string]any) (Phase, string) {
	id, ok := payload[models.FieldEntityID]
	if !ok || models.IsBlank(id) {
		return PhaseInvalid, ReasonMissingIdentifier
	}
	if _, isString := id.(string); !isString {
		return PhaseInvalid, ReasonMissingIdentifier
	}

	var phase Phase
	var required []string
	if _, ok := payload[models.FieldOriginLocationID]; ok {
		phase = PhaseStart
		required = models.StartRequired
	} else if _, ok := payload[models.FieldEndTimestamp]; ok {
		phase = PhaseEnd
		required = models.EndRequired
	} else {
		return PhaseInvalid, ReasonUnknownRecordType
	}

	for _, field := range required {
		v, ok := payload[field]
		if !ok || models.IsBlank(v) {
			return PhaseInvalid, fmt.Sprintf("missing or blank field: %s", field)
		}
	}

	return phase, ""
}

// EntityID extracts the identifier from a payload, if it is usable as a
// quarantine key. Returns false when a synthetic key must be generated.
func EntityID(payload map[string]any) (string, bool) {
	v, ok := payload[models.FieldEntityID]
	if !ok || models.IsBlank(v) {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return s, true
}
