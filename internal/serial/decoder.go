package serial

import (
	"encoding/json"
	"strings"
)

// Kind classifies one decoded device message.
type Kind string

// Message kinds reported by the timer firmware, plus the two synthetic kinds
// (error for malformed JSON, unrecognized for forward compatibility).
const (
	KindStatus        Kind = "status"
	KindSensorReading Kind = "sensor_reading"
	KindRaceStart     Kind = "race_start"
	KindRaceUpdate    Kind = "race_update"
	KindRaceResult    Kind = "race_result"
	KindRaceFinish    Kind = "race_finish"
	KindRaceCompleted Kind = "race_completed"
	KindError         Kind = "error"
	KindUnrecognized  Kind = "unrecognized"
)

// Event is one decoded unit of information from the device. Fields are the
// raw JSON object members, passed through opaquely.
type Event struct {
	Kind   Kind
	Fields map[string]any
}

// Markers of ESP32 boot/debug chatter that the firmware intermixes with JSON
// telemetry on the same stream.
var bootMarkers = []string{"rst:", "boot:", "mode:", "load:", "entry", "configsip"}

var knownKinds = map[string]Kind{
	"status":         KindStatus,
	"sensor_reading": KindSensorReading,
	"race_start":     KindRaceStart,
	"race_update":    KindRaceUpdate,
	"race_result":    KindRaceResult,
	"race_finish":    KindRaceFinish,
	"race_completed": KindRaceCompleted,
	"error":          KindError,
}

// DecodeLine classifies one framed line. It returns nil for lines that carry
// nothing actionable: free-text boot/debug output is deliberately tolerated
// because the firmware shares one stream for logs and telemetry.
//
// Malformed JSON (a line starting with '{' that does not parse) yields an
// error event rather than a failure, so a garbled line never takes down the
// read loop. Objects without a recognized shape decode as unrecognized; the
// device port name is injected by the session before dispatch.
func DecodeLine(line string) *Event {
	if !strings.HasPrefix(line, "{") {
		return nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return &Event{
			Kind: KindError,
			Fields: map[string]any{
				"type":    "error",
				"message": "invalid JSON data received: " + err.Error(),
			},
		}
	}

	if typ, ok := fields["type"].(string); ok {
		if kind, known := knownKinds[typ]; known {
			return &Event{Kind: kind, Fields: fields}
		}
		return &Event{Kind: KindUnrecognized, Fields: fields}
	}

	// Legacy firmware omitted the type tag on sensor telemetry.
	if _, ok1 := fields["sensor1"]; ok1 {
		if _, ok2 := fields["sensor2"]; ok2 {
			return &Event{Kind: KindSensorReading, Fields: fields}
		}
	}
	return &Event{Kind: KindUnrecognized, Fields: fields}
}

// IsBootChatter reports whether a non-JSON line looks like ESP32 boot output,
// so the session can log it at a quieter level than other stray text.
func IsBootChatter(line string) bool {
	for _, marker := range bootMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}
