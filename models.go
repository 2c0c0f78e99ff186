package racetimer

import "time"

// Race lifecycle statuses.
const (
	RaceStatusScheduled  = "scheduled"
	RaceStatusInProgress = "in_progress"
	RaceStatusCompleted  = "completed"
)

// HardwareStatus is the last-known snapshot of the timer hardware link.
type HardwareStatus struct {
	Connected bool           `json:"connected"`
	Port      string         `json:"port,omitempty"`
	Status    map[string]any `json:"status,omitempty"` // device-reported fields, passed through opaquely
}

// PortInfo describes one serial port as enumerated from the OS.
type PortInfo struct {
	Port        string `json:"port"`
	Description string `json:"description"`
	HardwareID  string `json:"hardware_id,omitempty"`
}

// Race is one timed race instance for a heat.
type Race struct {
	ID        int64      `json:"id"`
	HeatID    int64      `json:"heat_id,omitempty"`
	Status    string     `json:"status"` // scheduled | in_progress | completed
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// LaneResult is one lane's timing result within a race.
type LaneResult struct {
	RaceID     int64   `json:"race_id"`
	LaneNumber int     `json:"lane_number"`
	TimeSec    float64 `json:"time_seconds"`
	Position   int     `json:"position"` // 1 winner, 2 loser, 0 tie
}

// RaceEvent is a single operator-facing log entry.
type RaceEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // CONNECT | DISCONNECT | RACE_START | ERROR
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}

// CountdownStatus is a computed snapshot of one heat's countdown.
type CountdownStatus struct {
	HeatID    int64  `json:"heat_id"`
	State     string `json:"state"` // ready | running | paused | completed
	Remaining int    `json:"remaining_seconds"`
	Duration  int    `json:"duration"`
	Formatted string `json:"formatted_time"` // M:SS
}
