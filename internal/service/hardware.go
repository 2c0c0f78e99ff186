package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"racetimer"
	"racetimer/internal/repository"
)

// HardwareService drives the serial session and records operator-facing
// events around connection and race lifecycle.
type HardwareService struct {
	session   DeviceSession
	raceRepo  repository.RaceRepo
	eventRepo repository.EventRepo
}

func NewHardwareService(session DeviceSession, raceRepo repository.RaceRepo, eventRepo repository.EventRepo) *HardwareService {
	return &HardwareService{session: session, raceRepo: raceRepo, eventRepo: eventRepo}
}

// Event log types recorded by this service.
const (
	EventConnect    = "CONNECT"
	EventDisconnect = "DISCONNECT"
	EventRaceStart  = "RACE_START"
)

// calibrateSettle gives the device a beat to answer the status nudge before
// the calibrate command follows on the same line.
const calibrateSettle = 100 * time.Millisecond

// Connect opens the hardware link (auto-detecting the port when none is
// given) and logs the connection.
func (s *HardwareService) Connect(ctx context.Context, port string) error {
	if err := s.session.Connect(port); err != nil {
		return err
	}
	s.appendEvent(ctx, EventConnect, "Connected to timer hardware", map[string]any{
		"port": s.session.PortName(),
	})
	return nil
}

// Disconnect closes the hardware link and logs the disconnection.
func (s *HardwareService) Disconnect(ctx context.Context) error {
	if err := s.session.Disconnect(); err != nil {
		return err
	}
	s.appendEvent(ctx, EventDisconnect, "Disconnected from timer hardware", nil)
	return nil
}

// Status returns the link state plus the last device-reported snapshot,
// nudging the device for a fresh one first (best-effort).
func (s *HardwareService) Status() racetimer.HardwareStatus {
	if !s.session.Connected() {
		return racetimer.HardwareStatus{Connected: false}
	}
	// Request a fresh status; the answer arrives asynchronously via the
	// read loop, so this call returns the last-known snapshot.
	_ = s.session.SendCommand("status", nil)
	return racetimer.HardwareStatus{
		Connected: true,
		Port:      s.session.PortName(),
		Status:    s.session.LastStatus(),
	}
}

// Ports enumerates the serial ports visible right now.
func (s *HardwareService) Ports() ([]racetimer.PortInfo, error) {
	return s.session.AvailablePorts()
}

// SendCommand forwards an arbitrary command to the device.
func (s *HardwareService) SendCommand(name string, params map[string]any) error {
	return s.session.SendCommand(name, params)
}

// StartRace marks the race in progress (best-effort; the command is sent
// regardless so the hardware is never left waiting on storage) and tells the
// device to arm the start gate.
func (s *HardwareService) StartRace(ctx context.Context, raceID int64) error {
	if err := s.raceRepo.MarkRaceStarted(ctx, raceID); err != nil {
		s.appendEvent(ctx, "ERROR", "Failed to mark race started", map[string]any{
			"race_id": raceID, "err": err.Error(),
		})
	}
	if err := s.session.SendCommand("start_race", map[string]any{"race_id": raceID}); err != nil {
		return err
	}
	s.appendEvent(ctx, EventRaceStart, "Race start command sent", map[string]any{
		"race_id": raceID,
	})
	return nil
}

// ResetTimer tells the device to reset its race timer.
func (s *HardwareService) ResetTimer() error {
	return s.session.SendCommand("reset_timer", nil)
}

// Calibrate nudges the device with a status request, then sends the sensor
// calibration command.
func (s *HardwareService) Calibrate() error {
	if err := s.session.SendCommand("status", nil); err != nil {
		return err
	}
	time.Sleep(calibrateSettle)
	return s.session.SendCommand("calibrate", nil)
}

// appendEvent records an operator log entry, best-effort.
func (s *HardwareService) appendEvent(ctx context.Context, typ, description string, meta map[string]any) {
	if s.eventRepo == nil {
		return
	}
	ev := racetimer.RaceEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  time.Now().UTC(),
		Type:        typ,
		Description: description,
	}
	if meta != nil {
		ev.Metadata = meta
	}
	_ = s.eventRepo.Append(ctx, ev)
}
