package service

import (
	"context"

	"racetimer"
	"racetimer/internal/countdown"
	"racetimer/internal/repository"
)

// Hardware exposes control over the serial timer hardware link.
type Hardware interface {
	Connect(ctx context.Context, port string) error
	Disconnect(ctx context.Context) error
	Status() racetimer.HardwareStatus
	Ports() ([]racetimer.PortInfo, error)
	SendCommand(name string, params map[string]any) error
	StartRace(ctx context.Context, raceID int64) error
	ResetTimer() error
	Calibrate() error
}

// Countdown exposes the per-heat countdown operations.
type Countdown interface {
	Start(heatID int64, duration int) racetimer.CountdownStatus
	Pause(heatID int64) racetimer.CountdownStatus
	Reset(heatID int64, duration int) racetimer.CountdownStatus
	Status(heatID int64) racetimer.CountdownStatus
}

// EventLog exposes append-only operator logs with filtered access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]racetimer.RaceEvent, error)
}

// DeviceSession is the slice of the serial session the hardware service
// drives; serial.Session implements it.
type DeviceSession interface {
	Connect(port string) error
	Disconnect() error
	SendCommand(name string, params map[string]any) error
	Connected() bool
	PortName() string
	LastStatus() map[string]any
	AvailablePorts() ([]racetimer.PortInfo, error)
}

// Service aggregates all sub-services.
type Service struct {
	Hardware
	Countdown
	EventLog
}

// NewService wires the serial session, countdown registry and repositories
// into concrete services.
func NewService(session DeviceSession, registry *countdown.Registry, repos *repository.Repository) *Service {
	return &Service{
		Hardware:  NewHardwareService(session, repos.Races, repos.Events),
		Countdown: NewCountdownService(registry),
		EventLog:  NewEventLogService(repos.Events),
	}
}
