package service

import (
	"racetimer"
	"racetimer/internal/countdown"
)

// CountdownService fronts the countdown registry for the HTTP layer. Every
// operation returns the resulting snapshot so handlers can echo it to the
// caller and to the broadcaster.
type CountdownService struct {
	registry *countdown.Registry
}

func NewCountdownService(registry *countdown.Registry) *CountdownService {
	return &CountdownService{registry: registry}
}

// Start starts or resumes a heat's countdown. A positive duration resets the
// timer to that length first.
func (s *CountdownService) Start(heatID int64, duration int) racetimer.CountdownStatus {
	timer := s.registry.GetOrCreate(heatID)
	if duration > 0 {
		timer.Reset(duration)
	}
	timer.Start()
	return timer.Status()
}

// Pause pauses a heat's countdown.
func (s *CountdownService) Pause(heatID int64) racetimer.CountdownStatus {
	timer := s.registry.GetOrCreate(heatID)
	timer.Pause()
	return timer.Status()
}

// Reset returns a heat's countdown to ready, optionally with a new duration.
func (s *CountdownService) Reset(heatID int64, duration int) racetimer.CountdownStatus {
	timer := s.registry.GetOrCreate(heatID)
	timer.Reset(duration)
	return timer.Status()
}

// Status reports a heat's countdown snapshot.
func (s *CountdownService) Status(heatID int64) racetimer.CountdownStatus {
	return s.registry.GetOrCreate(heatID).Status()
}
