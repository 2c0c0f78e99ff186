package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"racetimer"
)

type capturingEventRepo struct {
	fakeEventRepo
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (c *capturingEventRepo) List(_ context.Context, from, to time.Time, typ string) ([]racetimer.RaceEvent, error) {
	c.lastFrom = from
	c.lastTo = to
	c.lastType = typ
	return c.listed, c.err
}

func TestEventLogService_NormalizesFilter(t *testing.T) {
	repo := &capturingEventRepo{}
	repo.listed = []racetimer.RaceEvent{{EventID: "e1", Type: "CONNECT"}}
	svc := NewEventLogService(repo)

	loc := time.FixedZone("UTC+5", 5*3600)
	from := time.Date(2026, 8, 1, 10, 0, 0, 0, loc)
	to := time.Date(2026, 8, 2, 10, 0, 0, 0, loc)

	got, err := svc.List(context.Background(), LogFilter{From: from, To: to, Type: " connect "})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].EventID != "e1" {
		t.Fatalf("results: %+v", got)
	}

	if repo.lastFrom.Location() != time.UTC || !repo.lastFrom.Equal(from) {
		t.Fatalf("from not normalized: %v", repo.lastFrom)
	}
	if repo.lastTo.Location() != time.UTC || !repo.lastTo.Equal(to) {
		t.Fatalf("to not normalized: %v", repo.lastTo)
	}
	if repo.lastType != "CONNECT" {
		t.Fatalf("type not normalized: %q", repo.lastType)
	}
}

func TestEventLogService_InvalidRange(t *testing.T) {
	repo := &capturingEventRepo{}
	svc := NewEventLogService(repo)

	from := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.List(context.Background(), LogFilter{From: from, To: to})
	if !errors.Is(err, errInvalidTimeRange) {
		t.Fatalf("err=%v, want errInvalidTimeRange", err)
	}
}

func TestEventLogService_ZeroTimesPassThrough(t *testing.T) {
	repo := &capturingEventRepo{}
	svc := NewEventLogService(repo)

	if _, err := svc.List(context.Background(), LogFilter{}); err != nil {
		t.Fatalf("List: %v", err)
	}
	if !repo.lastFrom.IsZero() || !repo.lastTo.IsZero() || repo.lastType != "" {
		t.Fatalf("filter not passed through: %v %v %q", repo.lastFrom, repo.lastTo, repo.lastType)
	}
}
