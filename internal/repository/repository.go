package repository

import (
	"context"
	"database/sql"
	"time"

	"racetimer"
)

type RaceRepo interface {
	FindRace(ctx context.Context, raceID int64) (*racetimer.Race, error)
	FindRaceByHeat(ctx context.Context, heatID int64) (*racetimer.Race, error)
	FindActiveRace(ctx context.Context) (*racetimer.Race, error)
	MarkRaceStarted(ctx context.Context, raceID int64) error
	MarkRaceCompleted(ctx context.Context, raceID int64) error
	UpsertLaneResult(ctx context.Context, raceID int64, lane int, timeSec float64, position int) error
}

type EventRepo interface {
	Append(ctx context.Context, e racetimer.RaceEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]racetimer.RaceEvent, error)
}

type Repository struct {
	Races  RaceRepo
	Events EventRepo
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Races:  NewRaceSQLite(db),
		Events: NewEventSQLite(db),
	}
}
