package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"racetimer"
)

type RaceSQLite struct {
	db *sql.DB
}

func NewRaceSQLite(db *sql.DB) *RaceSQLite { return &RaceSQLite{db: db} }

const (
	selectRaceSQL = `
		SELECT id, heat_id, status, started_at, ended_at
		FROM races WHERE id = ?
	`

	selectRaceByHeatSQL = `
		SELECT id, heat_id, status, started_at, ended_at
		FROM races WHERE heat_id = ?
		ORDER BY id DESC LIMIT 1
	`

	selectActiveRaceSQL = `
		SELECT id, heat_id, status, started_at, ended_at
		FROM races WHERE status = 'in_progress'
		ORDER BY id DESC LIMIT 1
	`

	upsertLaneResultSQL = `
		INSERT INTO race_results (race_id, lane_number, time_s, position)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(race_id, lane_number) DO UPDATE SET
			time_s=excluded.time_s,
			position=excluded.position
	`

	markStartedSQL   = `UPDATE races SET status = 'in_progress', started_at = ? WHERE id = ?`
	markCompletedSQL = `UPDATE races SET status = 'completed', ended_at = ? WHERE id = ?`
)

// FindRace loads one race by id. Returns (nil, nil) when absent.
func (r *RaceSQLite) FindRace(ctx context.Context, raceID int64) (*racetimer.Race, error) {
	return r.scanRace(r.db.QueryRowContext(ctx, selectRaceSQL, raceID))
}

// FindRaceByHeat loads the most recent race scheduled for a heat.
// Returns (nil, nil) when absent.
func (r *RaceSQLite) FindRaceByHeat(ctx context.Context, heatID int64) (*racetimer.Race, error) {
	return r.scanRace(r.db.QueryRowContext(ctx, selectRaceByHeatSQL, heatID))
}

// FindActiveRace loads the most recently started race still in progress.
// Returns (nil, nil) when none is running.
func (r *RaceSQLite) FindActiveRace(ctx context.Context) (*racetimer.Race, error) {
	return r.scanRace(r.db.QueryRowContext(ctx, selectActiveRaceSQL))
}

// MarkRaceStarted flips a race to in_progress with a start timestamp.
func (r *RaceSQLite) MarkRaceStarted(ctx context.Context, raceID int64) error {
	res, err := r.db.ExecContext(ctx, markStartedSQL, time.Now().UTC(), raceID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("race %d not found", raceID)
	}
	return nil
}

// MarkRaceCompleted flips a race to completed with an end timestamp.
func (r *RaceSQLite) MarkRaceCompleted(ctx context.Context, raceID int64) error {
	res, err := r.db.ExecContext(ctx, markCompletedSQL, time.Now().UTC(), raceID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("race %d not found", raceID)
	}
	return nil
}

// UpsertLaneResult inserts or replaces one lane's time and position.
func (r *RaceSQLite) UpsertLaneResult(ctx context.Context, raceID int64, lane int, timeSec float64, position int) error {
	_, err := r.db.ExecContext(ctx, upsertLaneResultSQL, raceID, lane, timeSec, position)
	return err
}

func (r *RaceSQLite) scanRace(row *sql.Row) (*racetimer.Race, error) {
	var (
		race      racetimer.Race
		heatID    sql.NullInt64
		startedAt sql.NullTime
		endedAt   sql.NullTime
	)
	if err := row.Scan(&race.ID, &heatID, &race.Status, &startedAt, &endedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // no matching race
		}
		return nil, err
	}
	if heatID.Valid {
		race.HeatID = heatID.Int64
	}
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		race.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time.UTC()
		race.EndedAt = &t
	}
	return &race, nil
}
