package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/idbtx/internal/trace"
)

// ErrRunNotFound is returned by ReadRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// ListRuns returns every run in recording order. An empty scenario matches
// all runs.
//
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListRuns(ctx context.Context, scenario string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scenario, passed, ticks, digest, errors
		FROM runs
		WHERE ? = '' OR scenario = ?
		ORDER BY seq ASC
	`, scenario, scenario)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns a run and its events ordered by seq.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, []trace.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, scenario, passed, ticks, digest, errors
		FROM runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, nil, err
	}

	events, err := s.readEvents(ctx, id)
	if err != nil {
		return Run{}, nil, err
	}
	return run, events, nil
}

func (s *Store) readEvents(ctx context.Context, runID string) ([]trace.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, tick, target, type, error, detail
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []trace.Event{}
	for rows.Next() {
		var e trace.Event
		if err := rows.Scan(&e.Seq, &e.Tick, &e.Target, &e.Type, &e.Error, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run      Run
		passed   int
		errsJSON string
	)
	if err := sc.Scan(&run.ID, &run.Scenario, &passed, &run.Ticks, &run.Digest, &errsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Passed = passed == 1
	if err := json.Unmarshal([]byte(errsJSON), &run.Errors); err != nil {
		return Run{}, fmt.Errorf("decode run errors: %w", err)
	}
	return run, nil
}
