package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/idbtx/internal/trace"
)

// Run summarizes one scenario run.
type Run struct {
	ID       string
	Scenario string
	Passed   bool
	Ticks    int64
	// Digest is the hex SHA-256 of the run's canonical trace.
	Digest string
	Errors []string
}

// WriteRun inserts a run record. Duplicate IDs are silently ignored.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	errs := run.Errors
	if errs == nil {
		errs = []string{}
	}
	errsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	passed := 0
	if run.Passed {
		passed = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, scenario, passed, ticks, digest, errors)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.Scenario, passed, run.Ticks, run.Digest, string(errsJSON))
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteEvents appends the trace events of a run in one transaction. The run
// must already exist. Events already recorded under the same seq are
// ignored.
func (s *Store) WriteEvents(ctx context.Context, runID string, events []trace.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (run_id, seq, tick, target, type, error, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, runID, e.Seq, e.Tick, e.Target, e.Type, e.Error, e.Detail); err != nil {
			return fmt.Errorf("write event %d: %w", e.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	return nil
}
