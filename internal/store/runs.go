package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Cursor returns the incremental sync cursor of a source, or "" if the
// source never completed a sync.
func (s *Store) Cursor(ctx context.Context, source string) (string, error) {
	var cursor string
	err := s.db.QueryRowContext(ctx, `SELECT cursor FROM sync_state WHERE source = ?`, source).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get cursor %s: %w", source, err)
	}
	return cursor, nil
}

// SetCursor records the cursor of a source.
func (s *Store) SetCursor(ctx context.Context, source, cursor string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_state (source, cursor, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(source) DO UPDATE SET cursor = excluded.cursor, updated_at = excluded.updated_at`,
		source, cursor, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("set cursor %s: %w", source, err)
	}
	return nil
}

// RunStats are the counters of one run.
type RunStats struct {
	Fetched  int `json:"fetched"`
	Upserted int `json:"upserted"`
	Deleted  int `json:"deleted"`
}

// Run is a recorded sync or import run.
type Run struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Full       bool      `json:"full"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Stats      RunStats  `json:"stats"`
	Error      string    `json:"error,omitempty"`
}

// Running reports whether the run never finished.
func (r Run) Running() bool {
	return r.FinishedAt.IsZero()
}

// Duration is the wall time of a finished run.
func (r Run) Duration() time.Duration {
	if r.Running() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StartRun records the start of a run and returns its id.
func (s *Store) StartRun(ctx context.Context, source string, full bool) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (id, source, full, started_at) VALUES (?, ?, ?, ?)`,
		id, source, full, formatTime(time.Now()))
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

// FinishRun records the outcome of a run. runErr may be nil.
func (s *Store) FinishRun(ctx context.Context, id string, stats RunStats, runErr error) error {
	var msg string
	if runErr != nil {
		msg = runErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs SET finished_at = ?, fetched = ?, upserted = ?, deleted = ?, error = ? WHERE id = ?`,
		formatTime(time.Now()), stats.Fetched, stats.Upserted, stats.Deleted, msg, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

const runColumns = `id, source, full, started_at, finished_at, fetched, upserted, deleted, error`

func scanRun(row scanner) (Run, error) {
	var (
		r                 Run
		started, finished string
	)
	if err := row.Scan(&r.ID, &r.Source, &r.Full, &started, &finished,
		&r.Stats.Fetched, &r.Stats.Upserted, &r.Stats.Deleted, &r.Error); err != nil {
		return r, err
	}
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	return r, nil
}

// GetRun returns a single run.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM sync_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return r, err
}

// Runs returns the latest runs, newest first. limit <= 0 means 20.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM sync_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
