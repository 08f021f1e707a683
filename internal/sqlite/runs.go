package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcpsek/guardian/internal/model"
	"github.com/mcpsek/guardian/internal/runs"
)

const runColumns = `id, query, max_results, fingerprint, status, result_ref, result_count, error, started_at, finished_at`

// RunStore implements runs.Store on SQLite
type RunStore struct {
	db *DB
}

// NewRunStore creates a run store backed by db
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

// Insert implements runs.Store
func (s *RunStore) Insert(ctx context.Context, run *model.RunRecord) error {
	var finished sql.NullInt64
	if run.FinishedAt != nil {
		finished = sql.NullInt64{Int64: run.FinishedAt.UnixNano(), Valid: true}
	}
	_, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.Query, run.MaxResults, run.Fingerprint, string(run.Status),
		run.ResultRef, run.ResultCount, run.Error, run.StartedAt.UnixNano(), finished,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Finish implements runs.Store. The status guard in the UPDATE makes the
// transition atomic.
func (s *RunStore) Finish(ctx context.Context, id uuid.UUID, c runs.Completion, finishedAt time.Time) error {
	res, err := s.db.conn.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, result_ref = ?, result_count = ?, error = ?, finished_at = ?
		WHERE id = ? AND status = ?`,
		string(c.Status), c.ResultRef, c.ResultCount, c.Error, finishedAt.UnixNano(),
		id.String(), string(model.RunPending),
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return runs.ErrAlreadyCompleted
}

// Get implements runs.Store
func (s *RunStore) Get(ctx context.Context, id uuid.UUID) (*model.RunRecord, error) {
	row := s.db.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id.String())
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// List implements runs.Store
func (s *RunStore) List(ctx context.Context, limit int) ([]*model.RunRecord, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []*model.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*model.RunRecord, error) {
	var (
		run      model.RunRecord
		id       string
		status   string
		ref      sql.NullString
		started  int64
		finished sql.NullInt64
	)
	err := row.Scan(&id, &run.Query, &run.MaxResults, &run.Fingerprint, &status,
		&ref, &run.ResultCount, &run.Error, &started, &finished)
	if err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse run id: %w", err)
	}
	run.ID = parsed
	run.Status = model.RunStatus(status)
	if ref.Valid {
		r := ref.String
		run.ResultRef = &r
	}
	run.StartedAt = time.Unix(0, started).UTC()
	if finished.Valid {
		t := time.Unix(0, finished.Int64).UTC()
		run.FinishedAt = &t
	}
	return &run, nil
}
