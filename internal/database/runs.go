package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mcpsek/guardian/internal/model"
	"github.com/mcpsek/guardian/internal/runs"
)

const runColumns = `id, query, max_results, fingerprint, status, result_ref,
	result_count, error, started_at, finished_at`

// RunStore implements runs.Store on the runs table
type RunStore struct {
	db *DB
}

// NewRunStore creates a run store backed by db
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

// Insert records a new run
func (s *RunStore) Insert(ctx context.Context, run *model.RunRecord) error {
	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.pool.Exec(ctx, query,
		run.ID,
		run.Query,
		run.MaxResults,
		run.Fingerprint,
		string(run.Status),
		run.ResultRef,
		run.ResultCount,
		run.Error,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Finish completes a pending run. The row is locked so concurrent
// completions of the same run serialize.
func (s *RunStore) Finish(ctx context.Context, id uuid.UUID, c runs.Completion, finishedAt time.Time) error {
	return s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM runs WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock run: %w", err)
		}
		if model.RunStatus(status) != model.RunPending {
			return runs.ErrAlreadyCompleted
		}

		query := `
			UPDATE runs
			SET status = $2, result_ref = $3, result_count = $4, error = $5, finished_at = $6
			WHERE id = $1
		`
		if _, err := tx.Exec(ctx, query, id, string(c.Status), c.ResultRef, c.ResultCount, c.Error, finishedAt); err != nil {
			return fmt.Errorf("update run: %w", err)
		}
		return nil
	})
}

// Get retrieves a run by ID
func (s *RunStore) Get(ctx context.Context, id uuid.UUID) (*model.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`
	run, err := scanRun(s.db.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// List retrieves the most recent runs
func (s *RunStore) List(ctx context.Context, limit int) ([]*model.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id LIMIT $1`
	rows, err := s.db.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*model.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

func scanRun(row pgx.Row) (*model.RunRecord, error) {
	var (
		run    model.RunRecord
		status string
	)
	err := row.Scan(
		&run.ID,
		&run.Query,
		&run.MaxResults,
		&run.Fingerprint,
		&status,
		&run.ResultRef,
		&run.ResultCount,
		&run.Error,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Status = model.RunStatus(status)
	return &run, nil
}
