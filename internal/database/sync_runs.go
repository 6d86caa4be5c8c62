package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	SyncStatusRunning   = "running"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

// SyncRun is one pass over the seed list.
type SyncRun struct {
	ID         uuid.UUID  `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Seeds      int        `json:"seeds"`
	Created    int        `json:"created"`
	Updated    int        `json:"updated"`
	Failed     int        `json:"failed"`
	Status     string     `json:"status"`
}

type SyncRunRepository struct {
	db *DB
}

func NewSyncRunRepository(db *DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// Start records a new running pass.
func (r *SyncRunRepository) Start(ctx context.Context, seeds int) (*SyncRun, error) {
	run := &SyncRun{
		ID:        uuid.New(),
		StartedAt: time.Now(),
		Seeds:     seeds,
		Status:    SyncStatusRunning,
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO sync_runs (id, started_at, seeds, status)
		VALUES ($1, $2, $3, $4)`,
		run.ID, run.StartedAt, run.Seeds, run.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to start sync run: %w", err)
	}
	return run, nil
}

// Finish stores the final counters of run.
func (r *SyncRunRepository) Finish(ctx context.Context, run *SyncRun) error {
	now := time.Now()
	run.FinishedAt = &now

	result, err := r.db.pool.Exec(ctx, `
		UPDATE sync_runs
		SET finished_at = $2, created = $3, updated = $4, failed = $5, status = $6
		WHERE id = $1`,
		run.ID, run.FinishedAt, run.Created, run.Updated, run.Failed, run.Status)
	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("sync run not found: %s", run.ID)
	}
	return nil
}

// Latest returns the most recent passes, newest first.
func (r *SyncRunRepository) Latest(ctx context.Context, limit int) ([]*SyncRun, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, started_at, finished_at, seeds, created, updated, failed, status
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	runs := []*SyncRun{}
	for rows.Next() {
		run := &SyncRun{}
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.Seeds,
			&run.Created, &run.Updated, &run.Failed, &run.Status); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return runs, nil
}
