package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wedosoft/project-a/internal/storage"
	"github.com/wedosoft/project-a/internal/types"
)

// LogProgress upserts one progress row on (job_id, step). Percentage is
// clamped into [0, 100] so a miscomputed caller can never violate the schema
// check.
func (s *Store) LogProgress(ctx context.Context, entry *types.ProgressEntry) error {
	if entry.TenantID == "" {
		return storage.ErrTenantRequired
	}

	pct := entry.Percentage
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	_, err := s.execContext(ctx, entry.TenantID, `
		INSERT INTO progress_logs (job_id, tenant_id, step, total_steps, message, percentage, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id, tenant_id, step) DO UPDATE SET
			total_steps = excluded.total_steps,
			message = excluded.message,
			percentage = excluded.percentage,
			created_at = excluded.created_at`,
		entry.JobID, entry.TenantID, entry.Step, entry.TotalSteps,
		entry.Message, pct, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("log progress: %w", err)
	}
	return nil
}

// GetLatestProgress returns the highest-step row for a job.
func (s *Store) GetLatestProgress(ctx context.Context, tenantID, jobID string) (*types.ProgressEntry, error) {
	row, err := s.queryRowContext(ctx, tenantID, `
		SELECT job_id, tenant_id, step, total_steps, message, percentage, created_at
		FROM progress_logs
		WHERE job_id = ? AND tenant_id = ?
		ORDER BY step DESC LIMIT 1`,
		jobID, tenantID)
	if err != nil {
		return nil, err
	}

	entry, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return entry, err
}

// ListProgress returns all progress rows for a job in step order.
func (s *Store) ListProgress(ctx context.Context, tenantID, jobID string) ([]*types.ProgressEntry, error) {
	rows, err := s.queryContext(ctx, tenantID, `
		SELECT job_id, tenant_id, step, total_steps, message, percentage, created_at
		FROM progress_logs
		WHERE job_id = ? AND tenant_id = ?
		ORDER BY step`,
		jobID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.ProgressEntry
	for rows.Next() {
		entry, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func scanProgress(r rowScanner) (*types.ProgressEntry, error) {
	var entry types.ProgressEntry
	err := r.Scan(&entry.JobID, &entry.TenantID, &entry.Step, &entry.TotalSteps,
		&entry.Message, &entry.Percentage, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
