package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wedosoft/project-a/internal/storage"
	"github.com/wedosoft/project-a/internal/types"
)

// LogProgress upserts one progress row on (job_id, step).
func (s *Store) LogProgress(ctx context.Context, entry *types.ProgressEntry) error {
	schema, err := s.ensureSchema(ctx, entry.TenantID)
	if err != nil {
		return err
	}

	pct := entry.Percentage
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s.progress_logs (job_id, tenant_id, step, total_steps, message, percentage, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (job_id, tenant_id, step) DO UPDATE SET
			total_steps = EXCLUDED.total_steps,
			message = EXCLUDED.message,
			percentage = EXCLUDED.percentage,
			created_at = EXCLUDED.created_at`, schema),
		entry.JobID, entry.TenantID, entry.Step, entry.TotalSteps,
		entry.Message, pct, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("log progress: %w", err)
	}
	return nil
}

// GetLatestProgress returns the highest-step row for a job.
func (s *Store) GetLatestProgress(ctx context.Context, tenantID, jobID string) (*types.ProgressEntry, error) {
	schema, err := s.ensureSchema(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var entry types.ProgressEntry
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT job_id, tenant_id, step, total_steps, message, percentage, created_at
		FROM %s.progress_logs
		WHERE job_id = $1 AND tenant_id = $2
		ORDER BY step DESC LIMIT 1`, schema),
		jobID, tenantID).Scan(&entry.JobID, &entry.TenantID, &entry.Step,
		&entry.TotalSteps, &entry.Message, &entry.Percentage, &entry.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest progress: %w", err)
	}
	return &entry, nil
}

// ListProgress returns all progress rows for a job in step order.
func (s *Store) ListProgress(ctx context.Context, tenantID, jobID string) ([]*types.ProgressEntry, error) {
	schema, err := s.ensureSchema(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT job_id, tenant_id, step, total_steps, message, percentage, created_at
		FROM %s.progress_logs
		WHERE job_id = $1 AND tenant_id = $2
		ORDER BY step`, schema),
		jobID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.ProgressEntry
	for rows.Next() {
		var entry types.ProgressEntry
		if err := rows.Scan(&entry.JobID, &entry.TenantID, &entry.Step,
			&entry.TotalSteps, &entry.Message, &entry.Percentage, &entry.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &entry)
	}
	return out, rows.Err()
}
