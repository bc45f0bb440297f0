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

// UpsertAgent inserts or updates an agent on (tenant_id, email).
func (s *Store) UpsertAgent(ctx context.Context, agent *types.Agent) error {
	schema, err := s.ensureSchema(ctx, agent.TenantID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s.agents (tenant_id, email, name, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, email) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			active = EXCLUDED.active`, schema),
		agent.TenantID, agent.Email, agent.Name, agent.Role, agent.Active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

// ListAgents returns a tenant's agents.
func (s *Store) ListAgents(ctx context.Context, tenantID string) ([]*types.Agent, error) {
	schema, err := s.ensureSchema(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, tenant_id, email, name, role, active, created_at
		FROM %s.agents WHERE tenant_id = $1 ORDER BY email`, schema), tenantID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Agent
	for rows.Next() {
		var a types.Agent
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Email, &a.Name, &a.Role, &a.Active, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// UpsertLicense inserts or updates the tenant's license row.
func (s *Store) UpsertLicense(ctx context.Context, license *types.License) error {
	schema, err := s.ensureSchema(ctx, license.TenantID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s.licenses (tenant_id, seats, plan, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id) DO UPDATE SET
			seats = EXCLUDED.seats,
			plan = EXCLUDED.plan,
			expires_at = EXCLUDED.expires_at`, schema),
		license.TenantID, license.Seats, license.Plan, license.ExpiresAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert license: %w", err)
	}
	return nil
}

// GetLicense fetches the tenant's license row.
func (s *Store) GetLicense(ctx context.Context, tenantID string) (*types.License, error) {
	schema, err := s.ensureSchema(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var l types.License
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, tenant_id, seats, plan, expires_at, created_at
		FROM %s.licenses WHERE tenant_id = $1`, schema),
		tenantID).Scan(&l.ID, &l.TenantID, &l.Seats, &l.Plan, &l.ExpiresAt, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get license: %w", err)
	}
	return &l, nil
}

// UpsertSubscription inserts or updates the tenant's subscription row.
func (s *Store) UpsertSubscription(ctx context.Context, sub *types.Subscription) error {
	schema, err := s.ensureSchema(ctx, sub.TenantID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s.subscriptions (tenant_id, status, plan, started_at, renews_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id) DO UPDATE SET
			status = EXCLUDED.status,
			plan = EXCLUDED.plan,
			started_at = EXCLUDED.started_at,
			renews_at = EXCLUDED.renews_at`, schema),
		sub.TenantID, sub.Status, sub.Plan, sub.StartedAt, sub.RenewsAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// GetSubscription fetches the tenant's subscription row.
func (s *Store) GetSubscription(ctx context.Context, tenantID string) (*types.Subscription, error) {
	schema, err := s.ensureSchema(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var sub types.Subscription
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, tenant_id, status, plan, started_at, renews_at, created_at
		FROM %s.subscriptions WHERE tenant_id = $1`, schema),
		tenantID).Scan(&sub.ID, &sub.TenantID, &sub.Status, &sub.Plan,
		&sub.StartedAt, &sub.RenewsAt, &sub.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &sub, nil
}
