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

// UpsertAgent inserts or updates an agent on (tenant_id, email).
func (s *Store) UpsertAgent(ctx context.Context, agent *types.Agent) error {
	if agent.TenantID == "" {
		return storage.ErrTenantRequired
	}
	_, err := s.execContext(ctx, agent.TenantID, `
		INSERT INTO agents (tenant_id, email, name, role, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, email) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			active = excluded.active`,
		agent.TenantID, agent.Email, agent.Name, agent.Role, agent.Active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

// ListAgents returns a tenant's agents.
func (s *Store) ListAgents(ctx context.Context, tenantID string) ([]*types.Agent, error) {
	rows, err := s.queryContext(ctx, tenantID, `
		SELECT id, tenant_id, email, name, role, active, created_at
		FROM agents WHERE tenant_id = ? ORDER BY email`, tenantID)
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
	if license.TenantID == "" {
		return storage.ErrTenantRequired
	}
	_, err := s.execContext(ctx, license.TenantID, `
		INSERT INTO licenses (tenant_id, seats, plan, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			seats = excluded.seats,
			plan = excluded.plan,
			expires_at = excluded.expires_at`,
		license.TenantID, license.Seats, license.Plan, license.ExpiresAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert license: %w", err)
	}
	return nil
}

// GetLicense fetches the tenant's license row.
func (s *Store) GetLicense(ctx context.Context, tenantID string) (*types.License, error) {
	row, err := s.queryRowContext(ctx, tenantID, `
		SELECT id, tenant_id, seats, plan, expires_at, created_at
		FROM licenses WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return nil, err
	}

	var l types.License
	err = row.Scan(&l.ID, &l.TenantID, &l.Seats, &l.Plan, &l.ExpiresAt, &l.CreatedAt)
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
	if sub.TenantID == "" {
		return storage.ErrTenantRequired
	}
	_, err := s.execContext(ctx, sub.TenantID, `
		INSERT INTO subscriptions (tenant_id, status, plan, started_at, renews_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			status = excluded.status,
			plan = excluded.plan,
			started_at = excluded.started_at,
			renews_at = excluded.renews_at`,
		sub.TenantID, sub.Status, sub.Plan, sub.StartedAt, sub.RenewsAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// GetSubscription fetches the tenant's subscription row.
func (s *Store) GetSubscription(ctx context.Context, tenantID string) (*types.Subscription, error) {
	row, err := s.queryRowContext(ctx, tenantID, `
		SELECT id, tenant_id, status, plan, started_at, renews_at, created_at
		FROM subscriptions WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return nil, err
	}

	var sub types.Subscription
	err = row.Scan(&sub.ID, &sub.TenantID, &sub.Status, &sub.Plan, &sub.StartedAt, &sub.RenewsAt, &sub.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &sub, nil
}
