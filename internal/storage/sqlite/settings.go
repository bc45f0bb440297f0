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

// SetTenantSetting upserts one tenant setting.
func (s *Store) SetTenantSetting(ctx context.Context, setting *types.TenantSetting) error {
	if setting.TenantID == "" {
		return storage.ErrTenantRequired
	}
	_, err := s.execContext(ctx, setting.TenantID, `
		INSERT INTO tenant_settings (tenant_id, key, value, is_encrypted, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, key) DO UPDATE SET
			value = excluded.value,
			is_encrypted = excluded.is_encrypted,
			updated_at = excluded.updated_at`,
		setting.TenantID, setting.Key, setting.Value, setting.IsEncrypted, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set tenant setting: %w", err)
	}
	return nil
}

// GetTenantSetting fetches one tenant setting.
func (s *Store) GetTenantSetting(ctx context.Context, tenantID, key string) (*types.TenantSetting, error) {
	row, err := s.queryRowContext(ctx, tenantID, `
		SELECT tenant_id, key, value, is_encrypted, updated_at
		FROM tenant_settings WHERE tenant_id = ? AND key = ?`,
		tenantID, key)
	if err != nil {
		return nil, err
	}

	var setting types.TenantSetting
	err = row.Scan(&setting.TenantID, &setting.Key, &setting.Value, &setting.IsEncrypted, &setting.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant setting: %w", err)
	}
	return &setting, nil
}

// ListTenantSettings returns all settings of a tenant.
func (s *Store) ListTenantSettings(ctx context.Context, tenantID string) ([]*types.TenantSetting, error) {
	rows, err := s.queryContext(ctx, tenantID, `
		SELECT tenant_id, key, value, is_encrypted, updated_at
		FROM tenant_settings WHERE tenant_id = ? ORDER BY key`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tenant settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.TenantSetting
	for rows.Next() {
		var setting types.TenantSetting
		if err := rows.Scan(&setting.TenantID, &setting.Key, &setting.Value, &setting.IsEncrypted, &setting.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &setting)
	}
	return out, rows.Err()
}

// systemTenant names the database file holding process-wide settings. It is
// not a real tenant; the name sits outside the accepted tenant pattern's
// reserved set checked at the API boundary.
const systemTenant = "system"

// SetSystemSetting upserts one process-wide setting.
func (s *Store) SetSystemSetting(ctx context.Context, key, value string) error {
	_, err := s.execContext(ctx, systemTenant, `
		INSERT INTO system_settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set system setting: %w", err)
	}
	return nil
}

// GetSystemSetting fetches one process-wide setting.
func (s *Store) GetSystemSetting(ctx context.Context, key string) (string, error) {
	row, err := s.queryRowContext(ctx, systemTenant, `
		SELECT value FROM system_settings WHERE key = ?`, key)
	if err != nil {
		return "", err
	}

	var value string
	err = row.Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get system setting: %w", err)
	}
	return value, nil
}
