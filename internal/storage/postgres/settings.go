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

// SetTenantSetting upserts one tenant setting.
func (s *Store) SetTenantSetting(ctx context.Context, setting *types.TenantSetting) error {
	schema, err := s.ensureSchema(ctx, setting.TenantID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s.tenant_settings (tenant_id, key, value, is_encrypted, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, key) DO UPDATE SET
			value = EXCLUDED.value,
			is_encrypted = EXCLUDED.is_encrypted,
			updated_at = EXCLUDED.updated_at`, schema),
		setting.TenantID, setting.Key, setting.Value, setting.IsEncrypted, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set tenant setting: %w", err)
	}
	return nil
}

// GetTenantSetting fetches one tenant setting.
func (s *Store) GetTenantSetting(ctx context.Context, tenantID, key string) (*types.TenantSetting, error) {
	schema, err := s.ensureSchema(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var setting types.TenantSetting
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT tenant_id, key, value, is_encrypted, updated_at
		FROM %s.tenant_settings WHERE tenant_id = $1 AND key = $2`, schema),
		tenantID, key).Scan(&setting.TenantID, &setting.Key, &setting.Value,
		&setting.IsEncrypted, &setting.UpdatedAt)
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
	schema, err := s.ensureSchema(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT tenant_id, key, value, is_encrypted, updated_at
		FROM %s.tenant_settings WHERE tenant_id = $1 ORDER BY key`, schema), tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tenant settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.TenantSetting
	for rows.Next() {
		var setting types.TenantSetting
		if err := rows.Scan(&setting.TenantID, &setting.Key, &setting.Value,
			&setting.IsEncrypted, &setting.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &setting)
	}
	return out, rows.Err()
}

// SetSystemSetting upserts one process-wide setting in the public schema.
func (s *Store) SetSystemSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_settings (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set system setting: %w", err)
	}
	return nil
}

// GetSystemSetting fetches one process-wide setting.
func (s *Store) GetSystemSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system_settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get system setting: %w", err)
	}
	return value, nil
}
