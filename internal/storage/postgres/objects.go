package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wedosoft/project-a/internal/storage"
	"github.com/wedosoft/project-a/internal/types"
)

const objectColumns = `id, tenant_id, platform, object_type, original_id, original_data,
	integrated_content, summary, metadata, created_at, updated_at, deleted_at`

// UpsertIntegratedObject inserts or updates on the 3-tuple + object type.
func (s *Store) UpsertIntegratedObject(ctx context.Context, obj *types.IntegratedObject) error {
	schema, err := s.ensureSchema(ctx, obj.TenantID)
	if err != nil {
		return err
	}
	if !obj.ObjectType.Valid() {
		return fmt.Errorf("invalid object type %q", obj.ObjectType)
	}

	metadata, err := json.Marshal(obj.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	originalData := []byte(obj.OriginalData)
	if len(originalData) == 0 {
		originalData = []byte("{}")
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s.integrated_objects
			(tenant_id, platform, object_type, original_id, original_data,
			 integrated_content, summary, metadata, parent_type, parent_original_id,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (tenant_id, platform, object_type, original_id) DO UPDATE SET
			original_data = EXCLUDED.original_data,
			integrated_content = EXCLUDED.integrated_content,
			summary = COALESCE(EXCLUDED.summary, %s.integrated_objects.summary),
			metadata = EXCLUDED.metadata,
			parent_type = EXCLUDED.parent_type,
			parent_original_id = EXCLUDED.parent_original_id,
			updated_at = EXCLUDED.updated_at,
			deleted_at = NULL`, schema, schema),
		obj.TenantID, obj.Platform, string(obj.ObjectType), obj.OriginalID,
		string(originalData), obj.IntegratedContent, nullableString(obj.Summary),
		string(metadata), obj.Metadata.ParentType, obj.Metadata.ParentOriginalID, now)
	if err != nil {
		return fmt.Errorf("upsert integrated object: %w", err)
	}
	return nil
}

// GetObject fetches one object by the full identity.
func (s *Store) GetObject(ctx context.Context, tenantID, platform string, objectType types.ObjectType, originalID string) (*types.IntegratedObject, error) {
	schema, err := s.ensureSchema(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT `+objectColumns+`
		FROM %s.integrated_objects
		WHERE tenant_id = $1 AND platform = $2 AND object_type = $3 AND original_id = $4
		  AND deleted_at IS NULL`, schema),
		tenantID, platform, string(objectType), originalID)

	obj, err := scanObject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return obj, err
}

// GetByType lists a tenant's objects of one type, newest upstream creation
// first. The JSONB metadata index keeps the ordering cheap.
func (s *Store) GetByType(ctx context.Context, tenantID, platform string, objectType types.ObjectType, limit, offset int) ([]*types.IntegratedObject, error) {
	schema, err := s.ensureSchema(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT `+objectColumns+`
		FROM %s.integrated_objects
		WHERE tenant_id = $1 AND platform = $2 AND object_type = $3 AND deleted_at IS NULL
		ORDER BY metadata->>'created_at' DESC
		LIMIT $4 OFFSET $5`, schema),
		tenantID, platform, string(objectType), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get by type: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanObjects(rows)
}

// GetAttachmentsForTicket returns the ticket's direct attachments unioned
// with attachments of any of its conversations.
func (s *Store) GetAttachmentsForTicket(ctx context.Context, tenantID, platform, ticketOriginalID string) ([]*types.IntegratedObject, error) {
	schema, err := s.ensureSchema(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT `+objectColumns+`
		FROM %s.integrated_objects
		WHERE tenant_id = $1 AND platform = $2 AND object_type = 'attachment' AND deleted_at IS NULL
		  AND (
			(parent_type = 'ticket' AND parent_original_id = $3)
			OR (parent_type = 'conversation' AND parent_original_id IN (
				SELECT original_id FROM %s.integrated_objects
				WHERE tenant_id = $1 AND platform = $2 AND object_type = 'conversation'
				  AND parent_original_id = $3 AND deleted_at IS NULL
			))
		  )
		ORDER BY created_at`, schema, schema),
		tenantID, platform, ticketOriginalID)
	if err != nil {
		return nil, fmt.Errorf("get attachments for ticket: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanObjects(rows)
}

// CountObjects counts live rows, optionally narrowed to a platform.
func (s *Store) CountObjects(ctx context.Context, tenantID, platform string) (int64, error) {
	schema, err := s.ensureSchema(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s.integrated_objects WHERE tenant_id = $1 AND deleted_at IS NULL`, schema)
	args := []any{tenantID}
	if platform != "" {
		query += ` AND platform = $2`
		args = append(args, platform)
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count objects: %w", err)
	}
	return n, nil
}

// Clear soft-deletes or removes the tenant's rows.
func (s *Store) Clear(ctx context.Context, tenantID, platform string, hard bool) error {
	schema, err := s.ensureSchema(ctx, tenantID)
	if err != nil {
		return err
	}

	var query string
	if hard {
		query = fmt.Sprintf(`DELETE FROM %s.integrated_objects WHERE tenant_id = $1`, schema)
	} else {
		query = fmt.Sprintf(`UPDATE %s.integrated_objects SET deleted_at = now() WHERE tenant_id = $1 AND deleted_at IS NULL`, schema)
	}
	args := []any{tenantID}
	if platform != "" {
		query += ` AND platform = $2`
		args = append(args, platform)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear objects: %w", err)
	}
	return nil
}

// Restore unsets deleted_at inside the recovery window.
func (s *Store) Restore(ctx context.Context, tenantID, platform string) (int64, error) {
	schema, err := s.ensureSchema(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -storage.SoftDeleteRecoveryDays)
	query := fmt.Sprintf(`UPDATE %s.integrated_objects SET deleted_at = NULL WHERE tenant_id = $1 AND deleted_at >= $2`, schema)
	args := []any{tenantID, cutoff}
	if platform != "" {
		query += ` AND platform = $3`
		args = append(args, platform)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("restore objects: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObject(r rowScanner) (*types.IntegratedObject, error) {
	var (
		obj          types.IntegratedObject
		objectType   string
		originalData []byte
		metadata     []byte
		summary      sql.NullString
		deletedAt    sql.NullTime
	)
	err := r.Scan(&obj.ID, &obj.TenantID, &obj.Platform, &objectType, &obj.OriginalID,
		&originalData, &obj.IntegratedContent, &summary, &metadata,
		&obj.CreatedAt, &obj.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	obj.ObjectType = types.ObjectType(objectType)
	obj.OriginalData = json.RawMessage(originalData)
	if summary.Valid {
		obj.Summary = summary.String
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		obj.DeletedAt = &t
	}
	if err := json.Unmarshal(metadata, &obj.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &obj, nil
}

func scanObjects(rows *sql.Rows) ([]*types.IntegratedObject, error) {
	var out []*types.IntegratedObject
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
