package sqlite

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
// Re-ingestion of the same upstream object is idempotent: the row is updated
// in place and created_at is preserved.
func (s *Store) UpsertIntegratedObject(ctx context.Context, obj *types.IntegratedObject) error {
	if obj.TenantID == "" {
		return storage.ErrTenantRequired
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
	_, err = s.execContext(ctx, obj.TenantID, `
		INSERT INTO integrated_objects
			(tenant_id, platform, object_type, original_id, original_data,
			 integrated_content, summary, metadata, parent_type, parent_original_id,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, platform, object_type, original_id) DO UPDATE SET
			original_data = excluded.original_data,
			integrated_content = excluded.integrated_content,
			summary = COALESCE(excluded.summary, integrated_objects.summary),
			metadata = excluded.metadata,
			parent_type = excluded.parent_type,
			parent_original_id = excluded.parent_original_id,
			updated_at = excluded.updated_at,
			deleted_at = NULL`,
		obj.TenantID, obj.Platform, string(obj.ObjectType), obj.OriginalID,
		string(originalData), obj.IntegratedContent, nullableString(obj.Summary),
		string(metadata), obj.Metadata.ParentType, obj.Metadata.ParentOriginalID,
		now, now)
	if err != nil {
		return fmt.Errorf("upsert integrated object: %w", err)
	}
	return nil
}

// GetObject fetches one object by the full identity.
func (s *Store) GetObject(ctx context.Context, tenantID, platform string, objectType types.ObjectType, originalID string) (*types.IntegratedObject, error) {
	row, err := s.queryRowContext(ctx, tenantID, `
		SELECT `+objectColumns+`
		FROM integrated_objects
		WHERE tenant_id = ? AND platform = ? AND object_type = ? AND original_id = ?
		  AND deleted_at IS NULL`,
		tenantID, platform, string(objectType), originalID)
	if err != nil {
		return nil, err
	}
	obj, err := scanObject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return obj, err
}

// GetByType lists a tenant's objects of one type, ordered by the upstream
// creation date carried in metadata, newest first.
func (s *Store) GetByType(ctx context.Context, tenantID, platform string, objectType types.ObjectType, limit, offset int) ([]*types.IntegratedObject, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.queryContext(ctx, tenantID, `
		SELECT `+objectColumns+`
		FROM integrated_objects
		WHERE tenant_id = ? AND platform = ? AND object_type = ? AND deleted_at IS NULL
		ORDER BY json_extract(metadata, '$.created_at') DESC
		LIMIT ? OFFSET ?`,
		tenantID, platform, string(objectType), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get by type: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanObjects(rows)
}

// GetAttachmentsForTicket returns attachments whose parent is the ticket
// itself, unioned with attachments whose parent is any conversation of that
// ticket. Joins resolve through the stored parent refs, never pointers.
func (s *Store) GetAttachmentsForTicket(ctx context.Context, tenantID, platform, ticketOriginalID string) ([]*types.IntegratedObject, error) {
	rows, err := s.queryContext(ctx, tenantID, `
		SELECT `+objectColumns+`
		FROM integrated_objects
		WHERE tenant_id = ? AND platform = ? AND object_type = 'attachment' AND deleted_at IS NULL
		  AND (
			(parent_type = 'ticket' AND parent_original_id = ?)
			OR (parent_type = 'conversation' AND parent_original_id IN (
				SELECT original_id FROM integrated_objects
				WHERE tenant_id = ? AND platform = ? AND object_type = 'conversation'
				  AND parent_original_id = ? AND deleted_at IS NULL
			))
		  )
		ORDER BY created_at`,
		tenantID, platform, ticketOriginalID, tenantID, platform, ticketOriginalID)
	if err != nil {
		return nil, fmt.Errorf("get attachments for ticket: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanObjects(rows)
}

// CountObjects counts the live rows of a tenant, optionally narrowed to one
// platform.
func (s *Store) CountObjects(ctx context.Context, tenantID, platform string) (int64, error) {
	query := `SELECT COUNT(*) FROM integrated_objects WHERE tenant_id = ? AND deleted_at IS NULL`
	args := []any{tenantID}
	if platform != "" {
		query += ` AND platform = ?`
		args = append(args, platform)
	}

	row, err := s.queryRowContext(ctx, tenantID, query, args...)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count objects: %w", err)
	}
	return n, nil
}

// Clear soft-deletes (hard=false) or removes (hard=true) the tenant's rows.
func (s *Store) Clear(ctx context.Context, tenantID, platform string, hard bool) error {
	if tenantID == "" {
		return storage.ErrTenantRequired
	}

	var query string
	if hard {
		query = `DELETE FROM integrated_objects WHERE tenant_id = ?`
	} else {
		query = `UPDATE integrated_objects SET deleted_at = CURRENT_TIMESTAMP WHERE tenant_id = ? AND deleted_at IS NULL`
	}
	args := []any{tenantID}
	if platform != "" {
		query += ` AND platform = ?`
		args = append(args, platform)
	}

	if _, err := s.execContext(ctx, tenantID, query, args...); err != nil {
		return fmt.Errorf("clear objects: %w", err)
	}
	return nil
}

// Restore unsets deleted_at for rows soft-deleted within the recovery window.
func (s *Store) Restore(ctx context.Context, tenantID, platform string) (int64, error) {
	if tenantID == "" {
		return 0, storage.ErrTenantRequired
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -storage.SoftDeleteRecoveryDays)
	query := `UPDATE integrated_objects SET deleted_at = NULL WHERE tenant_id = ? AND deleted_at >= ?`
	args := []any{tenantID, cutoff}
	if platform != "" {
		query += ` AND platform = ?`
		args = append(args, platform)
	}

	res, err := s.execContext(ctx, tenantID, query, args...)
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
		originalData string
		metadata     string
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
	if err := json.Unmarshal([]byte(metadata), &obj.Metadata); err != nil {
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
