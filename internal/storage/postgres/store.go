// Package postgres implements the tenant store with one schema per tenant
// (schema "tenant_{tenant_id}") in a central database. This is the preferred
// production backend; the sqlite backend serves small single-box installs.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	"github.com/jmoiron/sqlx"

	"github.com/wedosoft/project-a/internal/storage"
)

var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{2,50}$`)

// Store implements storage.Store over a shared connection pool. Tenant
// schemas are created lazily on first touch.
type Store struct {
	db *sqlx.DB

	mu      sync.Mutex
	schemas map[string]bool // tenants whose schema has been ensured
}

// New opens the central database and ensures the shared system schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)

	s := &Store{db: db, schemas: make(map[string]bool)}
	if _, err := db.ExecContext(ctx, systemSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply system schema: %w", err)
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ storage.Store = (*Store)(nil)

// schemaName maps a tenant id to its postgres schema. Dashes are folded to
// underscores so the identifier never needs quoting in DDL.
func schemaName(tenantID string) string {
	return "tenant_" + strings.ReplaceAll(tenantID, "-", "_")
}

// ensureSchema creates the tenant schema and tables on first access.
func (s *Store) ensureSchema(ctx context.Context, tenantID string) (string, error) {
	if tenantID == "" {
		return "", storage.ErrTenantRequired
	}
	if !tenantIDPattern.MatchString(tenantID) {
		return "", fmt.Errorf("invalid tenant id %q", tenantID)
	}

	name := schemaName(tenantID)

	s.mu.Lock()
	done := s.schemas[tenantID]
	s.mu.Unlock()
	if done {
		return name, nil
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", name)); err != nil {
		return "", fmt.Errorf("create schema %s: %w", name, err)
	}
	if _, err := s.db.ExecContext(ctx, tenantSchemaDDL(name)); err != nil {
		return "", fmt.Errorf("apply tenant schema %s: %w", name, err)
	}

	s.mu.Lock()
	s.schemas[tenantID] = true
	s.mu.Unlock()
	return name, nil
}
