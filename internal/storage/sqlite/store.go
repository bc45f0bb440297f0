// Package sqlite implements the tenant store with one database file per
// tenant ({tenant_id}_data.db). Suited to small tenants; the postgres
// backend is the production model for larger ones.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	// SQLite driver (pure Go, wazero-based).
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/wedosoft/project-a/internal/storage"
)

// tenantIDPattern guards the tenant id before it becomes part of a filename.
var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{2,50}$`)

// Store implements storage.Store with a database file per tenant.
// Connections are opened on first use and cached until Close.
type Store struct {
	dir string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// New creates a sqlite store rooted at dir. The directory is created if
// missing.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir, dbs: make(map[string]*sql.DB)}, nil
}

// db returns the open database for a tenant, creating the file and schema on
// first access.
func (s *Store) db(tenantID string) (*sql.DB, error) {
	if tenantID == "" {
		return nil, storage.ErrTenantRequired
	}
	if !tenantIDPattern.MatchString(tenantID) {
		return nil, fmt.Errorf("invalid tenant id %q", tenantID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if db, ok := s.dbs[tenantID]; ok {
		return db, nil
	}

	path := filepath.Join(s.dir, tenantID+"_data.db")
	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("open tenant db %s: %w", tenantID, err)
	}
	// The wazero-backed driver serializes within a connection; a single
	// connection avoids writer contention on the tenant file.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema for tenant %s: %w", tenantID, err)
	}

	s.dbs[tenantID] = db
	return db, nil
}

// Close closes all cached tenant connections.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for tenantID, db := range s.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close tenant db %s: %w", tenantID, err)
		}
		delete(s.dbs, tenantID)
	}
	return firstErr
}

var _ storage.Store = (*Store)(nil)

// execContext is a convenience wrapper that resolves the tenant database and
// runs a statement against it.
func (s *Store) execContext(ctx context.Context, tenantID, query string, args ...any) (sql.Result, error) {
	db, err := s.db(tenantID)
	if err != nil {
		return nil, err
	}
	return db.ExecContext(ctx, query, args...)
}

func (s *Store) queryContext(ctx context.Context, tenantID, query string, args ...any) (*sql.Rows, error) {
	db, err := s.db(tenantID)
	if err != nil {
		return nil, err
	}
	return db.QueryContext(ctx, query, args...)
}

func (s *Store) queryRowContext(ctx context.Context, tenantID, query string, args ...any) (*sql.Row, error) {
	db, err := s.db(tenantID)
	if err != nil {
		return nil, err
	}
	return db.QueryRowContext(ctx, query, args...), nil
}
