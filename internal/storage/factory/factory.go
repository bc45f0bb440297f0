// Package factory selects the tenant store backend from configuration.
// Callers depend on storage.Store and never on a concrete backend, so
// switching backends is a config change.
package factory

import (
	"context"
	"fmt"

	"github.com/wedosoft/project-a/internal/config"
	"github.com/wedosoft/project-a/internal/storage"
	"github.com/wedosoft/project-a/internal/storage/postgres"
	"github.com/wedosoft/project-a/internal/storage/sqlite"
)

// New builds the configured storage backend.
func New(ctx context.Context, cfg config.Database) (storage.Store, error) {
	switch cfg.Type {
	case "sqlite":
		return sqlite.New(cfg.DataDir)
	case "postgres":
		return postgres.New(ctx, cfg.DSN())
	default:
		return nil, fmt.Errorf("storage: unsupported backend %q", cfg.Type)
	}
}
