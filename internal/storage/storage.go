// Package storage provides shared types for the per-tenant relational store.
//
// The concrete implementations live in the sqlite and postgres sub-packages.
// This package holds the interface and sentinel errors referenced by both the
// backends and their consumers (ingest, retrieval, server).
package storage

import (
	"context"
	"errors"

	"github.com/wedosoft/project-a/internal/types"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrTenantRequired is returned when an operation that must be tenant-scoped
// is called without a tenant id.
var ErrTenantRequired = errors.New("tenant id required")

// SoftDeleteRecoveryDays is the window within which Restore can undo a soft
// delete.
const SoftDeleteRecoveryDays = 30

// Store is the per-tenant relational store. Every method that touches
// integrated_objects carries both tenant id and platform in its predicate;
// backends must never widen a query beyond those.
type Store interface {
	// Integrated objects
	UpsertIntegratedObject(ctx context.Context, obj *types.IntegratedObject) error
	GetObject(ctx context.Context, tenantID, platform string, objectType types.ObjectType, originalID string) (*types.IntegratedObject, error)
	GetByType(ctx context.Context, tenantID, platform string, objectType types.ObjectType, limit, offset int) ([]*types.IntegratedObject, error)
	GetAttachmentsForTicket(ctx context.Context, tenantID, platform, ticketOriginalID string) ([]*types.IntegratedObject, error)
	CountObjects(ctx context.Context, tenantID, platform string) (int64, error)

	// Clear soft-deletes (hard=false) or removes (hard=true) a tenant's rows,
	// optionally narrowed to one platform. Restore unsets deleted_at for rows
	// soft-deleted within the last SoftDeleteRecoveryDays.
	Clear(ctx context.Context, tenantID, platform string, hard bool) error
	Restore(ctx context.Context, tenantID, platform string) (int64, error)

	// Progress logs
	LogProgress(ctx context.Context, entry *types.ProgressEntry) error
	GetLatestProgress(ctx context.Context, tenantID, jobID string) (*types.ProgressEntry, error)
	ListProgress(ctx context.Context, tenantID, jobID string) ([]*types.ProgressEntry, error)

	// Tenant settings (values may be encrypted at rest)
	SetTenantSetting(ctx context.Context, setting *types.TenantSetting) error
	GetTenantSetting(ctx context.Context, tenantID, key string) (*types.TenantSetting, error)
	ListTenantSettings(ctx context.Context, tenantID string) ([]*types.TenantSetting, error)

	// System settings (master encryption key, etc). These are process-wide
	// and stored outside any tenant scope.
	SetSystemSetting(ctx context.Context, key, value string) error
	GetSystemSetting(ctx context.Context, key string) (string, error)

	// SaaS-side tables. Not on the ingestion critical path.
	UpsertAgent(ctx context.Context, agent *types.Agent) error
	ListAgents(ctx context.Context, tenantID string) ([]*types.Agent, error)
	UpsertLicense(ctx context.Context, license *types.License) error
	GetLicense(ctx context.Context, tenantID string) (*types.License, error)
	UpsertSubscription(ctx context.Context, sub *types.Subscription) error
	GetSubscription(ctx context.Context, tenantID string) (*types.Subscription, error)

	// Lifecycle
	Close() error
}
