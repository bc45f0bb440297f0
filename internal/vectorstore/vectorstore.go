// Package vectorstore provides the tenant-scoped vector storage abstraction.
//
// All points live in a single logical collection; isolation is enforced with
// a mandatory tenant_id payload filter on every search, plus platform when
// given. Point ids are deterministic UUIDs derived from the 3-tuple, which
// makes vector upserts idempotent with relational upserts.
package vectorstore

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"

	"github.com/wedosoft/project-a/internal/identity"
)

// ErrTenantPlatformRequired is returned by operations that refuse to run
// without both tenant and platform (notably Delete).
var ErrTenantPlatformRequired = errors.New("tenant id and platform required")

// ErrNotFound is returned when a point does not exist.
var ErrNotFound = errors.New("vector point not found")

// ErrConfirmRequired is returned by Reset when confirm is false.
var ErrConfirmRequired = errors.New("reset requires explicit confirmation")

// Payload is the metadata stored with every vector point. The legacy Type,
// Status, and SourceType fields are tolerated on read for points written by
// earlier ingesters; new writes always set DocType.
type Payload struct {
	TenantID       string         `json:"tenant_id"`
	Platform       string         `json:"platform"`
	DocType        string         `json:"doc_type,omitempty"`
	OriginalID     string         `json:"original_id"`
	ObjectType     string         `json:"object_type,omitempty"`
	Summary        string         `json:"summary,omitempty"`
	TenantMetadata map[string]any `json:"tenant_metadata,omitempty"`

	// Legacy payload variants accepted by the doc-type filter.
	Type       any    `json:"type,omitempty"`
	Status     any    `json:"status,omitempty"`
	SourceType string `json:"source_type,omitempty"`
}

// Identity reconstructs the 3-tuple from a payload.
func (p Payload) Identity() identity.Identity {
	return identity.New(p.TenantID, p.Platform, p.OriginalID)
}

// Point is a vector plus payload. ID must be the deterministic UUID of the
// payload's identity; NewPoint enforces that.
type Point struct {
	ID      uuid.UUID `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

// NewPoint builds a point with its deterministic id.
func NewPoint(vector []float32, payload Payload) Point {
	return Point{
		ID:      payload.Identity().PointID(),
		Vector:  vector,
		Payload: payload,
	}
}

// SearchParams scope a similarity search. TenantID is mandatory; Platform
// narrows when non-empty; DocType is filtered in memory on an over-fetch.
type SearchParams struct {
	Vector   []float32
	TopK     int
	TenantID string
	Platform string
	DocType  string

	// ExcludeOriginalID drops one original id from the results (the /init
	// flow excludes the ticket being viewed).
	ExcludeOriginalID string
}

// SearchResult is one scored hit.
type SearchResult struct {
	ID      uuid.UUID `json:"id"`
	Score   float32   `json:"score"`
	Payload Payload   `json:"payload"`
}

// OverFetchFactor is how many times top_k a backend fetches before applying
// the in-memory doc-type filter. Tolerates collections without a doc_type
// payload index.
const OverFetchFactor = 10

// VectorStore is the tenant-scoped vector storage contract.
type VectorStore interface {
	// EnsureCollection creates the collection and payload indexes if absent.
	EnsureCollection(ctx context.Context) error

	// Upsert writes points; same identity always lands on the same point.
	Upsert(ctx context.Context, points []Point) error

	// Search returns up to TopK hits under the params' tenant scope.
	Search(ctx context.Context, params SearchParams) ([]SearchResult, error)

	// GetByID fetches a single point by the full identity plus doc type.
	GetByID(ctx context.Context, tenantID, platform, docType, originalID string) (*Point, error)

	// Delete removes the points for the given original ids. Refuses to run
	// without both tenant and platform.
	Delete(ctx context.Context, tenantID, platform string, originalIDs []string) error

	// Count returns the number of points in scope. Backends prefer a
	// server-side filtered count and fall back to a scrolled scan.
	Count(ctx context.Context, tenantID, platform string) (int64, error)

	// Backup serializes all points (vectors and payloads) as JSON to w,
	// in pages of BackupPageSize. Returns the number of points written.
	Backup(ctx context.Context, w io.Writer) (int, error)

	// Reset drops and recreates the collection. Requires confirm; takes a
	// backup first when createBackup is set and backupW is non-nil.
	Reset(ctx context.Context, confirm, createBackup bool, backupW io.Writer) error
}

// BackupPageSize is the scroll page size used by Backup.
const BackupPageSize = 1000
