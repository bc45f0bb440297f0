// Package memory implements the vector store in process memory. Used by
// tests and as a degraded fallback when no vector database is configured.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/wedosoft/project-a/internal/identity"
	"github.com/wedosoft/project-a/internal/vectorstore"
)

// Store holds points in a map keyed by point id.
type Store struct {
	mu     sync.RWMutex
	points map[uuid.UUID]vectorstore.Point
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{points: make(map[uuid.UUID]vectorstore.Point)}
}

var _ vectorstore.VectorStore = (*Store)(nil)

// EnsureCollection is a no-op for the in-memory backend.
func (s *Store) EnsureCollection(ctx context.Context) error { return nil }

// Upsert writes points keyed by their deterministic ids.
func (s *Store) Upsert(ctx context.Context, points []vectorstore.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		if p.ID == uuid.Nil {
			p.ID = p.Payload.Identity().PointID()
		}
		s.points[p.ID] = p
	}
	return nil
}

// Search scans all points under the tenant scope and ranks by cosine
// similarity, then applies the in-memory doc-type filter.
func (s *Store) Search(ctx context.Context, params vectorstore.SearchParams) ([]vectorstore.SearchResult, error) {
	if params.TenantID == "" {
		return nil, fmt.Errorf("memory search: %w", vectorstore.ErrTenantPlatformRequired)
	}

	s.mu.RLock()
	var hits []vectorstore.SearchResult
	for _, p := range s.points {
		if p.Payload.TenantID != params.TenantID {
			continue
		}
		if params.Platform != "" && p.Payload.Platform != params.Platform {
			continue
		}
		if params.ExcludeOriginalID != "" && p.Payload.OriginalID == params.ExcludeOriginalID {
			continue
		}
		hits = append(hits, vectorstore.SearchResult{
			ID:      p.ID,
			Score:   cosine(params.Vector, p.Vector),
			Payload: p.Payload,
		})
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	topK := params.TopK
	if topK <= 0 {
		topK = 10
	}
	return vectorstore.FilterByDocType(hits, params.DocType, topK), nil
}

// GetByID fetches a point by its full identity.
func (s *Store) GetByID(ctx context.Context, tenantID, platform, docType, originalID string) (*vectorstore.Point, error) {
	id := identity.New(tenantID, platform, originalID).PointID()

	s.mu.RLock()
	p, ok := s.points[id]
	s.mu.RUnlock()

	if !ok || !vectorstore.MatchesDocType(p.Payload, docType) {
		return nil, vectorstore.ErrNotFound
	}
	out := p
	return &out, nil
}

// Delete removes points for the given original ids.
func (s *Store) Delete(ctx context.Context, tenantID, platform string, originalIDs []string) error {
	if err := vectorstore.ValidateScope(tenantID, platform); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, oid := range originalIDs {
		delete(s.points, identity.New(tenantID, platform, oid).PointID())
	}
	return nil
}

// Count scans with an in-memory predicate.
func (s *Store) Count(ctx context.Context, tenantID, platform string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, p := range s.points {
		if tenantID != "" && p.Payload.TenantID != tenantID {
			continue
		}
		if platform != "" && p.Payload.Platform != platform {
			continue
		}
		n++
	}
	return n, nil
}

// Backup writes all points as a JSON array.
func (s *Store) Backup(ctx context.Context, w io.Writer) (int, error) {
	s.mu.RLock()
	points := make([]vectorstore.Point, 0, len(s.points))
	for _, p := range s.points {
		points = append(points, p)
	}
	s.mu.RUnlock()

	sort.Slice(points, func(i, j int) bool { return points[i].ID.String() < points[j].ID.String() })

	enc := json.NewEncoder(w)
	if err := enc.Encode(points); err != nil {
		return 0, fmt.Errorf("encode backup: %w", err)
	}
	return len(points), nil
}

// Reset clears all points, optionally backing up first.
func (s *Store) Reset(ctx context.Context, confirm, createBackup bool, backupW io.Writer) error {
	if !confirm {
		return vectorstore.ErrConfirmRequired
	}
	if createBackup && backupW != nil {
		if _, err := s.Backup(ctx, backupW); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.points = make(map[uuid.UUID]vectorstore.Point)
	s.mu.Unlock()
	return nil
}

// cosine computes cosine similarity; zero vectors score 0.
func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
