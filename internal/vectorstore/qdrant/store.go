package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wedosoft/project-a/internal/identity"
	"github.com/wedosoft/project-a/internal/logging"
	"github.com/wedosoft/project-a/internal/vectorstore"
)

// DefaultVectorSize matches the embedding model wired by the LLM router.
const DefaultVectorSize = 1536

// indexedFields are the payload fields that get a keyword index at collection
// creation. original_id and status are indexed so the legacy-variant filters
// stay cheap on large collections.
var indexedFields = []string{"tenant_id", "platform", "doc_type", "original_id", "source_type", "status"}

// Store implements vectorstore.VectorStore against a Qdrant server.
type Store struct {
	client     *Client
	collection string
	vectorSize int
	log        zerolog.Logger
}

// New creates a Qdrant-backed store for one collection.
func New(baseURL, apiKey, collection string, vectorSize int) *Store {
	if vectorSize <= 0 {
		vectorSize = DefaultVectorSize
	}
	return &Store{
		client:     NewClient(baseURL, apiKey),
		collection: collection,
		vectorSize: vectorSize,
		log:        logging.WithComponent("qdrant"),
	}
}

var _ vectorstore.VectorStore = (*Store)(nil)

type qdrantFilter struct {
	Must []qdrantCondition `json:"must,omitempty"`
}

type qdrantCondition struct {
	Key   string      `json:"key"`
	Match qdrantMatch `json:"match"`
}

type qdrantMatch struct {
	Value any `json:"value"`
}

type qdrantPoint struct {
	ID      string              `json:"id"`
	Vector  []float32           `json:"vector,omitempty"`
	Payload vectorstore.Payload `json:"payload"`
}

func scopeFilter(tenantID, platform string) qdrantFilter {
	var f qdrantFilter
	if tenantID != "" {
		f.Must = append(f.Must, qdrantCondition{Key: "tenant_id", Match: qdrantMatch{Value: tenantID}})
	}
	if platform != "" {
		f.Must = append(f.Must, qdrantCondition{Key: "platform", Match: qdrantMatch{Value: platform}})
	}
	return f
}

// EnsureCollection creates the collection and its payload indexes when absent.
func (s *Store) EnsureCollection(ctx context.Context) error {
	err := s.client.do(ctx, http.MethodGet, "/collections/"+s.collection, nil, nil)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errCollectionMissing) {
		return fmt.Errorf("check collection: %w", err)
	}
	return s.createCollection(ctx)
}

func (s *Store) createCollection(ctx context.Context) error {
	s.log.Info().Str("collection", s.collection).Int("vector_size", s.vectorSize).Msg("creating collection")

	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.vectorSize,
			"distance": "Cosine",
		},
	}
	if err := s.client.do(ctx, http.MethodPut, "/collections/"+s.collection, body, nil); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	for _, field := range indexedFields {
		idx := map[string]any{
			"field_name":   field,
			"field_schema": "keyword",
		}
		if err := s.client.do(ctx, http.MethodPut, "/collections/"+s.collection+"/index", idx, nil); err != nil {
			return fmt.Errorf("create payload index %s: %w", field, err)
		}
	}
	return nil
}

// ensureThenRetry runs op once, auto-creating the collection and retrying a
// single time when the collection does not exist yet.
func (s *Store) ensureThenRetry(ctx context.Context, op func() error) error {
	err := op()
	if !errors.Is(err, errCollectionMissing) {
		return err
	}
	if err := s.createCollection(ctx); err != nil {
		return err
	}
	return op()
}

// Upsert writes points under their deterministic ids.
func (s *Store) Upsert(ctx context.Context, points []vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}

	qpoints := make([]qdrantPoint, 0, len(points))
	for _, p := range points {
		if p.ID == uuid.Nil {
			p.ID = p.Payload.Identity().PointID()
		}
		qpoints = append(qpoints, qdrantPoint{ID: p.ID.String(), Vector: p.Vector, Payload: p.Payload})
	}

	body := map[string]any{"points": qpoints}
	err := s.ensureThenRetry(ctx, func() error {
		return s.client.do(ctx, http.MethodPut, "/collections/"+s.collection+"/points?wait=true", body, nil)
	})
	if err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), err)
	}
	return nil
}

// Search over-fetches TopK times OverFetchFactor under the mandatory tenant
// filter, then applies the doc-type filter in memory.
func (s *Store) Search(ctx context.Context, params vectorstore.SearchParams) ([]vectorstore.SearchResult, error) {
	if params.TenantID == "" {
		return nil, fmt.Errorf("qdrant search: %w", vectorstore.ErrTenantPlatformRequired)
	}
	topK := params.TopK
	if topK <= 0 {
		topK = 10
	}

	body := map[string]any{
		"vector":       params.Vector,
		"limit":        topK * vectorstore.OverFetchFactor,
		"filter":       scopeFilter(params.TenantID, params.Platform),
		"with_payload": true,
	}

	var raw []struct {
		ID      string              `json:"id"`
		Score   float32             `json:"score"`
		Payload vectorstore.Payload `json:"payload"`
	}
	err := s.ensureThenRetry(ctx, func() error {
		return s.client.do(ctx, http.MethodPost, "/collections/"+s.collection+"/points/search", body, &raw)
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	results := make([]vectorstore.SearchResult, 0, len(raw))
	for _, r := range raw {
		if params.ExcludeOriginalID != "" && r.Payload.OriginalID == params.ExcludeOriginalID {
			continue
		}
		id, err := uuid.Parse(r.ID)
		if err != nil {
			s.log.Warn().Str("point_id", r.ID).Msg("skipping point with non-uuid id")
			continue
		}
		results = append(results, vectorstore.SearchResult{ID: id, Score: r.Score, Payload: r.Payload})
	}
	return vectorstore.FilterByDocType(results, params.DocType, topK), nil
}

// GetByID retrieves a point by its deterministic id and checks the doc type.
func (s *Store) GetByID(ctx context.Context, tenantID, platform, docType, originalID string) (*vectorstore.Point, error) {
	id := identity.New(tenantID, platform, originalID).PointID()

	body := map[string]any{
		"ids":          []string{id.String()},
		"with_payload": true,
		"with_vector":  true,
	}
	var raw []qdrantPoint
	err := s.client.do(ctx, http.MethodPost, "/collections/"+s.collection+"/points", body, &raw)
	if err != nil {
		if errors.Is(err, errCollectionMissing) {
			return nil, vectorstore.ErrNotFound
		}
		return nil, fmt.Errorf("retrieve point: %w", err)
	}
	if len(raw) == 0 {
		return nil, vectorstore.ErrNotFound
	}

	p := raw[0]
	if p.Payload.TenantID != tenantID || !vectorstore.MatchesDocType(p.Payload, docType) {
		return nil, vectorstore.ErrNotFound
	}
	return &vectorstore.Point{ID: id, Vector: p.Vector, Payload: p.Payload}, nil
}

// Delete removes the points for the given original ids. Both tenant and
// platform are required so a bad caller can never clear a whole collection.
func (s *Store) Delete(ctx context.Context, tenantID, platform string, originalIDs []string) error {
	if err := vectorstore.ValidateScope(tenantID, platform); err != nil {
		return err
	}
	if len(originalIDs) == 0 {
		return nil
	}

	ids := make([]string, 0, len(originalIDs))
	for _, oid := range originalIDs {
		ids = append(ids, identity.New(tenantID, platform, oid).PointID().String())
	}
	body := map[string]any{"points": ids}
	if err := s.client.do(ctx, http.MethodPost, "/collections/"+s.collection+"/points/delete?wait=true", body, nil); err != nil {
		if errors.Is(err, errCollectionMissing) {
			return nil
		}
		return fmt.Errorf("delete %d points: %w", len(ids), err)
	}
	return nil
}

// Count asks the server for an exact filtered count and falls back to a
// scrolled scan when the count API fails.
func (s *Store) Count(ctx context.Context, tenantID, platform string) (int64, error) {
	body := map[string]any{
		"filter": scopeFilter(tenantID, platform),
		"exact":  true,
	}
	var result struct {
		Count int64 `json:"count"`
	}
	err := s.client.do(ctx, http.MethodPost, "/collections/"+s.collection+"/points/count", body, &result)
	if err == nil {
		return result.Count, nil
	}
	if errors.Is(err, errCollectionMissing) {
		return 0, nil
	}

	s.log.Warn().Err(err).Msg("count API failed, falling back to scroll scan")
	var n int64
	scanErr := s.scroll(ctx, scopeFilter(tenantID, platform), false, func(points []qdrantPoint) error {
		n += int64(len(points))
		return nil
	})
	if scanErr != nil {
		return 0, fmt.Errorf("count: %w", scanErr)
	}
	return n, nil
}

// scroll pages through all points matching filter, invoking fn per page.
func (s *Store) scroll(ctx context.Context, filter qdrantFilter, withVector bool, fn func([]qdrantPoint) error) error {
	var offset any
	for {
		body := map[string]any{
			"limit":        vectorstore.BackupPageSize,
			"filter":       filter,
			"with_payload": true,
			"with_vector":  withVector,
		}
		if offset != nil {
			body["offset"] = offset
		}

		var page struct {
			Points         []qdrantPoint `json:"points"`
			NextPageOffset any           `json:"next_page_offset"`
		}
		if err := s.client.do(ctx, http.MethodPost, "/collections/"+s.collection+"/points/scroll", body, &page); err != nil {
			return err
		}
		if len(page.Points) > 0 {
			if err := fn(page.Points); err != nil {
				return err
			}
		}
		if page.NextPageOffset == nil {
			return nil
		}
		offset = page.NextPageOffset
	}
}

// Backup streams every point as one JSON array, scrolling in pages.
func (s *Store) Backup(ctx context.Context, w io.Writer) (int, error) {
	if _, err := io.WriteString(w, "["); err != nil {
		return 0, err
	}

	written := 0
	err := s.scroll(ctx, qdrantFilter{}, true, func(points []qdrantPoint) error {
		for _, p := range points {
			if written > 0 {
				if _, err := io.WriteString(w, ","); err != nil {
					return err
				}
			}
			id, parseErr := uuid.Parse(p.ID)
			if parseErr != nil {
				continue
			}
			data, marshalErr := json.Marshal(vectorstore.Point{ID: id, Vector: p.Vector, Payload: p.Payload})
			if marshalErr != nil {
				return marshalErr
			}
			if _, err := w.Write(data); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil && !errors.Is(err, errCollectionMissing) {
		return written, fmt.Errorf("backup: %w", err)
	}

	if _, err := io.WriteString(w, "]\n"); err != nil {
		return written, err
	}
	s.log.Info().Int("points", written).Msg("backup complete")
	return written, nil
}

// Reset drops and recreates the collection. Destructive, so it demands an
// explicit confirm and optionally a backup first.
func (s *Store) Reset(ctx context.Context, confirm, createBackup bool, backupW io.Writer) error {
	if !confirm {
		return vectorstore.ErrConfirmRequired
	}
	if createBackup && backupW != nil {
		if _, err := s.Backup(ctx, backupW); err != nil {
			return fmt.Errorf("pre-reset backup: %w", err)
		}
	}

	err := s.client.do(ctx, http.MethodDelete, "/collections/"+s.collection, nil, nil)
	if err != nil && !errors.Is(err, errCollectionMissing) {
		return fmt.Errorf("drop collection: %w", err)
	}
	return s.createCollection(ctx)
}
