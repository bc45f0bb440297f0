package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/wedosoft/project-a/internal/vectorstore"
)

// fakeQdrant is a minimal in-memory Qdrant double covering the endpoints the
// store uses.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]bool
	points      map[string]qdrantPoint
	indexes     []string
	searchBody  map[string]any
	countFails  bool
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{
		collections: make(map[string]bool),
		points:      make(map[string]qdrantPoint),
	}
}

func (f *fakeQdrant) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/collections/"), "/")
		name := parts[0]

		switch {
		case len(parts) == 1 && r.Method == http.MethodGet:
			if !f.collections[name] {
				http.NotFound(w, r)
				return
			}
			ok(w, map[string]any{"status": "green"})
		case len(parts) == 1 && r.Method == http.MethodPut:
			f.collections[name] = true
			ok(w, true)
		case len(parts) == 1 && r.Method == http.MethodDelete:
			delete(f.collections, name)
			f.points = make(map[string]qdrantPoint)
			ok(w, true)
		case len(parts) == 2 && parts[1] == "index":
			var body struct {
				FieldName string `json:"field_name"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.indexes = append(f.indexes, body.FieldName)
			ok(w, true)
		case len(parts) == 2 && parts[1] == "points" && r.Method == http.MethodPut:
			if !f.collections[name] {
				http.NotFound(w, r)
				return
			}
			var body struct {
				Points []qdrantPoint `json:"points"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			for _, p := range body.Points {
				f.points[p.ID] = p
			}
			ok(w, map[string]any{"status": "completed"})
		case len(parts) == 2 && parts[1] == "points" && r.Method == http.MethodPost:
			var body struct {
				IDs []string `json:"ids"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			var out []qdrantPoint
			for _, id := range body.IDs {
				if p, exists := f.points[id]; exists {
					out = append(out, p)
				}
			}
			ok(w, out)
		case len(parts) == 3 && parts[2] == "search":
			if !f.collections[name] {
				http.NotFound(w, r)
				return
			}
			_ = json.NewDecoder(r.Body).Decode(&f.searchBody)
			var out []map[string]any
			for _, p := range f.points {
				if !f.matchesFilter(p) {
					continue
				}
				out = append(out, map[string]any{"id": p.ID, "score": 0.9, "payload": p.Payload})
			}
			ok(w, out)
		case len(parts) == 3 && parts[2] == "delete":
			var body struct {
				Points []string `json:"points"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			for _, id := range body.Points {
				delete(f.points, id)
			}
			ok(w, true)
		case len(parts) == 3 && parts[2] == "count":
			if f.countFails {
				http.Error(w, "count unavailable", http.StatusInternalServerError)
				return
			}
			ok(w, map[string]any{"count": len(f.points)})
		case len(parts) == 3 && parts[2] == "scroll":
			var out []qdrantPoint
			for _, p := range f.points {
				out = append(out, p)
			}
			ok(w, map[string]any{"points": out, "next_page_offset": nil})
		default:
			http.Error(w, "unhandled: "+r.Method+" "+r.URL.Path, http.StatusBadRequest)
		}
	})
}

func (f *fakeQdrant) matchesFilter(p qdrantPoint) bool {
	filter, _ := f.searchBody["filter"].(map[string]any)
	must, _ := filter["must"].([]any)
	for _, c := range must {
		cond, _ := c.(map[string]any)
		key, _ := cond["key"].(string)
		match, _ := cond["match"].(map[string]any)
		want := fmt.Sprint(match["value"])
		var got string
		switch key {
		case "tenant_id":
			got = p.Payload.TenantID
		case "platform":
			got = p.Payload.Platform
		}
		if got != want {
			return false
		}
	}
	return true
}

func ok(w http.ResponseWriter, result any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "result": result})
}

func newTestStore(t *testing.T) (*Store, *fakeQdrant) {
	t.Helper()
	fake := newFakeQdrant()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return New(srv.URL, "", "documents", 3), fake
}

func TestUpsertAutoCreatesCollection(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()

	p := vectorstore.NewPoint([]float32{1, 0, 0}, vectorstore.Payload{
		TenantID: "acme", Platform: "freshdesk", DocType: "ticket", OriginalID: "42"})
	if err := store.Upsert(ctx, []vectorstore.Point{p}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if !fake.collections["documents"] {
		t.Error("collection was not auto-created")
	}
	if len(fake.points) != 1 {
		t.Errorf("stored %d points, want 1", len(fake.points))
	}
	for _, field := range indexedFields {
		found := false
		for _, idx := range fake.indexes {
			if idx == field {
				found = true
			}
		}
		if !found {
			t.Errorf("payload index %q was not created", field)
		}
	}
}

func TestUpsertSameIdentitySamePoint(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()

	payload := vectorstore.Payload{TenantID: "acme", Platform: "freshdesk", DocType: "ticket", OriginalID: "42"}
	for i := 0; i < 2; i++ {
		if err := store.Upsert(ctx, []vectorstore.Point{vectorstore.NewPoint([]float32{1, 0, 0}, payload)}); err != nil {
			t.Fatal(err)
		}
	}
	if len(fake.points) != 1 {
		t.Errorf("re-upsert produced %d points, want 1", len(fake.points))
	}
}

func TestSearchScopesAndOverFetches(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()

	points := []vectorstore.Point{
		vectorstore.NewPoint([]float32{1, 0, 0}, vectorstore.Payload{
			TenantID: "acme", Platform: "freshdesk", DocType: "ticket", OriginalID: "t1"}),
		vectorstore.NewPoint([]float32{1, 0, 0}, vectorstore.Payload{
			TenantID: "acme", Platform: "freshdesk", DocType: "article", OriginalID: "k1"}),
		vectorstore.NewPoint([]float32{1, 0, 0}, vectorstore.Payload{
			TenantID: "other", Platform: "freshdesk", DocType: "ticket", OriginalID: "t9"}),
	}
	if err := store.Upsert(ctx, points); err != nil {
		t.Fatal(err)
	}

	hits, err := store.Search(ctx, vectorstore.SearchParams{
		Vector: []float32{1, 0, 0}, TopK: 5, TenantID: "acme", Platform: "freshdesk", DocType: "ticket",
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Payload.OriginalID != "t1" {
		t.Fatalf("got %+v, want exactly t1", hits)
	}

	if limit, _ := fake.searchBody["limit"].(float64); int(limit) != 5*vectorstore.OverFetchFactor {
		t.Errorf("search limit = %v, want %d", fake.searchBody["limit"], 5*vectorstore.OverFetchFactor)
	}
}

func TestSearchRequiresTenant(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Search(context.Background(), vectorstore.SearchParams{Vector: []float32{1}, TopK: 5})
	if !errors.Is(err, vectorstore.ErrTenantPlatformRequired) {
		t.Errorf("err = %v, want ErrTenantPlatformRequired", err)
	}
}

func TestSearchExcludesOriginalID(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	p := vectorstore.NewPoint([]float32{1, 0, 0}, vectorstore.Payload{
		TenantID: "acme", Platform: "freshdesk", DocType: "ticket", OriginalID: "t1"})
	if err := store.Upsert(ctx, []vectorstore.Point{p}); err != nil {
		t.Fatal(err)
	}

	hits, err := store.Search(ctx, vectorstore.SearchParams{
		Vector: []float32{1, 0, 0}, TopK: 5, TenantID: "acme", ExcludeOriginalID: "t1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("excluded id still returned: %v", hits)
	}
}

func TestGetByIDChecksTenantAndDocType(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	p := vectorstore.NewPoint([]float32{1, 0, 0}, vectorstore.Payload{
		TenantID: "acme", Platform: "freshdesk", DocType: "ticket", OriginalID: "t1"})
	if err := store.Upsert(ctx, []vectorstore.Point{p}); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetByID(ctx, "acme", "freshdesk", "ticket", "t1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Payload.OriginalID != "t1" {
		t.Errorf("got %+v", got.Payload)
	}

	if _, err := store.GetByID(ctx, "acme", "freshdesk", "article", "t1"); !errors.Is(err, vectorstore.ErrNotFound) {
		t.Errorf("doc-type mismatch: err = %v, want ErrNotFound", err)
	}
	if _, err := store.GetByID(ctx, "other", "freshdesk", "ticket", "t1"); !errors.Is(err, vectorstore.ErrNotFound) {
		t.Errorf("wrong tenant: err = %v, want ErrNotFound", err)
	}
}

func TestDeleteRequiresScope(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()

	p := vectorstore.NewPoint([]float32{1, 0, 0}, vectorstore.Payload{
		TenantID: "acme", Platform: "freshdesk", DocType: "ticket", OriginalID: "t1"})
	if err := store.Upsert(ctx, []vectorstore.Point{p}); err != nil {
		t.Fatal(err)
	}

	if err := store.Delete(ctx, "acme", "", []string{"t1"}); !errors.Is(err, vectorstore.ErrTenantPlatformRequired) {
		t.Errorf("unscoped delete: err = %v, want ErrTenantPlatformRequired", err)
	}
	if err := store.Delete(ctx, "acme", "freshdesk", []string{"t1"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(fake.points) != 0 {
		t.Errorf("%d points remain after delete", len(fake.points))
	}
}

func TestCountFallsBackToScroll(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()

	p := vectorstore.NewPoint([]float32{1, 0, 0}, vectorstore.Payload{
		TenantID: "acme", Platform: "freshdesk", DocType: "ticket", OriginalID: "t1"})
	if err := store.Upsert(ctx, []vectorstore.Point{p}); err != nil {
		t.Fatal(err)
	}
	fake.countFails = true

	n, err := store.Count(ctx, "acme", "freshdesk")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestResetRequiresConfirmAndBacksUp(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()

	p := vectorstore.NewPoint([]float32{1, 0, 0}, vectorstore.Payload{
		TenantID: "acme", Platform: "freshdesk", DocType: "ticket", OriginalID: "t1"})
	if err := store.Upsert(ctx, []vectorstore.Point{p}); err != nil {
		t.Fatal(err)
	}

	if err := store.Reset(ctx, false, false, nil); !errors.Is(err, vectorstore.ErrConfirmRequired) {
		t.Errorf("Reset without confirm: err = %v, want ErrConfirmRequired", err)
	}

	var buf bytes.Buffer
	if err := store.Reset(ctx, true, true, &buf); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	var backed []vectorstore.Point
	if err := json.Unmarshal(buf.Bytes(), &backed); err != nil {
		t.Fatalf("backup not valid JSON: %v", err)
	}
	if len(backed) != 1 || backed[0].Payload.OriginalID != "t1" {
		t.Errorf("backup contents: %+v", backed)
	}
	if len(fake.points) != 0 {
		t.Errorf("%d points remain after reset", len(fake.points))
	}
	if !fake.collections["documents"] {
		t.Error("collection was not recreated after reset")
	}
}
