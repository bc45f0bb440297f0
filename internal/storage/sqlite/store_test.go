package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/wedosoft/project-a/internal/storage"
	"github.com/wedosoft/project-a/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ticketObject(tenant, platform, originalID string) *types.IntegratedObject {
	return &types.IntegratedObject{
		TenantID:          tenant,
		Platform:          platform,
		ObjectType:        types.ObjectTypeTicket,
		OriginalID:        originalID,
		OriginalData:      json.RawMessage(`{"id":` + originalID + `}`),
		IntegratedContent: "subject: help\ndescription: something broke",
		Metadata: types.Metadata{
			Subject:   "help",
			Status:    "open",
			Priority:  "high",
			CreatedAt: "2025-01-01T00:00:00Z",
		},
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	obj := ticketObject("acme", "freshdesk", "42")
	if err := s.UpsertIntegratedObject(ctx, obj); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	obj.IntegratedContent = "subject: help\ndescription: updated text"
	if err := s.UpsertIntegratedObject(ctx, obj); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	n, err := s.CountObjects(ctx, "acme", "freshdesk")
	if err != nil {
		t.Fatalf("CountObjects: %v", err)
	}
	if n != 1 {
		t.Errorf("row count after re-ingestion = %d, want 1", n)
	}

	got, err := s.GetObject(ctx, "acme", "freshdesk", types.ObjectTypeTicket, "42")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if got.IntegratedContent != "subject: help\ndescription: updated text" {
		t.Errorf("content not updated: %q", got.IntegratedContent)
	}
}

func TestUpsertPreservesSummaryWhenAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	obj := ticketObject("acme", "freshdesk", "42")
	obj.Summary = "first summary"
	if err := s.UpsertIntegratedObject(ctx, obj); err != nil {
		t.Fatalf("upsert with summary: %v", err)
	}

	// Re-ingestion without a summary must not wipe the stored one.
	again := ticketObject("acme", "freshdesk", "42")
	if err := s.UpsertIntegratedObject(ctx, again); err != nil {
		t.Fatalf("upsert without summary: %v", err)
	}

	got, err := s.GetObject(ctx, "acme", "freshdesk", types.ObjectTypeTicket, "42")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if got.Summary != "first summary" {
		t.Errorf("summary = %q, want preserved first summary", got.Summary)
	}
}

func TestTenantIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertIntegratedObject(ctx, ticketObject("acme", "freshdesk", "1")); err != nil {
		t.Fatalf("upsert acme: %v", err)
	}
	if err := s.UpsertIntegratedObject(ctx, ticketObject("globex", "freshdesk", "1")); err != nil {
		t.Fatalf("upsert globex: %v", err)
	}

	acme, err := s.GetByType(ctx, "acme", "freshdesk", types.ObjectTypeTicket, 100, 0)
	if err != nil {
		t.Fatalf("GetByType acme: %v", err)
	}
	if len(acme) != 1 || acme[0].TenantID != "acme" {
		t.Fatalf("acme sees %d rows, want exactly its own 1", len(acme))
	}

	if _, err := s.GetObject(ctx, "acme", "zendesk", types.ObjectTypeTicket, "1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("platform predicate missing: err = %v, want ErrNotFound", err)
	}
}

func TestGetAttachmentsForTicketUnion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Ticket 42 with a direct attachment, one conversation, and an
	// attachment on that conversation. A second ticket's attachment must not
	// leak in.
	if err := s.UpsertIntegratedObject(ctx, ticketObject("acme", "freshdesk", "42")); err != nil {
		t.Fatal(err)
	}
	conv := &types.IntegratedObject{
		TenantID: "acme", Platform: "freshdesk",
		ObjectType: types.ObjectTypeConversation, OriginalID: "c1",
		Metadata: types.Metadata{ParentType: "ticket", ParentOriginalID: "42"},
	}
	attDirect := &types.IntegratedObject{
		TenantID: "acme", Platform: "freshdesk",
		ObjectType: types.ObjectTypeAttachment, OriginalID: "a1",
		Metadata: types.Metadata{ParentType: "ticket", ParentOriginalID: "42"},
	}
	attConv := &types.IntegratedObject{
		TenantID: "acme", Platform: "freshdesk",
		ObjectType: types.ObjectTypeAttachment, OriginalID: "a2",
		Metadata: types.Metadata{ParentType: "conversation", ParentOriginalID: "c1"},
	}
	attOther := &types.IntegratedObject{
		TenantID: "acme", Platform: "freshdesk",
		ObjectType: types.ObjectTypeAttachment, OriginalID: "a3",
		Metadata: types.Metadata{ParentType: "ticket", ParentOriginalID: "99"},
	}
	for _, obj := range []*types.IntegratedObject{conv, attDirect, attConv, attOther} {
		if err := s.UpsertIntegratedObject(ctx, obj); err != nil {
			t.Fatalf("upsert %s: %v", obj.OriginalID, err)
		}
	}

	atts, err := s.GetAttachmentsForTicket(ctx, "acme", "freshdesk", "42")
	if err != nil {
		t.Fatalf("GetAttachmentsForTicket: %v", err)
	}
	if len(atts) != 2 {
		t.Fatalf("got %d attachments, want 2 (direct + conversation)", len(atts))
	}
	seen := map[string]bool{}
	for _, a := range atts {
		seen[a.OriginalID] = true
	}
	if !seen["a1"] || !seen["a2"] || seen["a3"] {
		t.Errorf("attachment union wrong: %v", seen)
	}
}

func TestProgressUpsertAndClamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := &types.ProgressEntry{
		JobID: "job-1", TenantID: "acme", Step: 1, TotalSteps: 10,
		Message: "window 1", Percentage: 10,
	}
	if err := s.LogProgress(ctx, entry); err != nil {
		t.Fatalf("LogProgress: %v", err)
	}

	// Re-logging the same step updates in place.
	entry.Message = "window 1 retried"
	entry.Percentage = 150 // clamped to 100
	if err := s.LogProgress(ctx, entry); err != nil {
		t.Fatalf("LogProgress update: %v", err)
	}

	rows, err := s.ListProgress(ctx, "acme", "job-1")
	if err != nil {
		t.Fatalf("ListProgress: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1 after step upsert", len(rows))
	}
	if rows[0].Percentage != 100 {
		t.Errorf("percentage = %v, want clamped 100", rows[0].Percentage)
	}

	entry.Step = 2
	entry.Percentage = 20
	if err := s.LogProgress(ctx, entry); err != nil {
		t.Fatal(err)
	}
	latest, err := s.GetLatestProgress(ctx, "acme", "job-1")
	if err != nil {
		t.Fatalf("GetLatestProgress: %v", err)
	}
	if latest.Step != 2 {
		t.Errorf("latest step = %d, want 2", latest.Step)
	}
}

func TestSoftDeleteAndRestore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertIntegratedObject(ctx, ticketObject("acme", "freshdesk", "42")); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx, "acme", "freshdesk", false); err != nil {
		t.Fatalf("Clear soft: %v", err)
	}

	if _, err := s.GetObject(ctx, "acme", "freshdesk", types.ObjectTypeTicket, "42"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("soft-deleted row still visible: %v", err)
	}

	n, err := s.Restore(ctx, "acme", "freshdesk")
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if n != 1 {
		t.Errorf("restored %d rows, want 1", n)
	}
	if _, err := s.GetObject(ctx, "acme", "freshdesk", types.ObjectTypeTicket, "42"); err != nil {
		t.Errorf("restored row not visible: %v", err)
	}
}

func TestHardDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertIntegratedObject(ctx, ticketObject("acme", "freshdesk", "42")); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx, "acme", "", true); err != nil {
		t.Fatalf("Clear hard: %v", err)
	}
	if n, _ := s.Restore(ctx, "acme", ""); n != 0 {
		t.Errorf("restored %d rows after hard delete, want 0", n)
	}
}

func TestTenantSettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	setting := &types.TenantSetting{TenantID: "acme", Key: "api_key", Value: "ciphertext", IsEncrypted: true}
	if err := s.SetTenantSetting(ctx, setting); err != nil {
		t.Fatalf("SetTenantSetting: %v", err)
	}

	got, err := s.GetTenantSetting(ctx, "acme", "api_key")
	if err != nil {
		t.Fatalf("GetTenantSetting: %v", err)
	}
	if got.Value != "ciphertext" || !got.IsEncrypted {
		t.Errorf("setting = %+v, want encrypted ciphertext", got)
	}

	if _, err := s.GetTenantSetting(ctx, "acme", "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing key err = %v, want ErrNotFound", err)
	}
}

func TestSystemSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSystemSetting(ctx, "master_key"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before set, got %v", err)
	}
	if err := s.SetSystemSetting(ctx, "master_key", "abc123"); err != nil {
		t.Fatalf("SetSystemSetting: %v", err)
	}
	v, err := s.GetSystemSetting(ctx, "master_key")
	if err != nil {
		t.Fatalf("GetSystemSetting: %v", err)
	}
	if v != "abc123" {
		t.Errorf("value = %q, want abc123", v)
	}
}

func TestInvalidTenantID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	obj := ticketObject("../evil", "freshdesk", "1")
	if err := s.UpsertIntegratedObject(ctx, obj); err == nil {
		t.Error("expected error for path-traversal tenant id")
	}
	if err := s.UpsertIntegratedObject(ctx, &types.IntegratedObject{Platform: "freshdesk"}); !errors.Is(err, storage.ErrTenantRequired) {
		t.Errorf("err = %v, want ErrTenantRequired", err)
	}
}
