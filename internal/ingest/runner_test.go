package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/wedosoft/project-a/internal/platform"
	"github.com/wedosoft/project-a/internal/storage/sqlite"
	"github.com/wedosoft/project-a/internal/tenant"
)

func TestTenantRunnerResolvesCredentials(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	crypto, err := tenant.LoadOrCreateCrypto(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	settings := tenant.NewSettings(store, crypto, "acme")
	if err := settings.Set(ctx, "freshdesk_domain", "acme.freshdesk.com", false); err != nil {
		t.Fatal(err)
	}
	if err := settings.Set(ctx, "freshdesk_api_key", "tenant-secret", true); err != nil {
		t.Fatal(err)
	}

	var got platform.Credentials
	registry := platform.NewRegistry()
	registry.Register("freshdesk", func(creds platform.Credentials) (platform.Provider, error) {
		got = creds
		return &fakeProvider{}, nil
	})

	runner := NewTenantRunner(registry, store, nil, nil, nil, "", crypto,
		platform.Credentials{Domain: "fallback.freshdesk.com", APIKey: "fallback-key"})

	opts := Options{TenantID: "acme", Platform: "freshdesk", MaxTickets: 1, RawDataDir: t.TempDir()}
	if _, err := runner.RunImmediate(ctx, opts); err != nil {
		t.Fatalf("RunImmediate: %v", err)
	}
	if got.Domain != "acme.freshdesk.com" || got.APIKey != "tenant-secret" {
		t.Errorf("credentials = %+v, want tenant settings (decrypted)", got)
	}

	// A tenant without settings uses the configured fallback.
	opts.TenantID = "beta"
	opts.RawDataDir = t.TempDir()
	if _, err := runner.RunImmediate(ctx, opts); err != nil {
		t.Fatalf("RunImmediate fallback: %v", err)
	}
	if got.Domain != "fallback.freshdesk.com" || got.APIKey != "fallback-key" {
		t.Errorf("fallback credentials = %+v", got)
	}

	// Unsupported platforms are refused before any engine work.
	opts.Platform = "zendesk"
	if _, err := runner.RunImmediate(ctx, opts); err == nil {
		t.Error("unsupported platform accepted")
	}
}
