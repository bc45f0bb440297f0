package tenant

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/wedosoft/project-a/internal/apperr"
	"github.com/wedosoft/project-a/internal/storage/sqlite"
)

func headers(pairs ...string) http.Header {
	h := make(http.Header)
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Set(pairs[i], pairs[i+1])
	}
	return h
}

func TestFromHeaders(t *testing.T) {
	tc, err := FromHeaders(headers(
		HeaderTenantID, "acme",
		HeaderPlatform, "Freshdesk",
		HeaderDomain, "acme.freshdesk.com",
		HeaderAPIKey, "secret",
	))
	if err != nil {
		t.Fatal(err)
	}
	if tc.TenantID != "acme" || tc.Platform != "freshdesk" {
		t.Errorf("context = %+v", tc)
	}
	creds := tc.Credentials()
	if creds.Domain != "acme.freshdesk.com" || creds.APIKey != "secret" {
		t.Errorf("credentials = %+v", creds)
	}
}

func TestFromHeadersDefaultsPlatform(t *testing.T) {
	tc, err := FromHeaders(headers(HeaderTenantID, "acme"))
	if err != nil {
		t.Fatal(err)
	}
	if tc.Platform != DefaultPlatform {
		t.Errorf("platform = %q, want %q", tc.Platform, DefaultPlatform)
	}
}

func TestFromHeadersRejectsBadTenants(t *testing.T) {
	cases := []string{
		"",            // missing
		"a",           // too short
		"has spaces",  // bad characters
		"under_score", // bad characters
		"admin",       // reserved
		"System",      // reserved, case-insensitive
	}
	for _, id := range cases {
		h := headers()
		if id != "" {
			h.Set(HeaderTenantID, id)
		}
		if _, err := FromHeaders(h); !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("tenant %q: err = %v, want KindValidation", id, err)
		}
	}

	if err := ValidateTenantID("valid-tenant-01"); err != nil {
		t.Errorf("valid tenant rejected: %v", err)
	}
}

func TestContextRoundTrip(t *testing.T) {
	tc := &Context{TenantID: "acme", Platform: "freshdesk"}
	ctx := WithContext(context.Background(), tc)
	if got := FromContext(ctx); got != tc {
		t.Errorf("FromContext = %+v", got)
	}
	if got := FromContext(context.Background()); got != nil {
		t.Errorf("empty context returned %+v", got)
	}
}

func TestCryptoRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	c, err := NewCrypto(key)
	if err != nil {
		t.Fatal(err)
	}

	sealed, err := c.Encrypt("api-key-123")
	if err != nil {
		t.Fatal(err)
	}
	if sealed == "api-key-123" {
		t.Error("value not encrypted")
	}
	plain, err := c.Decrypt(sealed)
	if err != nil {
		t.Fatal(err)
	}
	if plain != "api-key-123" {
		t.Errorf("decrypted = %q", plain)
	}

	if _, err := c.Decrypt("not-base64!!!"); err == nil {
		t.Error("garbage decrypted without error")
	}
	if _, err := NewCrypto([]byte("short")); !apperr.IsKind(err, apperr.KindConfiguration) {
		t.Errorf("short key err = %v", err)
	}
}

func TestLoadOrCreateCryptoPersistsKey(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	first, err := LoadOrCreateCrypto(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := first.Encrypt("hello")
	if err != nil {
		t.Fatal(err)
	}

	// A second load reuses the persisted key and can decrypt.
	second, err := LoadOrCreateCrypto(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	plain, err := second.Decrypt(sealed)
	if err != nil {
		t.Fatal(err)
	}
	if plain != "hello" {
		t.Errorf("decrypted = %q", plain)
	}
}

func TestSettingsLazyLoadAndDecrypt(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	crypto, err := LoadOrCreateCrypto(ctx, store)
	if err != nil {
		t.Fatal(err)
	}

	writer := NewSettings(store, crypto, "acme")
	if err := writer.Set(ctx, "freshdesk_api_key", "super-secret", true); err != nil {
		t.Fatal(err)
	}
	if err := writer.Set(ctx, "locale", "ko", false); err != nil {
		t.Fatal(err)
	}

	// The encrypted value must not be readable at rest.
	row, err := store.GetTenantSetting(ctx, "acme", "freshdesk_api_key")
	if err != nil {
		t.Fatal(err)
	}
	if !row.IsEncrypted || row.Value == "super-secret" {
		t.Errorf("stored row = %+v", row)
	}

	// A fresh view decrypts lazily.
	reader := NewSettings(store, crypto, "acme")
	got, err := reader.Get(ctx, "freshdesk_api_key")
	if err != nil {
		t.Fatal(err)
	}
	if got != "super-secret" {
		t.Errorf("decrypted setting = %q", got)
	}
	if got, _ := reader.Get(ctx, "locale"); got != "ko" {
		t.Errorf("plain setting = %q", got)
	}

	if _, err := reader.Get(ctx, "missing"); !errors.Is(err, ErrSettingNotFound) {
		t.Errorf("missing key err = %v", err)
	}
	if got, err := reader.GetDefault(ctx, "missing", "fallback"); err != nil || got != "fallback" {
		t.Errorf("default = %q, %v", got, err)
	}

	// Another tenant sees nothing.
	other := NewSettings(store, crypto, "beta")
	if _, err := other.Get(ctx, "locale"); !errors.Is(err, ErrSettingNotFound) {
		t.Errorf("cross-tenant read err = %v", err)
	}
}
