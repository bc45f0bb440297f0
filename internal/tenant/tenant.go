// Package tenant carries the per-request tenant context: identity extracted
// from the request headers, upstream credentials, and lazily loaded settings
// decrypted with the process master key.
package tenant

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/wedosoft/project-a/internal/apperr"
	"github.com/wedosoft/project-a/internal/platform"
)

// Header names recognized at the HTTP boundary.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderPlatform = "X-Platform"
	HeaderDomain   = "X-Domain"
	HeaderAPIKey   = "X-API-Key"
)

// DefaultPlatform is assumed when X-Platform is absent.
const DefaultPlatform = "freshdesk"

// tenantIDPattern constrains tenant ids to DNS-label-ish names.
var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{2,50}$`)

// reservedTenantIDs can never be used as tenant ids; they collide with infra
// names or invite confusion in logs and URLs.
var reservedTenantIDs = map[string]bool{
	"admin":     true,
	"api":       true,
	"internal":  true,
	"localhost": true,
	"metrics":   true,
	"public":    true,
	"root":      true,
	"system":    true,
	"test":      true,
	"www":       true,
}

// Context identifies whose data a request touches and how to reach its
// upstream.
type Context struct {
	TenantID string
	Platform string
	Domain   string
	APIKey   string
}

// ValidateTenantID checks the tenant id shape and the reserved set.
func ValidateTenantID(id string) error {
	if !tenantIDPattern.MatchString(id) {
		return apperr.New(apperr.KindValidation, "tenant",
			"tenant id must be 2-50 characters of letters, digits, or hyphens")
	}
	if reservedTenantIDs[strings.ToLower(id)] {
		return apperr.New(apperr.KindValidation, "tenant", "tenant id is reserved")
	}
	return nil
}

// FromHeaders extracts and validates the tenant context from request
// headers. A missing tenant id is a validation error; a missing platform
// defaults to freshdesk.
func FromHeaders(h http.Header) (*Context, error) {
	id := strings.TrimSpace(h.Get(HeaderTenantID))
	if id == "" {
		return nil, apperr.New(apperr.KindValidation, "tenant", "X-Tenant-ID header required")
	}
	if err := ValidateTenantID(id); err != nil {
		return nil, err
	}

	plat := strings.ToLower(strings.TrimSpace(h.Get(HeaderPlatform)))
	if plat == "" {
		plat = DefaultPlatform
	}

	return &Context{
		TenantID: id,
		Platform: plat,
		Domain:   strings.TrimSpace(h.Get(HeaderDomain)),
		APIKey:   strings.TrimSpace(h.Get(HeaderAPIKey)),
	}, nil
}

// Credentials returns the upstream credentials carried on the request.
func (c *Context) Credentials() platform.Credentials {
	return platform.Credentials{Domain: c.Domain, APIKey: c.APIKey}
}
