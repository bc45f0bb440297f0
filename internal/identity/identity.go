// Package identity implements the platform-neutral 3-tuple identity and the
// deterministic vector point id derived from it.
package identity

import (
	"crypto/md5" // #nosec G501 - id derivation, not integrity
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Identity is the (tenant, platform, original id) 3-tuple that uniquely
// identifies every persistent object across the relational and vector stores.
type Identity struct {
	TenantID   string
	Platform   string
	OriginalID string
}

// knownPrefixes are stripped from upstream ids during normalization.
var knownPrefixes = []string{"ticket-", "kb-"}

// NormalizeOriginalID strips known upstream prefixes and surrounding
// whitespace from an upstream id. Normalizing an already-normal id is a no-op.
func NormalizeOriginalID(id string) string {
	id = strings.TrimSpace(id)
	for _, p := range knownPrefixes {
		if strings.HasPrefix(id, p) {
			return id[len(p):]
		}
	}
	return id
}

// New builds an Identity with the original id normalized.
func New(tenantID, platform, originalID string) Identity {
	return Identity{
		TenantID:   tenantID,
		Platform:   platform,
		OriginalID: NormalizeOriginalID(originalID),
	}
}

// Key returns the canonical "tenant:platform:original" string form.
func (id Identity) Key() string {
	return id.TenantID + ":" + id.Platform + ":" + id.OriginalID
}

// PointID returns the deterministic vector point id for this identity:
// the raw MD5 digest of Key() interpreted as a UUID. The same tuple always
// maps to the same point, which makes vector upserts idempotent.
func (id Identity) PointID() uuid.UUID {
	sum := md5.Sum([]byte(id.Key())) // #nosec G401
	u, _ := uuid.FromBytes(sum[:])
	return u
}

// Validate reports an error when any component of the tuple is empty.
func (id Identity) Validate() error {
	if id.TenantID == "" {
		return fmt.Errorf("identity: empty tenant id")
	}
	if id.Platform == "" {
		return fmt.Errorf("identity: empty platform")
	}
	if id.OriginalID == "" {
		return fmt.Errorf("identity: empty original id")
	}
	return nil
}
