// Package types defines the shared domain types for the platform.
//
// The concrete storage implementations live in the storage sub-packages.
// This package holds value types that are referenced by both the storage
// layer and its consumers (ingest, retrieval, server).
package types

import (
	"encoding/json"
	"time"
)

// ObjectType classifies an integrated object.
type ObjectType string

const (
	ObjectTypeTicket       ObjectType = "ticket"
	ObjectTypeConversation ObjectType = "conversation"
	ObjectTypeArticle      ObjectType = "article"
	ObjectTypeAttachment   ObjectType = "attachment"
)

// Valid reports whether t is one of the known object types.
func (t ObjectType) Valid() bool {
	switch t {
	case ObjectTypeTicket, ObjectTypeConversation, ObjectTypeArticle, ObjectTypeAttachment:
		return true
	}
	return false
}

// Metadata is the structured metadata attached to an integrated object.
// Upstream-specific fields that have no neutral home go into CustomFields.
type Metadata struct {
	Subject          string         `json:"subject,omitempty"`
	Status           string         `json:"status,omitempty"`
	Priority         string         `json:"priority,omitempty"`
	RequesterEmail   string         `json:"requester_email,omitempty"`
	CreatedAt        string         `json:"created_at,omitempty"`
	UpdatedAt        string         `json:"updated_at,omitempty"`
	ParentType       string         `json:"parent_type,omitempty"`
	ParentOriginalID string         `json:"parent_original_id,omitempty"`
	AttachmentCount  int            `json:"attachment_count,omitempty"`
	InlineImageCount int            `json:"inline_image_count,omitempty"`
	CustomFields     map[string]any `json:"custom_fields,omitempty"`
}

// IntegratedObject is the canonical platform-neutral record. Identity is the
// (TenantID, Platform, OriginalID) 3-tuple; ID is a storage surrogate only.
type IntegratedObject struct {
	ID                int64           `json:"id,omitempty"`
	TenantID          string          `json:"tenant_id"`
	Platform          string          `json:"platform"`
	ObjectType        ObjectType      `json:"object_type"`
	OriginalID        string          `json:"original_id"`
	OriginalData      json.RawMessage `json:"original_data,omitempty"`
	IntegratedContent string          `json:"integrated_content"`
	Summary           string          `json:"summary,omitempty"`
	Metadata          Metadata        `json:"metadata"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         *time.Time      `json:"deleted_at,omitempty"`
}

// ProgressEntry is one row of the per-job progress log. Rows are upserted on
// (JobID, Step), so the log is bounded by TotalSteps.
type ProgressEntry struct {
	JobID      string    `json:"job_id"`
	TenantID   string    `json:"tenant_id"`
	Step       int       `json:"step"`
	TotalSteps int       `json:"total_steps"`
	Message    string    `json:"message"`
	Percentage float64   `json:"percentage"`
	CreatedAt  time.Time `json:"created_at"`
}

// TenantSetting is a per-tenant configuration value, optionally encrypted at
// rest with the master key from SystemSetting.
type TenantSetting struct {
	TenantID    string    `json:"tenant_id"`
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	IsEncrypted bool      `json:"is_encrypted"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SystemSetting is a process-wide key/value row (master encryption key, etc).
type SystemSetting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Agent is a help-desk agent known to the SaaS side. Not on the ingestion
// critical path; persisted for account management.
type Agent struct {
	ID        int64     `json:"id,omitempty"`
	TenantID  string    `json:"tenant_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// License records seat allocation for a tenant.
type License struct {
	ID        int64     `json:"id,omitempty"`
	TenantID  string    `json:"tenant_id"`
	Seats     int       `json:"seats"`
	Plan      string    `json:"plan"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Subscription records the billing subscription for a tenant.
type Subscription struct {
	ID        int64     `json:"id,omitempty"`
	TenantID  string    `json:"tenant_id"`
	Status    string    `json:"status"`
	Plan      string    `json:"plan"`
	StartedAt time.Time `json:"started_at"`
	RenewsAt  time.Time `json:"renews_at"`
	CreatedAt time.Time `json:"created_at"`
}
