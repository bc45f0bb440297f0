// Package platform defines the capability interface that all help-desk
// provider integrations implement, plus the neutral record types they emit.
//
// Each upstream system (Freshdesk today) provides an adapter implementing
// Provider. The ingestion engine and the retrieval orchestrator consume only
// neutral records; the adapter is the sole component that talks upstream.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when the upstream reports that an object does not exist.
var ErrNotFound = errors.New("upstream object not found")

// ErrRateLimited is returned when the upstream kept rate-limiting past the
// adapter's retry budget. The ingestion engine slows its pacing on this.
var ErrRateLimited = errors.New("upstream rate limit exhausted")

// Ticket is a neutral help-desk ticket. Status and Priority are portable
// string enums; the upstream payload is preserved verbatim in Raw.
type Ticket struct {
	OriginalID    string          `json:"original_id"`
	Subject       string          `json:"subject"`
	Description   string          `json:"description"`
	Status        string          `json:"status"`
	Priority      string          `json:"priority"`
	RequesterEmail string         `json:"requester_email,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
	CustomFields  map[string]any  `json:"custom_fields,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Conversations []Conversation  `json:"conversations,omitempty"`
	Attachments   []Attachment    `json:"attachments,omitempty"`
	Raw           json.RawMessage `json:"raw,omitempty"`
}

// Conversation is one reply or note on a ticket.
type Conversation struct {
	OriginalID  string          `json:"original_id"`
	TicketID    string          `json:"ticket_id"`
	Body        string          `json:"body"`
	Incoming    bool            `json:"incoming"`
	Private     bool            `json:"private"`
	FromEmail   string          `json:"from_email,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Attachments []Attachment    `json:"attachments,omitempty"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// Attachment is a file attached to a ticket or a conversation. ParentType is
// "ticket" or "conversation"; joins are resolved through the 3-tuple, never
// through object pointers.
type Attachment struct {
	OriginalID  string    `json:"original_id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	URL         string    `json:"url,omitempty"`
	ParentType  string    `json:"parent_type"`
	ParentID    string    `json:"parent_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Article is a neutral knowledge-base article.
type Article struct {
	OriginalID  string          `json:"original_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Status      string          `json:"status"` // draft or published
	CategoryID  string          `json:"category_id,omitempty"`
	FolderID    string          `json:"folder_id,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// ListOptions controls paginated upstream listing.
type ListOptions struct {
	Page         int
	PerPage      int
	UpdatedSince time.Time
	EndDate      time.Time // zero means no upper bound
}

// Provider is the capability set every help-desk integration implements.
type Provider interface {
	// Name returns the lowercase platform identifier (e.g. "freshdesk").
	Name() string

	// ListTicketsUpdatedSince returns one page of tickets ordered by
	// ascending update time. A short page signals the end of results.
	ListTicketsUpdatedSince(ctx context.Context, opts ListOptions) ([]Ticket, error)

	// GetTicket fetches a single ticket with full detail.
	GetTicket(ctx context.Context, originalID string) (*Ticket, error)

	// ListConversations returns all conversations of a ticket.
	ListConversations(ctx context.Context, ticketID string) ([]Conversation, error)

	// ListTicketAttachments returns the attachments carried directly on a
	// ticket. Conversation attachments arrive with their conversation.
	ListTicketAttachments(ctx context.Context, ticketID string) ([]Attachment, error)

	// ListArticles returns one page of knowledge-base articles.
	ListArticles(ctx context.Context, opts ListOptions) ([]Article, error)
}

// Credentials carries per-request upstream access data resolved from headers
// or from fallback configuration.
type Credentials struct {
	Domain string
	APIKey string
}
