// Package freshdesk provides the client and mapping for the Freshdesk REST API.
package freshdesk

import (
	"encoding/json"
	"time"
)

// apiTicket mirrors the Freshdesk v2 ticket payload.
type apiTicket struct {
	ID             int64          `json:"id"`
	Subject        string         `json:"subject"`
	Description    string         `json:"description_text"`
	DescriptionHTML string        `json:"description"`
	Status         int            `json:"status"`
	Priority       int            `json:"priority"`
	RequesterID    int64          `json:"requester_id"`
	Tags           []string       `json:"tags"`
	CustomFields   map[string]any `json:"custom_fields"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Attachments    []apiAttachment `json:"attachments"`

	// Present only on detail fetches with requester embedding.
	Requester *struct {
		Email string `json:"email"`
	} `json:"requester,omitempty"`
}

// apiConversation mirrors the Freshdesk conversation payload.
type apiConversation struct {
	ID          int64           `json:"id"`
	TicketID    int64           `json:"ticket_id"`
	BodyText    string          `json:"body_text"`
	Body        string          `json:"body"`
	Incoming    bool            `json:"incoming"`
	Private     bool            `json:"private"`
	FromEmail   string          `json:"from_email"`
	CreatedAt   time.Time       `json:"created_at"`
	Attachments []apiAttachment `json:"attachments"`
}

// apiAttachment mirrors the Freshdesk attachment payload.
type apiAttachment struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	AttachmentURL string  `json:"attachment_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// apiArticle mirrors the Freshdesk solution article payload.
type apiArticle struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	DescriptionText string    `json:"description_text"`
	Status          int       `json:"status"`
	CategoryID      int64     `json:"category_id"`
	FolderID        int64     `json:"folder_id"`
	Tags            []string  `json:"tags"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// apiCategory and apiFolder are the KB hierarchy nodes traversed when
// listing articles.
type apiCategory struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type apiFolder struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// rawOf re-marshals an API struct so the neutral record can carry the
// upstream payload verbatim.
func rawOf(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
