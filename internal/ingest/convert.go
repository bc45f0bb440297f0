package ingest

import (
	"strings"
	"time"

	"github.com/wedosoft/project-a/internal/platform"
	"github.com/wedosoft/project-a/internal/types"
)

// ticketObject builds the canonical record for a ticket. Integrated content
// is the searchable text: subject, description, and conversation bodies.
func ticketObject(tenantID, platformName string, t *platform.Ticket) *types.IntegratedObject {
	var content strings.Builder
	content.WriteString(t.Subject)
	content.WriteString("\n\n")
	content.WriteString(t.Description)
	for _, c := range t.Conversations {
		content.WriteString("\n\n")
		content.WriteString(c.Body)
	}

	return &types.IntegratedObject{
		TenantID:          tenantID,
		Platform:          platformName,
		ObjectType:        types.ObjectTypeTicket,
		OriginalID:        t.OriginalID,
		OriginalData:      t.Raw,
		IntegratedContent: content.String(),
		Metadata: types.Metadata{
			Subject:         t.Subject,
			Status:          t.Status,
			Priority:        t.Priority,
			RequesterEmail:  t.RequesterEmail,
			CreatedAt:       formatTime(t.CreatedAt),
			UpdatedAt:       formatTime(t.UpdatedAt),
			AttachmentCount: len(t.Attachments),
			CustomFields:    t.CustomFields,
		},
	}
}

func conversationObject(tenantID, platformName string, c *platform.Conversation) *types.IntegratedObject {
	return &types.IntegratedObject{
		TenantID:          tenantID,
		Platform:          platformName,
		ObjectType:        types.ObjectTypeConversation,
		OriginalID:        c.OriginalID,
		OriginalData:      c.Raw,
		IntegratedContent: c.Body,
		Metadata: types.Metadata{
			CreatedAt:        formatTime(c.CreatedAt),
			ParentType:       "ticket",
			ParentOriginalID: c.TicketID,
			AttachmentCount:  len(c.Attachments),
		},
	}
}

func attachmentObject(tenantID, platformName string, a *platform.Attachment) *types.IntegratedObject {
	return &types.IntegratedObject{
		TenantID:          tenantID,
		Platform:          platformName,
		ObjectType:        types.ObjectTypeAttachment,
		OriginalID:        a.OriginalID,
		IntegratedContent: a.Name,
		Metadata: types.Metadata{
			CreatedAt:        formatTime(a.CreatedAt),
			ParentType:       a.ParentType,
			ParentOriginalID: a.ParentID,
			CustomFields: map[string]any{
				"content_type": a.ContentType,
				"size":         a.Size,
				"url":          a.URL,
			},
		},
	}
}

func articleObject(tenantID, platformName string, a *platform.Article) *types.IntegratedObject {
	return &types.IntegratedObject{
		TenantID:          tenantID,
		Platform:          platformName,
		ObjectType:        types.ObjectTypeArticle,
		OriginalID:        a.OriginalID,
		OriginalData:      a.Raw,
		IntegratedContent: a.Title + "\n\n" + a.Description,
		Metadata: types.Metadata{
			Subject:   a.Title,
			Status:    a.Status,
			CreatedAt: formatTime(a.CreatedAt),
			UpdatedAt: formatTime(a.UpdatedAt),
		},
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
