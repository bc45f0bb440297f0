package freshdesk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/wedosoft/project-a/internal/platform"
)

// errNotFoundHTTP is the internal marker for upstream 404s; it is translated
// to platform.ErrNotFound at the provider surface.
var errNotFoundHTTP = errors.New("freshdesk: 404")

// Provider implements platform.Provider over the Freshdesk REST API.
type Provider struct {
	client *Client
}

// New creates a Freshdesk provider from upstream credentials.
func New(creds platform.Credentials) (platform.Provider, error) {
	if creds.Domain == "" {
		return nil, fmt.Errorf("freshdesk: domain not configured")
	}
	if creds.APIKey == "" {
		return nil, fmt.Errorf("freshdesk: API key not configured")
	}
	return &Provider{client: NewClient(creds.Domain, creds.APIKey)}, nil
}

// NewWithClient builds a provider around an existing client (tests and the
// ingestion engine, which tunes the client's pacing).
func NewWithClient(c *Client) *Provider {
	return &Provider{client: c}
}

// Client exposes the underlying HTTP client for pacing adjustments.
func (p *Provider) Client() *Client { return p.client }

// SetRequestDelay forwards adaptive pacing to the underlying client, so the
// provider itself satisfies the ingestion engine's delay target.
func (p *Provider) SetRequestDelay(d time.Duration) { p.client.SetRequestDelay(d) }

// RequestDelay returns the client's current minimum inter-request delay.
func (p *Provider) RequestDelay() time.Duration { return p.client.RequestDelay() }

// Name returns the platform identifier.
func (p *Provider) Name() string { return "freshdesk" }

// ListTicketsUpdatedSince returns one page of tickets ordered by ascending
// update time.
func (p *Provider) ListTicketsUpdatedSince(ctx context.Context, opts platform.ListOptions) ([]platform.Ticket, error) {
	perPage := opts.PerPage
	if perPage <= 0 || perPage > MaxPageSize {
		perPage = MaxPageSize
	}
	page := opts.Page
	if page <= 0 {
		page = 1
	}

	params := url.Values{
		"order_by":   {"updated_at"},
		"order_type": {"asc"},
		"page":       {strconv.Itoa(page)},
		"per_page":   {strconv.Itoa(perPage)},
		"include":    {"description"},
	}
	if !opts.UpdatedSince.IsZero() {
		params.Set("updated_since", opts.UpdatedSince.UTC().Format(time.RFC3339))
	}

	body, _, err := p.client.doRequest(ctx, p.client.buildURL("/tickets", params))
	if err != nil {
		return nil, translateErr("list tickets", err)
	}

	var raw []apiTicket
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse tickets response: %w", err)
	}

	tickets := make([]platform.Ticket, 0, len(raw))
	for i := range raw {
		t := toNeutralTicket(&raw[i])
		// Stop at the window's end date; the upstream API has no upper-bound
		// filter, so the client enforces it.
		if !opts.EndDate.IsZero() && t.UpdatedAt.After(opts.EndDate) {
			break
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

// GetTicket fetches a single ticket with requester detail.
func (p *Provider) GetTicket(ctx context.Context, originalID string) (*platform.Ticket, error) {
	params := url.Values{"include": {"requester"}}
	body, _, err := p.client.doRequest(ctx, p.client.buildURL("/tickets/"+url.PathEscape(originalID), params))
	if err != nil {
		return nil, translateErr("get ticket "+originalID, err)
	}

	var raw apiTicket
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse ticket response: %w", err)
	}
	t := toNeutralTicket(&raw)
	return &t, nil
}

// ListConversations returns all conversations of a ticket, paging until a
// short page.
func (p *Provider) ListConversations(ctx context.Context, ticketID string) ([]platform.Conversation, error) {
	var all []platform.Conversation
	page := 1

	for {
		params := url.Values{
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(MaxPageSize)},
		}
		body, _, err := p.client.doRequest(ctx, p.client.buildURL("/tickets/"+url.PathEscape(ticketID)+"/conversations", params))
		if err != nil {
			return nil, translateErr("list conversations for "+ticketID, err)
		}

		var raw []apiConversation
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("parse conversations response: %w", err)
		}

		for i := range raw {
			all = append(all, toNeutralConversation(&raw[i], ticketID))
		}
		if len(raw) < MaxPageSize {
			return all, nil
		}
		page++
	}
}

// ListTicketAttachments returns the attachments carried directly on a ticket.
func (p *Provider) ListTicketAttachments(ctx context.Context, ticketID string) ([]platform.Attachment, error) {
	t, err := p.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return t.Attachments, nil
}

// ListArticles returns one page of knowledge-base articles. Freshdesk nests
// articles under categories and folders, so a logical page walks the
// hierarchy; pagination applies to the flattened article stream.
func (p *Provider) ListArticles(ctx context.Context, opts platform.ListOptions) ([]platform.Article, error) {
	perPage := opts.PerPage
	if perPage <= 0 || perPage > MaxPageSize {
		perPage = MaxPageSize
	}
	page := opts.Page
	if page <= 0 {
		page = 1
	}
	skip := (page - 1) * perPage

	categories, err := p.listCategories(ctx)
	if err != nil {
		return nil, err
	}

	var out []platform.Article
	for _, cat := range categories {
		folders, err := p.listFolders(ctx, cat.ID)
		if err != nil {
			return nil, err
		}
		for _, folder := range folders {
			articles, err := p.listFolderArticles(ctx, folder.ID)
			if err != nil {
				return nil, err
			}
			for i := range articles {
				a := toNeutralArticle(&articles[i])
				if !opts.UpdatedSince.IsZero() && a.UpdatedAt.Before(opts.UpdatedSince) {
					continue
				}
				if skip > 0 {
					skip--
					continue
				}
				out = append(out, a)
				if len(out) >= perPage {
					return out, nil
				}
			}
		}
	}
	return out, nil
}

func (p *Provider) listCategories(ctx context.Context) ([]apiCategory, error) {
	body, _, err := p.client.doRequest(ctx, p.client.buildURL("/solutions/categories", nil))
	if err != nil {
		return nil, translateErr("list KB categories", err)
	}
	var cats []apiCategory
	if err := json.Unmarshal(body, &cats); err != nil {
		return nil, fmt.Errorf("parse categories response: %w", err)
	}
	return cats, nil
}

func (p *Provider) listFolders(ctx context.Context, categoryID int64) ([]apiFolder, error) {
	path := fmt.Sprintf("/solutions/categories/%d/folders", categoryID)
	body, _, err := p.client.doRequest(ctx, p.client.buildURL(path, nil))
	if err != nil {
		return nil, translateErr("list KB folders", err)
	}
	var folders []apiFolder
	if err := json.Unmarshal(body, &folders); err != nil {
		return nil, fmt.Errorf("parse folders response: %w", err)
	}
	return folders, nil
}

func (p *Provider) listFolderArticles(ctx context.Context, folderID int64) ([]apiArticle, error) {
	path := fmt.Sprintf("/solutions/folders/%d/articles", folderID)
	body, _, err := p.client.doRequest(ctx, p.client.buildURL(path, nil))
	if err != nil {
		return nil, translateErr("list KB articles", err)
	}
	var articles []apiArticle
	if err := json.Unmarshal(body, &articles); err != nil {
		return nil, fmt.Errorf("parse articles response: %w", err)
	}
	return articles, nil
}

// translateErr maps internal client errors to the platform surface.
func translateErr(op string, err error) error {
	if errors.Is(err, errNotFoundHTTP) {
		return fmt.Errorf("%s: %w", op, platform.ErrNotFound)
	}
	var rle *rateLimitError
	if errors.As(err, &rle) {
		return fmt.Errorf("%s: %w: %v", op, platform.ErrRateLimited, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func toNeutralTicket(t *apiTicket) platform.Ticket {
	desc := t.Description
	if desc == "" {
		desc = t.DescriptionHTML
	}
	out := platform.Ticket{
		OriginalID:   strconv.FormatInt(t.ID, 10),
		Subject:      t.Subject,
		Description:  desc,
		Status:       TicketStatusName(t.Status),
		Priority:     PriorityName(t.Priority),
		Tags:         t.Tags,
		CustomFields: t.CustomFields,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		Raw:          rawOf(t),
	}
	if t.Requester != nil {
		out.RequesterEmail = t.Requester.Email
	}
	ticketID := out.OriginalID
	for i := range t.Attachments {
		out.Attachments = append(out.Attachments, toNeutralAttachment(&t.Attachments[i], "ticket", ticketID))
	}
	return out
}

func toNeutralConversation(c *apiConversation, ticketID string) platform.Conversation {
	body := c.BodyText
	if body == "" {
		body = c.Body
	}
	out := platform.Conversation{
		OriginalID: strconv.FormatInt(c.ID, 10),
		TicketID:   ticketID,
		Body:       body,
		Incoming:   c.Incoming,
		Private:    c.Private,
		FromEmail:  c.FromEmail,
		CreatedAt:  c.CreatedAt,
		Raw:        rawOf(c),
	}
	for i := range c.Attachments {
		out.Attachments = append(out.Attachments, toNeutralAttachment(&c.Attachments[i], "conversation", out.OriginalID))
	}
	return out
}

func toNeutralAttachment(a *apiAttachment, parentType, parentID string) platform.Attachment {
	return platform.Attachment{
		OriginalID:  strconv.FormatInt(a.ID, 10),
		Name:        a.Name,
		ContentType: a.ContentType,
		Size:        a.Size,
		URL:         a.AttachmentURL,
		ParentType:  parentType,
		ParentID:    parentID,
		CreatedAt:   a.CreatedAt,
	}
}

func toNeutralArticle(a *apiArticle) platform.Article {
	desc := a.DescriptionText
	if desc == "" {
		desc = a.Description
	}
	return platform.Article{
		OriginalID:  strconv.FormatInt(a.ID, 10),
		Title:       a.Title,
		Description: desc,
		Status:      ArticleStatusName(a.Status),
		CategoryID:  strconv.FormatInt(a.CategoryID, 10),
		FolderID:    strconv.FormatInt(a.FolderID, 10),
		Tags:        a.Tags,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
		Raw:         rawOf(a),
	}
}
