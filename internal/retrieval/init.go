package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wedosoft/project-a/internal/apperr"
	"github.com/wedosoft/project-a/internal/llm"
	"github.com/wedosoft/project-a/internal/platform"
	"github.com/wedosoft/project-a/internal/storage"
	"github.com/wedosoft/project-a/internal/summarize"
	"github.com/wedosoft/project-a/internal/types"
	"github.com/wedosoft/project-a/internal/vectorstore"
)

// ProgressEvent is one streamed init progress update.
type ProgressEvent struct {
	Stage           string  `json:"stage"`
	ProgressPercent float64 `json:"progress_percent"`
	RemainingTime   float64 `json:"remaining_time"`
}

// InitOptions tune the init flow. OnEvent, when set, receives progress
// events as stages complete; it may be called from concurrent branches.
type InitOptions struct {
	TopK    int
	OnEvent func(ProgressEvent)
}

// TicketData is the ticket view assembled for the caller. Source records
// whether the data came from the live upstream or the store fallback.
type TicketData struct {
	OriginalID    string   `json:"original_id"`
	Subject       string   `json:"subject"`
	Description   string   `json:"description"`
	Status        string   `json:"status,omitempty"`
	Priority      string   `json:"priority,omitempty"`
	Conversations []string `json:"conversations,omitempty"`
	Source        string   `json:"source"`
}

// SimilarDoc is one similar ticket or KB article.
type SimilarDoc struct {
	OriginalID string  `json:"original_id"`
	DocType    string  `json:"doc_type"`
	Title      string  `json:"title,omitempty"`
	Score      float32 `json:"score"`
	Summary    string  `json:"summary,omitempty"`
}

// InitResult is the aggregate init response.
type InitResult struct {
	ContextID      string             `json:"context_id"`
	TicketData     TicketData         `json:"ticket_data"`
	Summary        *summarize.Summary `json:"summary,omitempty"`
	SimilarTickets []SimilarDoc       `json:"similar_tickets"`
	KBDocuments    []SimilarDoc       `json:"kb_documents"`
}

// initStages is the denominator for progress percentages.
var initStages = []string{"ticket_fetch", "summary", "similar_tickets", "kb_documents"}

// progressTracker emits monotonic progress from concurrently finishing
// stages and estimates remaining time from the pace so far.
type progressTracker struct {
	mu      sync.Mutex
	started time.Time
	done    int
	total   int
	emit    func(ProgressEvent)
}

func newProgressTracker(emit func(ProgressEvent)) *progressTracker {
	return &progressTracker{started: time.Now(), total: len(initStages) + 1, emit: emit}
}

func (p *progressTracker) complete(stage string) {
	if p.emit == nil {
		return
	}
	// Emitting under the lock keeps events in percentage order even when
	// stages finish concurrently.
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	elapsed := time.Since(p.started).Seconds()
	remaining := 0.0
	if p.done < p.total {
		remaining = elapsed / float64(p.done) * float64(p.total-p.done)
	}
	p.emit(ProgressEvent{
		Stage:           stage,
		ProgressPercent: float64(p.done) / float64(p.total) * 100,
		RemainingTime:   remaining,
	})
}

// Init assembles the ticket view: live fetch with store fallback, then
// summary and similar-document branches in parallel.
func (o *Orchestrator) Init(ctx context.Context, scope Scope, ticketID string, opts InitOptions) (*InitResult, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	if ticketID == "" {
		return nil, apperr.New(apperr.KindValidation, "retrieval", "ticket id required")
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	tracker := newProgressTracker(opts.OnEvent)
	log := o.log.With().Str("tenant_id", scope.TenantID).Str("ticket_id", ticketID).Logger()

	ticket, err := o.fetchTicket(ctx, scope, ticketID)
	if err != nil {
		return nil, err
	}
	tracker.complete("ticket_fetch")

	selected := selectConversations(ticket.Conversations)
	content := buildInitContent(ticket.Subject, ticket.Description, selected)
	ticket.Conversations = selected

	result := &InitResult{TicketData: *ticket}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sum, err := o.summarizer.Summarize(gctx, summarize.Input{
			RecordID:      scope.TenantID + ":" + scope.Platform + ":" + ticketID,
			Subject:       ticket.Subject,
			Body:          ticket.Description,
			Conversations: selected,
		})
		if err != nil {
			// A missing summary degrades the view, it does not fail the init.
			log.Warn().Err(err).Msg("init summary failed")
			tracker.complete("summary")
			return nil
		}
		result.Summary = sum
		tracker.complete("summary")
		return nil
	})

	g.Go(func() error {
		vec, err := o.embedQuery(gctx, content)
		if err != nil {
			return err
		}

		sg, sctx := errgroup.WithContext(gctx)
		sg.Go(func() error {
			hits, err := o.vectors.Search(sctx, vectorstore.SearchParams{
				Vector:            vec,
				TopK:              topK,
				TenantID:          scope.TenantID,
				Platform:          scope.Platform,
				DocType:           "ticket",
				ExcludeOriginalID: ticketID,
			})
			if err != nil {
				return err
			}
			result.SimilarTickets = o.describeHits(sctx, scope, hits, "ticket")
			tracker.complete("similar_tickets")
			return nil
		})
		sg.Go(func() error {
			hits, err := o.vectors.Search(sctx, vectorstore.SearchParams{
				Vector:   vec,
				TopK:     topK,
				TenantID: scope.TenantID,
				Platform: scope.Platform,
				DocType:  "article",
			})
			if err != nil {
				return err
			}
			result.KBDocuments = o.describeHits(sctx, scope, hits, "article")
			tracker.complete("kb_documents")
			return nil
		})
		return sg.Wait()
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	summaryRaw := ""
	if result.Summary != nil {
		summaryRaw = result.Summary.Raw
	}
	result.ContextID = o.storeContext(scope, content, summaryRaw)
	tracker.complete("done")
	return result, nil
}

// fetchTicket tries the live upstream under a short timeout and falls back
// to the store by 3-tuple.
func (o *Orchestrator) fetchTicket(ctx context.Context, scope Scope, ticketID string) (*TicketData, error) {
	if live, err := o.fetchLive(ctx, scope, ticketID); err == nil {
		return live, nil
	} else {
		o.log.Debug().Err(err).Str("ticket_id", ticketID).Msg("live fetch failed, using store")
	}

	obj, err := o.store.GetObject(ctx, scope.TenantID, scope.Platform, types.ObjectTypeTicket, ticketID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.Wrap(apperr.KindNotFound, "retrieval",
				fmt.Sprintf("ticket %s", ticketID), ErrTicketNotFound)
		}
		return nil, err
	}

	convs, err := o.storedConversations(ctx, scope, ticketID)
	if err != nil {
		return nil, err
	}
	return &TicketData{
		OriginalID:    ticketID,
		Subject:       obj.Metadata.Subject,
		Description:   obj.IntegratedContent,
		Status:        obj.Metadata.Status,
		Priority:      obj.Metadata.Priority,
		Conversations: convs,
		Source:        "store",
	}, nil
}

func (o *Orchestrator) fetchLive(ctx context.Context, scope Scope, ticketID string) (*TicketData, error) {
	provider, err := o.registry.New(scope.Platform, scope.Credentials)
	if err != nil {
		return nil, err
	}

	lctx, cancel := context.WithTimeout(ctx, o.liveTimeout)
	defer cancel()

	ticket, err := provider.GetTicket(lctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, platform.ErrNotFound
	}
	// Conversations are best effort on the live path.
	var convs []string
	if list, err := provider.ListConversations(lctx, ticketID); err == nil {
		for _, c := range list {
			convs = append(convs, c.Body)
		}
	}
	return &TicketData{
		OriginalID:    ticket.OriginalID,
		Subject:       ticket.Subject,
		Description:   ticket.Description,
		Status:        ticket.Status,
		Priority:      ticket.Priority,
		Conversations: convs,
		Source:        "live",
	}, nil
}

// storedConversations pages the tenant's conversation rows and keeps the
// ones parented on the ticket.
func (o *Orchestrator) storedConversations(ctx context.Context, scope Scope, ticketID string) ([]string, error) {
	const page = 200
	var out []string
	for offset := 0; ; offset += page {
		objs, err := o.store.GetByType(ctx, scope.TenantID, scope.Platform, types.ObjectTypeConversation, page, offset)
		if err != nil {
			return nil, err
		}
		for _, obj := range objs {
			if obj.Metadata.ParentOriginalID == ticketID {
				out = append(out, obj.IntegratedContent)
			}
		}
		if len(objs) < page {
			return out, nil
		}
	}
}

// describeHits turns search results into similar docs with short summaries.
// Tickets without a stored summary get a light-mode one; articles reuse the
// payload summary as is.
func (o *Orchestrator) describeHits(ctx context.Context, scope Scope, hits []vectorstore.SearchResult, docType string) []SimilarDoc {
	docs := make([]SimilarDoc, len(hits))
	g, gctx := errgroup.WithContext(ctx)
	for i, hit := range hits {
		docs[i] = SimilarDoc{
			OriginalID: hit.Payload.OriginalID,
			DocType:    docType,
			Title:      titleOf(hit.Payload),
			Score:      hit.Score,
			Summary:    hit.Payload.Summary,
		}
		if docType != "ticket" {
			continue
		}
		i, hit := i, hit
		g.Go(func() error {
			docs[i].Summary = o.shortSummary(gctx, scope, hit)
			return nil
		})
	}
	_ = g.Wait() // branches never return errors
	return docs
}

// shortSummary produces a one-liner for a similar ticket via light mode,
// falling back to the stored summary text when the call fails.
func (o *Orchestrator) shortSummary(ctx context.Context, scope Scope, hit vectorstore.SearchResult) string {
	source := hit.Payload.Summary
	if source == "" {
		if obj, err := o.store.GetObject(ctx, scope.TenantID, scope.Platform,
			types.ObjectTypeTicket, hit.Payload.OriginalID); err == nil {
			source = obj.IntegratedContent
		}
	}
	if source == "" {
		return ""
	}

	resp, err := o.llm.Generate(ctx, llm.Request{
		Prompt:       source,
		SystemPrompt: similarTicketPrompt,
		TaskType:     llm.TaskLight,
		Operation:    "similar_ticket_summary",
	})
	if err != nil {
		return trimRunes(source, InitConversationRunes)
	}
	return strings.TrimSpace(resp.Text)
}

func titleOf(p vectorstore.Payload) string {
	if p.TenantMetadata == nil {
		return ""
	}
	if s, ok := p.TenantMetadata["subject"].(string); ok {
		return s
	}
	if s, ok := p.TenantMetadata["title"].(string); ok {
		return s
	}
	return ""
}

// buildInitContent assembles the content string fed to the summarizer and
// the embedding.
func buildInitContent(subject, description string, conversations []string) string {
	var b strings.Builder
	b.WriteString("subject: ")
	b.WriteString(strings.TrimSpace(subject))
	b.WriteString("\ndescription: ")
	b.WriteString(strings.TrimSpace(description))
	if len(conversations) > 0 {
		b.WriteString("\nconversations:")
		for i, c := range conversations {
			fmt.Fprintf(&b, "\n%d. %s", i+1, c)
		}
	}
	return b.String()
}

// selectConversations keeps at most MaxInitConversations turns of at most
// InitConversationRunes each. When there are more, the most informative
// turns win: substance (length up to the cap) plus a recency bias, with the
// surviving turns kept in chronological order.
func selectConversations(convs []string) []string {
	trimmed := make([]string, 0, len(convs))
	for _, c := range convs {
		c = strings.Join(strings.Fields(c), " ")
		if c == "" {
			continue
		}
		trimmed = append(trimmed, trimRunes(c, InitConversationRunes))
	}
	if len(trimmed) <= MaxInitConversations {
		return trimmed
	}

	type scored struct {
		idx   int
		score float64
	}
	order := make([]scored, len(trimmed))
	for i, c := range trimmed {
		substance := float64(len([]rune(c))) / float64(InitConversationRunes)
		if substance > 1 {
			substance = 1
		}
		recency := float64(i) / float64(len(trimmed)-1)
		order[i] = scored{idx: i, score: substance + 0.3*recency}
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].score > order[j].score })

	keep := make(map[int]bool, MaxInitConversations)
	for _, c := range order[:MaxInitConversations] {
		keep[c.idx] = true
	}
	out := make([]string, 0, MaxInitConversations)
	for i, c := range trimmed {
		if keep[i] {
			out = append(out, c)
		}
	}
	return out
}

func trimRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
