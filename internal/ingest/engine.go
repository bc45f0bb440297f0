// Package ingest implements the chunked, resumable ingestion pipeline that
// pulls support data from a platform adapter into the relational and vector
// stores.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/wedosoft/project-a/internal/apperr"
	"github.com/wedosoft/project-a/internal/logging"
	"github.com/wedosoft/project-a/internal/platform"
	"github.com/wedosoft/project-a/internal/storage"
	"github.com/wedosoft/project-a/internal/summarize"
	"github.com/wedosoft/project-a/internal/types"
	"github.com/wedosoft/project-a/internal/vectorstore"
)

const (
	// PageSize is the upstream listing page size.
	PageSize = 100

	// MaxImmediateTickets caps the synchronous ingestion path.
	MaxImmediateTickets = 100

	// pageRetries bounds engine-level retries of one page after the adapter
	// exhausted its own rate-limit budget.
	pageRetries = 3
)

// Embedder is the slice of the LLM router the engine needs for vectors.
type Embedder interface {
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// Options configures one ingestion run.
type Options struct {
	TenantID string
	Platform string

	StartDate     time.Time // zero: ten years back
	EndDate       time.Time // zero: now
	DaysPerWindow int       // zero: 30
	MaxTickets    int       // zero: unlimited

	IncludeConversations bool
	IncludeAttachments   bool
	IncludeKB            bool

	RawDataDir string
	ChunkSize  int

	// OnProgress receives step updates for job-level progress logging.
	OnProgress func(step, totalSteps int, message string, percentage float64)
}

// Report summarizes a finished run.
type Report struct {
	Windows          int  `json:"windows"`
	WindowsSkipped   int  `json:"windows_skipped"`
	TicketsIngested  int  `json:"tickets_ingested"`
	ArticlesIngested int  `json:"articles_ingested"`
	Summarized       int  `json:"summarized"`
	VectorsUpserted  int  `json:"vectors_upserted"`
	Cancelled        bool `json:"cancelled"`
}

// Engine runs the ingestion pipeline for one tenant.
type Engine struct {
	provider       platform.Provider
	store          storage.Store
	summarizer     *summarize.Summarizer
	vectors        vectorstore.VectorStore
	embedder       Embedder
	embeddingModel string
	pacer          *pacer
	log            zerolog.Logger
}

// New creates an engine. summarizer, vectors, and embedder may be nil, which
// skips the summary and vector stages. delay may be nil when the provider
// has no adjustable pacing.
func New(provider platform.Provider, store storage.Store, summarizer *summarize.Summarizer,
	vectors vectorstore.VectorStore, embedder Embedder, embeddingModel string, delay DelayTarget) *Engine {
	return &Engine{
		provider:       provider,
		store:          store,
		summarizer:     summarizer,
		vectors:        vectors,
		embedder:       embedder,
		embeddingModel: embeddingModel,
		pacer:          newPacer(delay, 0),
		log:            logging.WithComponent("ingest"),
	}
}

// RunImmediate is the synchronous path. It refuses large pulls: anything
// over MaxImmediateTickets belongs on the asynchronous job path.
func (e *Engine) RunImmediate(ctx context.Context, opts Options) (*Report, error) {
	if opts.MaxTickets <= 0 || opts.MaxTickets > MaxImmediateTickets {
		return nil, apperr.New(apperr.KindValidation, "ingest",
			fmt.Sprintf("immediate ingestion allows at most %d tickets; use the job API for larger pulls", MaxImmediateTickets))
	}
	return e.Run(ctx, opts, nopControl{})
}

// Run executes the full pipeline under the given control. On cancellation
// the latest progress is persisted and the partial report is returned with
// Cancelled set.
func (e *Engine) Run(ctx context.Context, opts Options, ctrl Control) (*Report, error) {
	if ctrl == nil {
		ctrl = nopControl{}
	}
	log := logging.WithTenant(e.log, opts.TenantID, opts.Platform)

	progress, err := LoadProgress(opts.RawDataDir, opts.TenantID, opts.Platform)
	if err != nil {
		return nil, err
	}

	windows := ComputeWindows(opts.StartDate, opts.EndDate, opts.DaysPerWindow)
	report := &Report{Windows: len(windows)}

	tickets := newChunkWriter(
		filepath.Join(opts.RawDataDir, opts.TenantID, "tickets"), "tickets", opts.ChunkSize, log)

	totalSteps := len(windows) + 1 // +1 for the KB pass
	step := 0
	notify := func(msg string) {
		step++
		if opts.OnProgress != nil {
			pct := float64(step) / float64(totalSteps) * 100
			opts.OnProgress(step, totalSteps, msg, pct)
		}
	}

	for _, w := range windows {
		if err := ctrl.Checkpoint(ctx); err != nil {
			return e.finish(report, tickets, progress, err)
		}
		if progress.IsComplete(w.RangeID()) {
			report.WindowsSkipped++
			notify("skipped " + w.RangeID())
			continue
		}

		count, newObjects, werr := e.ingestWindow(ctx, opts, w, tickets, ctrl)
		report.TicketsIngested += count

		partial := werr != nil || (opts.MaxTickets > 0 && report.TicketsIngested >= opts.MaxTickets)
		if perr := progress.MarkRange(w.RangeID(), count, partial); perr != nil {
			log.Error().Err(perr).Str("range", w.RangeID()).Msg("persist progress failed")
		}
		if werr != nil {
			return e.finish(report, tickets, progress, werr)
		}

		if serr := e.summarizeAndIndex(ctx, opts, newObjects, report); serr != nil {
			// Summaries are repairable later via sync-summaries; the window
			// itself is ingested, so log and continue.
			log.Warn().Err(serr).Str("range", w.RangeID()).Msg("summary stage failed")
		}
		e.pacer.onWindowSuccess()
		notify("ingested " + w.RangeID())

		if opts.MaxTickets > 0 && report.TicketsIngested >= opts.MaxTickets {
			log.Info().Int("tickets", report.TicketsIngested).Msg("max tickets reached")
			break
		}
	}

	if opts.IncludeKB && !progress.RawPasses["kb"] {
		if err := ctrl.Checkpoint(ctx); err != nil {
			return e.finish(report, tickets, progress, err)
		}
		n, kerr := e.ingestArticles(ctx, opts, log)
		report.ArticlesIngested = n
		if kerr != nil {
			return e.finish(report, tickets, progress, kerr)
		}
		if perr := progress.MarkRawPass("kb"); perr != nil {
			log.Error().Err(perr).Msg("persist progress failed")
		}
	}
	notify("knowledge base done")

	if err := tickets.Flush(); err != nil {
		return report, err
	}
	log.Info().
		Int("tickets", report.TicketsIngested).
		Int("articles", report.ArticlesIngested).
		Int("windows_skipped", report.WindowsSkipped).
		Msg("ingestion complete")
	return report, nil
}

// finish persists buffered state on the way out of a cancelled or failed run.
func (e *Engine) finish(report *Report, tickets *chunkWriter, progress *Progress, cause error) (*Report, error) {
	_ = tickets.Flush()
	_ = progress.Save()
	if errors.Is(cause, ErrCancelled) {
		report.Cancelled = true
		return report, cause
	}
	return report, cause
}

// ingestWindow pages through one window, enriching and persisting each
// ticket. Returns the ticket count and the objects needing summaries.
func (e *Engine) ingestWindow(ctx context.Context, opts Options, w Window,
	tickets *chunkWriter, ctrl Control) (int, []*types.IntegratedObject, error) {

	var newObjects []*types.IntegratedObject
	count := 0

	for page := 1; ; page++ {
		if err := ctrl.Checkpoint(ctx); err != nil {
			return count, newObjects, err
		}

		batch, err := e.listPage(ctx, platform.ListOptions{
			Page:         page,
			PerPage:      PageSize,
			UpdatedSince: w.Start,
			EndDate:      w.End,
		})
		if err != nil {
			return count, newObjects, err
		}

		for i := range batch {
			t := &batch[i]
			if err := e.enrich(ctx, t, opts); err != nil {
				return count, newObjects, err
			}
			if err := tickets.Append(t); err != nil {
				return count, newObjects, err
			}

			objs, err := e.persistTicket(ctx, opts, t)
			if err != nil {
				return count, newObjects, err
			}
			newObjects = append(newObjects, objs...)
			count++

			if opts.MaxTickets > 0 && count >= opts.MaxTickets {
				return count, newObjects, nil
			}
		}

		if len(batch) < PageSize {
			return count, newObjects, nil
		}
	}
}

// listPage fetches one page, slowing the pacer and retrying when the adapter
// reports exhausted rate limits.
func (e *Engine) listPage(ctx context.Context, opts platform.ListOptions) ([]platform.Ticket, error) {
	var lastErr error
	for attempt := 0; attempt < pageRetries; attempt++ {
		batch, err := e.provider.ListTicketsUpdatedSince(ctx, opts)
		if err == nil {
			return batch, nil
		}
		lastErr = err
		if !errors.Is(err, platform.ErrRateLimited) {
			break
		}
		e.pacer.on429()
		e.log.Warn().Err(err).Int("page", opts.Page).Msg("rate limited, slowed pacing")
	}
	return nil, apperr.Wrap(apperr.KindExternalService, "ingest", "list tickets", lastErr)
}

// enrich fills conversations and attachments, and re-fetches the full ticket
// when listing left required fields empty.
func (e *Engine) enrich(ctx context.Context, t *platform.Ticket, opts Options) error {
	if t.Description == "" {
		full, err := e.provider.GetTicket(ctx, t.OriginalID)
		if err != nil && !errors.Is(err, platform.ErrNotFound) {
			return fmt.Errorf("fetch ticket detail %s: %w", t.OriginalID, err)
		}
		if full != nil {
			full.Conversations = t.Conversations
			*t = *full
		}
	}

	if opts.IncludeConversations && len(t.Conversations) == 0 {
		convs, err := e.provider.ListConversations(ctx, t.OriginalID)
		if err != nil {
			return fmt.Errorf("fetch conversations for %s: %w", t.OriginalID, err)
		}
		t.Conversations = convs
	}

	if opts.IncludeAttachments {
		direct, err := e.provider.ListTicketAttachments(ctx, t.OriginalID)
		if err != nil {
			return fmt.Errorf("fetch attachments for %s: %w", t.OriginalID, err)
		}
		t.Attachments = unionAttachments(direct, t.Conversations)
	}
	return nil
}

// unionAttachments merges ticket-level attachments with all conversation
// attachments, deduplicated by original id.
func unionAttachments(direct []platform.Attachment, convs []platform.Conversation) []platform.Attachment {
	seen := make(map[string]bool, len(direct))
	out := make([]platform.Attachment, 0, len(direct))
	add := func(a platform.Attachment) {
		if a.OriginalID == "" || seen[a.OriginalID] {
			return
		}
		seen[a.OriginalID] = true
		out = append(out, a)
	}
	for _, a := range direct {
		add(a)
	}
	for _, c := range convs {
		for _, a := range c.Attachments {
			add(a)
		}
	}
	return out
}

// persistTicket upserts the ticket and its child records.
func (e *Engine) persistTicket(ctx context.Context, opts Options, t *platform.Ticket) ([]*types.IntegratedObject, error) {
	objs := []*types.IntegratedObject{ticketObject(opts.TenantID, opts.Platform, t)}
	for i := range t.Conversations {
		objs = append(objs, conversationObject(opts.TenantID, opts.Platform, &t.Conversations[i]))
	}
	for i := range t.Attachments {
		objs = append(objs, attachmentObject(opts.TenantID, opts.Platform, &t.Attachments[i]))
	}

	for _, obj := range objs {
		if err := e.store.UpsertIntegratedObject(ctx, obj); err != nil {
			return nil, fmt.Errorf("upsert %s %s: %w", obj.ObjectType, obj.OriginalID, err)
		}
	}
	return objs, nil
}

// ingestArticles pulls the knowledge base, chunking raw pages and upserting
// each article.
func (e *Engine) ingestArticles(ctx context.Context, opts Options, log zerolog.Logger) (int, error) {
	kb := newChunkWriter(
		filepath.Join(opts.RawDataDir, opts.TenantID, "kb"), "kb", opts.ChunkSize, log)

	count := 0
	for page := 1; ; page++ {
		batch, err := e.provider.ListArticles(ctx, platform.ListOptions{Page: page, PerPage: PageSize})
		if err != nil {
			return count, apperr.Wrap(apperr.KindExternalService, "ingest", "list articles", err)
		}

		for i := range batch {
			a := &batch[i]
			if err := kb.Append(a); err != nil {
				return count, err
			}
			obj := articleObject(opts.TenantID, opts.Platform, a)
			if err := e.store.UpsertIntegratedObject(ctx, obj); err != nil {
				return count, fmt.Errorf("upsert article %s: %w", a.OriginalID, err)
			}
			if err := e.indexObject(ctx, obj, obj.IntegratedContent); err != nil {
				log.Warn().Err(err).Str("article", a.OriginalID).Msg("vector upsert failed")
			}
			count++
		}
		if len(batch) < PageSize {
			break
		}
	}
	return count, kb.Flush()
}

// summarizeAndIndex generates summaries for this window's new tickets, then
// upserts vectors for every object whose summary changed.
func (e *Engine) summarizeAndIndex(ctx context.Context, opts Options, objs []*types.IntegratedObject, report *Report) error {
	if e.summarizer == nil {
		return nil
	}

	var inputs []summarize.Input
	byID := make(map[string]*types.IntegratedObject)
	for _, obj := range objs {
		if obj.ObjectType != types.ObjectTypeTicket {
			continue
		}
		byID[obj.OriginalID] = obj
		inputs = append(inputs, summarize.Input{
			RecordID: obj.OriginalID,
			Subject:  obj.Metadata.Subject,
			Body:     obj.IntegratedContent,
		})
	}
	if len(inputs) == 0 {
		return nil
	}

	results, err := e.summarizer.SummarizeBatch(ctx, inputs, 0, nil)
	if err != nil {
		return err
	}

	var firstErr error
	for _, res := range results {
		if res.Err != nil || res.Summary == nil {
			if firstErr == nil {
				firstErr = res.Err
			}
			continue
		}
		obj := byID[res.RecordID]
		if obj.Summary == res.Summary.Raw {
			continue
		}
		obj.Summary = res.Summary.Raw
		report.Summarized++

		if err := e.store.UpsertIntegratedObject(ctx, obj); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := e.indexObject(ctx, obj, obj.Summary); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		report.VectorsUpserted++
	}
	return firstErr
}

// indexObject embeds text and upserts the object's vector point.
func (e *Engine) indexObject(ctx context.Context, obj *types.IntegratedObject, text string) error {
	if e.vectors == nil || e.embedder == nil || text == "" {
		return nil
	}

	vecs, err := e.embedder.Embed(ctx, e.embeddingModel, []string{text})
	if err != nil {
		return err
	}
	if len(vecs) == 0 {
		return fmt.Errorf("embed %s: provider returned no vector", obj.OriginalID)
	}
	point := vectorstore.NewPoint(vecs[0], vectorstore.Payload{
		TenantID:   obj.TenantID,
		Platform:   obj.Platform,
		DocType:    docTypeOf(obj.ObjectType),
		OriginalID: obj.OriginalID,
		ObjectType: string(obj.ObjectType),
		Summary:    obj.Summary,
	})
	return e.vectors.Upsert(ctx, []vectorstore.Point{point})
}

func docTypeOf(t types.ObjectType) string {
	if t == types.ObjectTypeArticle {
		return "article"
	}
	return "ticket"
}
