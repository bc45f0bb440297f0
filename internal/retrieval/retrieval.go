// Package retrieval implements the read-side orchestration: the init flow
// that assembles a ticket view (live fetch with store fallback, summary, and
// similar-document searches in parallel), the query flow (embedding, split
// vector searches, context building, and an intent-shaped LLM answer), and
// the reply flow grounded in a cached init context.
package retrieval

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/wedosoft/project-a/internal/apperr"
	"github.com/wedosoft/project-a/internal/llm"
	"github.com/wedosoft/project-a/internal/logging"
	"github.com/wedosoft/project-a/internal/platform"
	"github.com/wedosoft/project-a/internal/storage"
	"github.com/wedosoft/project-a/internal/summarize"
	"github.com/wedosoft/project-a/internal/vectorstore"
)

const (
	// LiveFetchTimeout bounds the upstream fetch in the init flow before the
	// orchestrator falls back to the store.
	LiveFetchTimeout = 3 * time.Second

	// MaxInitConversations and InitConversationRunes bound the conversation
	// slice woven into the init content string.
	MaxInitConversations  = 15
	InitConversationRunes = 500

	// DefaultTopK is the similar-document count when the caller leaves it
	// unset.
	DefaultTopK = 5

	// ContextTTL is how long an init context stays addressable by /reply.
	ContextTTL = 30 * time.Minute
)

// ErrContextNotFound is returned by Reply for unknown or expired context ids.
var ErrContextNotFound = errors.New("init context not found or expired")

// ErrTicketNotFound is returned when a ticket exists neither upstream nor in
// the store.
var ErrTicketNotFound = errors.New("ticket not found")

// LLM is the slice of the router the orchestrator needs.
type LLM interface {
	Generate(ctx context.Context, req llm.Request) (*llm.Response, error)
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// Scope identifies whose data a call touches and how to reach the upstream.
type Scope struct {
	TenantID    string
	Platform    string
	Credentials platform.Credentials
}

func (s Scope) validate() error {
	if s.TenantID == "" || s.Platform == "" {
		return apperr.New(apperr.KindValidation, "retrieval", "tenant id and platform required")
	}
	return nil
}

// Orchestrator wires the upstream registry, the relational store, the vector
// store, the LLM router, and the summarizer into the retrieval flows.
type Orchestrator struct {
	registry       *platform.Registry
	store          storage.Store
	vectors        vectorstore.VectorStore
	llm            LLM
	summarizer     *summarize.Summarizer
	embeddingModel string

	builder     *ContextBuilder
	contexts    *gocache.Cache
	liveTimeout time.Duration
	log         zerolog.Logger
}

// New creates an orchestrator with default limits.
func New(registry *platform.Registry, store storage.Store, vectors vectorstore.VectorStore,
	router LLM, summarizer *summarize.Summarizer, embeddingModel string) *Orchestrator {
	return &Orchestrator{
		registry:       registry,
		store:          store,
		vectors:        vectors,
		llm:            router,
		summarizer:     summarizer,
		embeddingModel: embeddingModel,
		builder:        NewContextBuilder(nil, 0, 0),
		contexts:       gocache.New(ContextTTL, 10*time.Minute),
		liveTimeout:    LiveFetchTimeout,
		log:            logging.WithComponent("retrieval"),
	}
}

// initContext is what /reply needs from a prior /init.
type initContext struct {
	Scope   Scope
	Content string
	Summary string
}

func (o *Orchestrator) storeContext(scope Scope, content, summary string) string {
	id := uuid.NewString()
	o.contexts.Set(id, &initContext{Scope: scope, Content: content, Summary: summary}, gocache.DefaultExpiration)
	return id
}

func (o *Orchestrator) loadContext(id string) (*initContext, bool) {
	v, ok := o.contexts.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*initContext), true
}

// embedQuery returns the embedding of one text.
func (o *Orchestrator) embedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.llm.Embed(ctx, o.embeddingModel, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, apperr.New(apperr.KindLLM, "retrieval", "embedding returned no vector")
	}
	return vecs[0], nil
}
