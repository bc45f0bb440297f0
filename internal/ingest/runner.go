package ingest

import (
	"context"

	"github.com/wedosoft/project-a/internal/platform"
	"github.com/wedosoft/project-a/internal/storage"
	"github.com/wedosoft/project-a/internal/summarize"
	"github.com/wedosoft/project-a/internal/tenant"
	"github.com/wedosoft/project-a/internal/vectorstore"
)

// TenantRunner builds a per-tenant engine for each run. Upstream credentials
// are resolved from the tenant's stored settings, falling back to the
// process-wide configuration; the provider instance therefore never outlives
// one run.
type TenantRunner struct {
	registry       *platform.Registry
	store          storage.Store
	summarizer     *summarize.Summarizer
	vectors        vectorstore.VectorStore
	embedder       Embedder
	embeddingModel string
	crypto         *tenant.Crypto
	fallback       platform.Credentials
}

// NewTenantRunner creates a runner. crypto may be nil when no encrypted
// settings exist; summarizer, vectors, and embedder may be nil as for New.
func NewTenantRunner(registry *platform.Registry, store storage.Store,
	summarizer *summarize.Summarizer, vectors vectorstore.VectorStore,
	embedder Embedder, embeddingModel string, crypto *tenant.Crypto,
	fallback platform.Credentials) *TenantRunner {
	return &TenantRunner{
		registry:       registry,
		store:          store,
		summarizer:     summarizer,
		vectors:        vectors,
		embedder:       embedder,
		embeddingModel: embeddingModel,
		crypto:         crypto,
		fallback:       fallback,
	}
}

// credentials resolves the upstream access data for one tenant. Setting keys
// are per platform: {platform}_domain and {platform}_api_key.
func (r *TenantRunner) credentials(ctx context.Context, tenantID, platformName string) (platform.Credentials, error) {
	settings := tenant.NewSettings(r.store, r.crypto, tenantID)
	domain, err := settings.GetDefault(ctx, platformName+"_domain", r.fallback.Domain)
	if err != nil {
		return platform.Credentials{}, err
	}
	apiKey, err := settings.GetDefault(ctx, platformName+"_api_key", r.fallback.APIKey)
	if err != nil {
		return platform.Credentials{}, err
	}
	return platform.Credentials{Domain: domain, APIKey: apiKey}, nil
}

func (r *TenantRunner) engine(ctx context.Context, tenantID, platformName string) (*Engine, error) {
	creds, err := r.credentials(ctx, tenantID, platformName)
	if err != nil {
		return nil, err
	}
	provider, err := r.registry.New(platformName, creds)
	if err != nil {
		return nil, err
	}
	delay, _ := provider.(DelayTarget)
	return New(provider, r.store, r.summarizer, r.vectors, r.embedder, r.embeddingModel, delay), nil
}

// Run executes one asynchronous ingestion; the job manager calls this.
func (r *TenantRunner) Run(ctx context.Context, opts Options, ctrl Control) (*Report, error) {
	engine, err := r.engine(ctx, opts.TenantID, opts.Platform)
	if err != nil {
		return nil, err
	}
	return engine.Run(ctx, opts, ctrl)
}

// RunImmediate executes one bounded synchronous pull.
func (r *TenantRunner) RunImmediate(ctx context.Context, opts Options) (*Report, error) {
	engine, err := r.engine(ctx, opts.TenantID, opts.Platform)
	if err != nil {
		return nil, err
	}
	return engine.RunImmediate(ctx, opts)
}

// SyncSummaries re-indexes stored summaries; no upstream access needed.
func (r *TenantRunner) SyncSummaries(ctx context.Context, tenantID, platformName string) (int, error) {
	engine := New(nil, r.store, r.summarizer, r.vectors, r.embedder, r.embeddingModel, nil)
	return engine.SyncSummaries(ctx, tenantID, platformName)
}
