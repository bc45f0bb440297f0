package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wedosoft/project-a/internal/config"
	"github.com/wedosoft/project-a/internal/ingest"
	"github.com/wedosoft/project-a/internal/jobs"
	"github.com/wedosoft/project-a/internal/llm"
	"github.com/wedosoft/project-a/internal/logging"
	"github.com/wedosoft/project-a/internal/platform"
	"github.com/wedosoft/project-a/internal/platform/freshdesk"
	"github.com/wedosoft/project-a/internal/retrieval"
	"github.com/wedosoft/project-a/internal/server"
	"github.com/wedosoft/project-a/internal/storage/factory"
	"github.com/wedosoft/project-a/internal/summarize"
	"github.com/wedosoft/project-a/internal/tenant"
	"github.com/wedosoft/project-a/internal/vectorstore/qdrant"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	return cmd
}

// buildRouter assembles the LLM router from whichever provider keys are
// configured. Anthropic gets the higher base weight when both are present.
func buildRouter(cfg config.LLM) (*llm.Router, error) {
	router := llm.NewRouter(
		llm.DefaultPlan(cfg.LightModel, cfg.HeavyModel, cfg.GlobalTimeout),
		cfg.GlobalTimeout,
		llm.NewEmbedCache(cfg.EmbeddingTTL),
	)
	providers := 0
	if cfg.AnthropicAPIKey != "" {
		p, err := llm.NewAnthropicProvider(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, fmt.Errorf("anthropic provider: %w", err)
		}
		router.Register(p, llm.WithBaseWeight(1.0))
		providers++
	}
	if cfg.OpenAIAPIKey != "" {
		p, err := llm.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel)
		if err != nil {
			return nil, fmt.Errorf("openai provider: %w", err)
		}
		router.Register(p, llm.WithBaseWeight(0.8))
		providers++
	}
	if providers == 0 {
		return nil, errors.New("no LLM provider configured; set SUPPORTD_LLM_ANTHROPIC_API_KEY or SUPPORTD_LLM_OPENAI_API_KEY")
	}
	return router, nil
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log := logging.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := factory.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	vectors := qdrant.New(cfg.Vector.URL, cfg.Vector.APIKey, cfg.Vector.Collection, cfg.Vector.VectorSize)
	if err := vectors.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure vector collection: %w", err)
	}

	router, err := buildRouter(cfg.LLM)
	if err != nil {
		return err
	}

	summarizer := summarize.New(router, llm.NewSummaryCache(cfg.LLM.SummaryTTL))

	registry := platform.NewRegistry()
	registry.Register("freshdesk", freshdesk.New)

	crypto, err := tenant.LoadOrCreateCrypto(ctx, store)
	if err != nil {
		return fmt.Errorf("load master key: %w", err)
	}

	runner := ingest.NewTenantRunner(registry, store, summarizer, vectors, router,
		cfg.LLM.EmbeddingModel, crypto,
		platform.Credentials{Domain: cfg.Upstream.Domain, APIKey: cfg.Upstream.APIKey})

	manager := jobs.NewManager(runner, cfg.Ingest.MaxConcurrentJobs, cfg.Ingest.Cooldown)
	manager.StartSweeper(ctx)

	orchestrator := retrieval.New(registry, store, vectors, router, summarizer, cfg.LLM.EmbeddingModel)

	srv := server.New(store, vectors, orchestrator, runner, manager,
		cfg.Ingest, cfg.RateLimit, cfg.Vector.BackupDir)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(cfg.Server.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("database", cfg.Database.Type).Msg("server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("forced shutdown")
	}

	// Ask active jobs to stop at their next checkpoint, then wait for the
	// workers to unwind.
	for _, status := range []jobs.Status{jobs.StatusRunning, jobs.StatusPaused} {
		for _, job := range manager.ListJobs("", status, 0, 0) {
			_ = manager.CancelJob(job.ID)
		}
	}
	manager.Wait()
	return nil
}
