package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wedosoft/project-a/internal/config"
	"github.com/wedosoft/project-a/internal/ingest"
	"github.com/wedosoft/project-a/internal/llm"
	"github.com/wedosoft/project-a/internal/logging"
	"github.com/wedosoft/project-a/internal/platform"
	"github.com/wedosoft/project-a/internal/platform/freshdesk"
	"github.com/wedosoft/project-a/internal/storage/factory"
	"github.com/wedosoft/project-a/internal/summarize"
	"github.com/wedosoft/project-a/internal/tenant"
	"github.com/wedosoft/project-a/internal/vectorstore/qdrant"
)

type ingestFlags struct {
	configPath   string
	tenantID     string
	platformName string
	startDate    string
	endDate      string
	maxTickets   int
	skipKB       bool
}

func newIngestCmd() *cobra.Command {
	var flags ingestFlags
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion for a tenant without the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), flags)
		},
	}
	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVar(&flags.tenantID, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&flags.platformName, "platform", tenant.DefaultPlatform, "source platform")
	cmd.Flags().StringVar(&flags.startDate, "start", "", "start date YYYY-MM-DD (default: full history)")
	cmd.Flags().StringVar(&flags.endDate, "end", "", "end date YYYY-MM-DD (default: today)")
	cmd.Flags().IntVar(&flags.maxTickets, "max-tickets", 0, "stop after this many tickets (0 = unlimited)")
	cmd.Flags().BoolVar(&flags.skipKB, "skip-kb", false, "skip the knowledge base pass")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func runIngest(parent context.Context, flags ingestFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log := logging.WithComponent("ingest-cli")

	if err := tenant.ValidateTenantID(flags.tenantID); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
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

	var startDate, endDate time.Time
	if flags.startDate != "" {
		if startDate, err = time.Parse("2006-01-02", flags.startDate); err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
	}
	if flags.endDate != "" {
		if endDate, err = time.Parse("2006-01-02", flags.endDate); err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}
	}

	opts := ingest.Options{
		TenantID:             flags.tenantID,
		Platform:             flags.platformName,
		StartDate:            startDate,
		EndDate:              endDate,
		DaysPerWindow:        cfg.Ingest.DaysPerChunk,
		MaxTickets:           flags.maxTickets,
		IncludeConversations: true,
		IncludeAttachments:   true,
		IncludeKB:            !flags.skipKB,
		RawDataDir:           cfg.Ingest.RawDataDir,
		ChunkSize:            cfg.Ingest.ChunkSize,
		OnProgress: func(step, totalSteps int, message string, percentage float64) {
			log.Info().Int("step", step).Int("total_steps", totalSteps).
				Float64("pct", percentage).Msg(message)
		},
	}

	report, err := runner.Run(ctx, opts, ingest.NewChannelControl())
	if err != nil {
		return err
	}
	log.Info().Int("tickets", report.TicketsIngested).Int("articles", report.ArticlesIngested).
		Msg("ingestion complete")
	return nil
}
