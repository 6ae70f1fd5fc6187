package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pubsubv2 "cloud.google.com/go/pubsub/v2"
	gcstorage "cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/siftcrawl/siftcrawl/internal/api"
	"github.com/siftcrawl/siftcrawl/internal/config"
	"github.com/siftcrawl/siftcrawl/internal/crawler"
	"github.com/siftcrawl/siftcrawl/internal/fetcher"
	collyfetcher "github.com/siftcrawl/siftcrawl/internal/fetcher/colly"
	"github.com/siftcrawl/siftcrawl/internal/fetcher/headless"
	"github.com/siftcrawl/siftcrawl/internal/logging"
	"github.com/siftcrawl/siftcrawl/internal/metrics"
	"github.com/siftcrawl/siftcrawl/internal/oracle/ollama"
	"github.com/siftcrawl/siftcrawl/internal/progress"
	"github.com/siftcrawl/siftcrawl/internal/progress/sinks"
	memorypublisher "github.com/siftcrawl/siftcrawl/internal/publisher/memory"
	pubsubpub "github.com/siftcrawl/siftcrawl/internal/publisher/pubsub"
	"github.com/siftcrawl/siftcrawl/internal/report"
	"github.com/siftcrawl/siftcrawl/internal/storage/gcs"
	"github.com/siftcrawl/siftcrawl/internal/storage/local"
	pgstore "github.com/siftcrawl/siftcrawl/internal/store/postgres"
)

type crawlFlags struct {
	url       string
	objective string
	maxPages  int
	workers   int
}

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	flags := &crawlFlags{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one objective-driven crawl session",
		Long: `Runs a full crawl session against one website: objective analysis,
reconnaissance on a fraction of the page budget, structure analysis, and a
deep crawl of the URLs ranked most promising. Results are written as JSON
and Markdown reports.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.url, "url", "", "start URL (required)")
	cmd.Flags().StringVar(&flags.objective, "objective", "", "what to find, in plain language (required)")
	cmd.Flags().IntVar(&flags.maxPages, "max-pages", 0, "page budget override")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "worker count override")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("objective")

	return cmd
}

func runCrawl(ctx context.Context, flags *crawlFlags) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if flags.maxPages > 0 {
		cfg.Crawl.MaxPages = flags.maxPages
	}
	if flags.workers > 0 {
		cfg.Crawl.Workers = flags.workers
	}
	thresholds, err := cfg.Thresholds()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	oracle := ollama.New(cfg.Oracle.BaseURL, cfg.Oracle.Model, logger,
		ollama.WithTimeout(cfg.OracleTimeout()))

	pageFetcher, closeFetcher, err := buildFetcher(cfg, logger)
	if err != nil {
		return err
	}
	defer closeFetcher()

	statusSink := sinks.NewStatusSink()
	hubSinks := []progress.Sink{sinks.NewLogSink(logger), statusSink}
	if promSink, err := sinks.NewPrometheusSink(nil); err != nil {
		logger.Warn("progress metrics disabled", zap.Error(err))
	} else {
		hubSinks = append(hubSinks, promSink)
	}
	hub := progress.NewHub(progress.Config{Logger: logger}, hubSinks...)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
	}()

	if cfg.Server.Enabled {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           api.NewServer(statusSink, logger).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("status server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	snapshots, err := buildSnapshotStore(ctx, cfg)
	if err != nil {
		return err
	}

	publisher, topic, closePublisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePublisher()

	orchestrator, err := crawler.NewOrchestrator(crawler.Options{
		Objective:         flags.objective,
		StartURL:          flags.url,
		TotalBudget:       cfg.Crawl.MaxPages,
		Workers:           cfg.Crawl.Workers,
		Thresholds:        thresholds,
		MaxOracleInflight: int64(cfg.Crawl.MaxOracleInflight),
		SnapshotPrefix:    cfg.Storage.Prefix,
		PublishTopic:      topic,
	}, crawler.Deps{
		Fetcher:   pageFetcher,
		Oracle:    oracle,
		Snapshots: snapshots,
		Publisher: publisher,
		Progress:  hub,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	result, runErr := orchestrator.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run crawl: %w", runErr)
	}

	if err := writeReports(cfg, thresholds, result, logger); err != nil {
		return err
	}
	if err := persistResult(ctx, cfg, result, logger); err != nil {
		return err
	}

	logger.Info("crawl complete",
		zap.Int("pages", len(result.Pages)),
		zap.Int("high_value", result.HighValueCount(thresholds.HighValue)),
	)
	return nil
}

func buildFetcher(cfg config.Config, logger *zap.Logger) (crawler.Fetcher, func(), error) {
	static := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Fetch.UserAgent,
		RespectRobots: cfg.Fetch.RespectRobots,
		Timeout:       cfg.FetchTimeout(),
	})
	if !cfg.Headless.Enabled {
		return static, func() {}, nil
	}

	browser, err := headless.NewChromedp(headless.Config{
		MaxParallel:       cfg.Headless.MaxParallel,
		UserAgent:         cfg.Fetch.UserAgent,
		NavigationTimeout: cfg.NavTimeout(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init headless fetcher: %w", err)
	}
	detector := fetcher.NewHeuristicDetector(cfg.Headless.MinTextChars, nil)
	return fetcher.NewEscalating(static, browser, detector, logger), browser.Close, nil
}

func buildSnapshotStore(ctx context.Context, cfg config.Config) (crawler.SnapshotStore, error) {
	switch cfg.Storage.Backend {
	case "":
		return nil, nil
	case "local":
		store, err := local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local snapshot store: %w", err)
		}
		return store, nil
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs snapshot store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (crawler.Publisher, string, func(), error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		return memorypublisher.New(), "crawl-events", func() {}, nil
	}
	client, err := pubsubv2.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, "", nil, fmt.Errorf("init pubsub client: %w", err)
	}
	publisher := pubsubpub.New(client.Publisher(cfg.PubSub.TopicName))
	closer := func() {
		publisher.Stop()
		_ = client.Close()
	}
	return publisher, cfg.PubSub.TopicName, closer, nil
}

func writeReports(cfg config.Config, thresholds crawler.Thresholds, result crawler.Result, logger *zap.Logger) error {
	if cfg.Output.JSONPath != "" {
		f, err := os.Create(cfg.Output.JSONPath)
		if err != nil {
			return fmt.Errorf("create json report: %w", err)
		}
		_, werr := report.NewJSONWriter(f, report.WithPrettyPrint()).Write(result)
		cerr := f.Close()
		if werr != nil {
			return fmt.Errorf("write json report: %w", werr)
		}
		if cerr != nil {
			return fmt.Errorf("close json report: %w", cerr)
		}
		logger.Info("json report written", zap.String("path", cfg.Output.JSONPath))
	}

	if cfg.Output.MarkdownPath != "" {
		f, err := os.Create(cfg.Output.MarkdownPath)
		if err != nil {
			return fmt.Errorf("create markdown report: %w", err)
		}
		_, werr := report.NewMarkdownWriter(f, thresholds).Write(result)
		cerr := f.Close()
		if werr != nil {
			return fmt.Errorf("write markdown report: %w", werr)
		}
		if cerr != nil {
			return fmt.Errorf("close markdown report: %w", cerr)
		}
		logger.Info("markdown report written", zap.String("path", cfg.Output.MarkdownPath))
	}
	return nil
}

func persistResult(ctx context.Context, cfg config.Config, result crawler.Result, logger *zap.Logger) error {
	if cfg.DB.DSN == "" {
		return nil
	}
	store, err := pgstore.NewResultStore(ctx, pgstore.ResultStoreConfig{
		DSN:           cfg.DB.DSN,
		SessionsTable: cfg.DB.SessionsTable,
		PagesTable:    cfg.DB.PagesTable,
		MaxConns:      int32(cfg.DB.MaxConns),
	})
	if err != nil {
		return fmt.Errorf("init result store: %w", err)
	}
	defer store.Close()
	if err := store.StoreResult(ctx, result); err != nil {
		return fmt.Errorf("persist result: %w", err)
	}
	logger.Info("result persisted", zap.String("session_id", result.SessionID))
	return nil
}
