// Command preloader warms the document caches for a set of catalog keys and
// reports what it loaded. Keys come from arguments or stdin (one per line).
//
// While the preload runs, /metrics and /healthz are served on the configured
// address so batch jobs can be scraped.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"bibdata/application/ports"
	"bibdata/application/services"
	"bibdata/infrastructure/acl/olclient"
	"bibdata/infrastructure/config"
	"bibdata/infrastructure/observability"
	"bibdata/infrastructure/persistence/dynamodb"
	"bibdata/infrastructure/persistence/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, *configPath, logger); err != nil {
		logger.Fatal("Preloader failed", zap.Error(err))
	}
}

func run(cfg *config.Config, configPath string, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Log config changes during long runs; the running provider keeps the
	// chunk size it was built with.
	watcher, err := config.NewWatcher(configPath, cfg, logger)
	if err != nil {
		return err
	}
	defer watcher.Stop()
	watcher.OnChange(func(next *config.Config) {
		logger.Info("Configuration changed on disk",
			zap.Int("chunk_size", next.ChunkSize),
			zap.String("provider", next.Provider))
	})

	tracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName: "bibdata-preloader",
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRate:  cfg.Tracing.SampleRate,
		Development: cfg.Development,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			logger.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}()

	metrics := observability.NewCollector("bibdata")
	collab, cleanup, err := buildCollaborators(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	provider, err := services.NewDataProvider(
		services.ProviderKind(cfg.Provider), collab, cfg.ChunkSize, metrics, logger)
	if err != nil {
		return err
	}

	server := startMetricsServer(cfg.MetricsAddr, metrics, logger)
	defer server.Shutdown(context.Background())

	keys, err := gatherKeys(flag.Args())
	if err != nil {
		return err
	}
	logger.Info("Preloading documents", zap.Int("keys", len(keys)))

	if err := provider.PreloadDocuments(ctx, keys); err != nil {
		return err
	}

	if cached, ok := provider.(*services.CachedProvider); ok {
		stats := cached.Stats()
		batches := cached.BatcherMetrics()
		logger.Info("Preload complete",
			zap.Int("documents", stats.Documents),
			zap.Int("metadata_entries", stats.MetadataEntries),
			zap.Int("redirect_targets", stats.RedirectTargets),
			zap.Int("indexed_works", stats.IndexedWorks),
			zap.Int64("backing_batches", batches.TotalBatches),
			zap.Float64("avg_batch_size", batches.AvgBatchSize))
	} else {
		logger.Info("Preload complete (uncached provider, nothing retained)")
	}
	return nil
}

// buildCollaborators wires the backing stores for the configured variant
func buildCollaborators(ctx context.Context, cfg *config.Config, logger *zap.Logger) (services.Collaborators, func(), error) {
	var collab services.Collaborators
	cleanup := func() {}

	apiClient := olclient.NewClient(olclient.DefaultConfig(cfg.Catalog.Host), logger)
	collab.Catalog = apiClient

	if services.ProviderKind(cfg.Provider) == services.ProviderExternal {
		// The external variant needs no direct store access beyond
		// metadata, which it reads from the archive database when
		// configured.
		if cfg.Postgres.ArchiveDSN != "" {
			archive, err := postgres.Connect(ctx, cfg.Postgres.ArchiveDSN)
			if err != nil {
				return collab, cleanup, err
			}
			cleanup = archive.Close
			collab.Metadata = postgres.NewStore(archive, archive, logger)
		}
		return collab, cleanup, nil
	}

	catalogPool, err := postgres.Connect(ctx, cfg.Postgres.CatalogDSN)
	if err != nil {
		return collab, cleanup, err
	}
	archivePool, err := postgres.Connect(ctx, cfg.Postgres.ArchiveDSN)
	if err != nil {
		catalogPool.Close()
		return collab, cleanup, err
	}
	cleanup = func() {
		archivePool.Close()
		catalogPool.Close()
	}

	store := postgres.NewStore(catalogPool, archivePool, logger)
	collab.Metadata = store
	collab.Joiner = store
	collab.Redirects = store
	collab.Documents = documentStore(ctx, cfg, apiClient, logger)
	return collab, cleanup, nil
}

// documentStore prefers the DynamoDB table and falls back to the public API
func documentStore(ctx context.Context, cfg *config.Config, apiClient *olclient.Client, logger *zap.Logger) ports.DocumentStore {
	if cfg.DynamoDB.TableName == "" {
		logger.Info("No document table configured, reading documents via catalog API")
		return apiClient
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoDB.Region))
	if err != nil {
		logger.Warn("Unable to load AWS config, reading documents via catalog API", zap.Error(err))
		return apiClient
	}

	client := awsdynamodb.NewFromConfig(awsCfg)
	return dynamodb.NewDocumentStore(client, dynamodb.DefaultBatchConfig(cfg.DynamoDB.TableName), logger)
}

// startMetricsServer serves /metrics and /healthz in the background
func startMetricsServer(addr string, metrics *observability.Collector, logger *zap.Logger) *http.Server {
	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: addr, Handler: router}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("Metrics server stopped", zap.Error(err))
		}
	}()
	return server
}

// gatherKeys reads keys from arguments, or stdin when none are given
func gatherKeys(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}

	keys := make([]string, 0)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			keys = append(keys, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read keys from stdin: %w", err)
	}
	return keys, nil
}
