// Command kgmemoryd is the entry point for the knowledge-graph memory
// engine: it loads configuration, wires every component named in spec.md
// §2, and serves the JSON-RPC tool-call protocol over stdio or HTTP per
// spec.md §6. Its command surface follows the teacher's cmd/bd/main.go
// shape (a cobra root command, persistent flags, signal-aware root
// context) scaled down to the one long-running "serve" verb this daemon
// needs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kgmemory/kgmemory/internal/appconfig"
	"github.com/kgmemory/kgmemory/internal/bgtasks"
	"github.com/kgmemory/kgmemory/internal/embedding"
	"github.com/kgmemory/kgmemory/internal/extractor"
	"github.com/kgmemory/kgmemory/internal/memoryopt"
	"github.com/kgmemory/kgmemory/internal/otelmetrics"
	"github.com/kgmemory/kgmemory/internal/resilience"
	"github.com/kgmemory/kgmemory/internal/rpcserver"
	"github.com/kgmemory/kgmemory/internal/search/hybrid"
	"github.com/kgmemory/kgmemory/internal/search/textsearch"
	"github.com/kgmemory/kgmemory/internal/search/vectorsearch"
	"github.com/kgmemory/kgmemory/internal/storage/sqlite"
	"github.com/kgmemory/kgmemory/internal/toolhandlers"
)

// version is overridden at build time via -ldflags, matching the teacher's
// version-stamping convention in cmd/bd/version.go.
var version = "0.1.0-dev"

var (
	configPath string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:           "kgmemoryd",
		Short:         "Embedded knowledge-graph memory engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the TOML config file (default: built-in defaults)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(serveCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kgmemoryd:", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the JSON-RPC tool-call server over stdio, SSE, or HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// runServe loads config, builds every component from spec.md §2, and
// serves the configured transport until an interrupt/TERM signal arrives,
// mirroring the teacher's rootCtx/rootCancel signal handling in
// cmd/bd/main.go.
func runServe() error {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(logLevel)}))

	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	meterProvider, err := otelmetrics.NewProvider(os.Stderr, time.Minute)
	if err != nil {
		return fmt.Errorf("build meter provider: %w", err)
	}
	defer meterProvider.Shutdown(context.Background())
	metrics, err := otelmetrics.NewMetrics(meterProvider)
	if err != nil {
		return fmt.Errorf("build metrics: %w", err)
	}

	app, err := wire(ctx, cfg, metrics, log)
	if err != nil {
		return fmt.Errorf("wire components: %w", err)
	}
	defer app.store.Close()

	app.bg.Start(ctx)
	defer app.bg.Stop()

	dispatcherCfg := rpcserver.DefaultConfig()
	if cfg.Server.GlobalDeadlineSecs > 0 {
		dispatcherCfg.GlobalDeadline = time.Duration(cfg.Server.GlobalDeadlineSecs) * time.Second
	}
	dispatcher := rpcserver.New(dispatcherCfg, app.handlers, log)

	switch cfg.Server.Transport {
	case appconfig.TransportStdio:
		log.Info("kgmemoryd: serving stdio transport")
		if err := rpcserver.ServeStdio(ctx, dispatcher, os.Stdin, os.Stdout, log); err != nil && ctx.Err() == nil {
			return fmt.Errorf("serve stdio: %w", err)
		}
		return nil
	case appconfig.TransportHTTP, appconfig.TransportSSE:
		return serveHTTP(ctx, dispatcher, app, cfg, log)
	default:
		return fmt.Errorf("unknown MCP_TRANSPORT %q", cfg.Server.Transport)
	}
}

func serveHTTP(ctx context.Context, dispatcher *rpcserver.Dispatcher, app *application, cfg appconfig.Config, log *slog.Logger) error {
	opts := []rpcserver.HTTPServerOption{
		rpcserver.WithHealthCheck("storage", app.store.Ping),
		rpcserver.WithMetrics(app.metricsSnapshot),
	}
	if cfg.Resilience.Auth.Enabled {
		opts = append(opts, rpcserver.WithBearerToken(cfg.Resilience.Auth.APIKey))
	}
	httpServer := rpcserver.NewHTTPServer(dispatcher, log, opts...)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: httpServer.Handler()}

	errCh := make(chan error, 1)
	go func() {
		log.Info("kgmemoryd: serving HTTP transport", "addr", addr, "transport", cfg.Server.Transport)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// application bundles the wired components runServe needs beyond the
// rpcserver.ToolHandler interface: the store (for Ping/Close) and a
// metrics snapshot closure for GET /metrics.
type application struct {
	store    *sqlite.Store
	handlers *toolhandlers.Handlers
	bg       *bgtasks.Supervisor

	optimizer *memoryopt.Optimizer
	breakers  *resilience.BreakerRegistry
}

func (a *application) metricsSnapshot() map[string]any {
	snapshot := map[string]any{}
	if a.optimizer != nil {
		snapshot["cache"] = a.optimizer.Stats()
	}
	if a.breakers != nil {
		snapshot["breakers"] = a.breakers.Snapshot()
	}
	return snapshot
}

// wire builds every component named in spec.md §2 from cfg, following the
// dataflow diagram: Storage underlies everything; Extractor, Embedding,
// and the search layers sit over it; Memory Optimizer and the resilience
// substrate wrap the whole; Tool Dispatcher's handlers compose all of it.
func wire(ctx context.Context, cfg appconfig.Config, metrics *otelmetrics.Metrics, log *slog.Logger) (*application, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(cfg.Storage.DataDir, cfg.Storage.DBFilename)
	store, err := sqlite.Open(dbPath, sqlite.Options{Tuning: sqlite.EngineTuning{
		PageCacheKiB: cfg.Storage.PageCacheKiB,
		MmapSizeMiB:  cfg.Storage.MmapSizeMiB,
	}})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	embedCfg := embedding.Config{
		Dimension:      cfg.Embedding.Dimension,
		CacheCapacity:  cfg.Embedding.CacheCapacity,
		BatchSize:      cfg.Embedding.BatchSize,
		MaxConcurrency: cfg.Embedding.MaxConcurrency,
		BatchTimeout:   time.Duration(cfg.Embedding.BatchTimeoutSecs) * time.Second,
	}
	embedEngine := embedding.NewEngine(embedding.NewHashBackend(cfg.Embedding.Dimension), embedCfg)
	if err := embedEngine.Init(ctx, nil); err != nil {
		log.Warn("kgmemoryd: embedding engine init failed, search degrades to text-only", "error", err)
	}

	extractCfg := extractor.EntityConfig{
		MinEntityLength:    cfg.Extractor.MinEntityLength,
		MaxEntityLength:    cfg.Extractor.MaxEntityLength,
		MinConfidence:      cfg.Extractor.MinEntityConfidence,
		MaxEntitiesPerText: cfg.Extractor.MaxEntitiesPerText,
	}
	relCfg := extractor.RelationshipConfig{
		MinConfidence:           cfg.Extractor.MinRelationConfidence,
		MaxRelationshipsPerText: cfg.Extractor.MaxRelationshipsPerText,
		CoOccurrenceWindowChars: cfg.Extractor.CoOccurrenceWindowChars,
	}
	extract := extractor.New(extractCfg, relCfg)

	textCfg := textsearch.DefaultConfig()
	textCfg.Weights = textsearch.FieldWeights{Name: cfg.Text.NameWeight, Type: cfg.Text.TypeWeight, Summary: cfg.Text.SummaryWeight}
	textCfg.MinScoreThreshold = cfg.Text.MinScoreThreshold
	textCfg.CaseInsensitive = cfg.Text.CaseInsensitive
	textCfg.WildcardMode = cfg.Text.WildcardMode
	textSearcher := textsearch.New(store, textCfg)

	vectorCfg := vectorsearch.DefaultConfig()
	vectorCfg.Metric = vectorsearch.ParseMetric(cfg.Vector.Metric)
	vectorCfg.SimilarityThreshold = cfg.Vector.SimilarityThreshold
	vectorCfg.Approximate = cfg.Vector.Approximate
	vectorSearcher := vectorsearch.New(store, vectorCfg)

	hybridCfg := hybrid.Config{Algorithm: hybrid.ParseAlgorithm(cfg.Hybrid.Algorithm), TextWeight: cfg.Hybrid.TextWeight}
	orchestrator := hybrid.New(textSearcher, vectorSearcher, embedEngine.Encode, func() bool { return embedEngine.State() == embedding.StateReady }, hybridCfg)

	optCfg := memoryopt.OptimizerConfig{
		NodeByUUID:      memoryopt.CacheConfig{Capacity: cfg.Memory.NodeByUUID.Capacity, TTL: seconds(cfg.Memory.NodeByUUID.TTLSecs)},
		NodeListByQuery: memoryopt.CacheConfig{Capacity: cfg.Memory.NodeListByQuery.Capacity, TTL: seconds(cfg.Memory.NodeListByQuery.TTLSecs)},
		EpisodeByUUID:   memoryopt.CacheConfig{Capacity: cfg.Memory.EpisodeByUUID.Capacity, TTL: seconds(cfg.Memory.EpisodeByUUID.TTLSecs)},
		EmbeddingByText: memoryopt.CacheConfig{Capacity: cfg.Memory.EmbeddingByText.Capacity, TTL: seconds(cfg.Memory.EmbeddingByText.TTLSecs)},
		QueryResult:     memoryopt.CacheConfig{Capacity: cfg.Memory.QueryResult.Capacity, TTL: seconds(cfg.Memory.QueryResult.TTLSecs)},
		GC: memoryopt.GCConfig{
			Interval:     seconds(cfg.Memory.GCIntervalSecs),
			GCThreshold:  cfg.Memory.GCThreshold,
			MaxCacheSize: cfg.Memory.MaxCacheSize,
		},
	}
	optimizer := memoryopt.New(optCfg)
	optimizer.GC.Start(ctx, log)

	breakerCfg := resilience.BreakerConfig{
		FailureThreshold: cfg.Resilience.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Resilience.Breaker.SuccessThreshold,
		RecoveryTimeout:  seconds(cfg.Resilience.Breaker.RecoveryTimeoutSecs),
		CallTimeout:      seconds(cfg.Resilience.Breaker.CallTimeoutSecs),
	}
	breakers := resilience.NewBreakerRegistry(breakerCfg)
	auth := resilience.NewAuth(resilience.AuthConfig{
		Enabled:                    cfg.Resilience.Auth.Enabled,
		APIKey:                     cfg.Resilience.Auth.APIKey,
		AdminOperationsRequireAuth: cfg.Resilience.Auth.AdminOperationsRequireAuth,
	})
	rateLimit := resilience.NewRateLimiter(resilience.RateLimitConfig{
		RequestsPerMinute: cfg.Resilience.RateLimit.RequestsPerMinute,
		BurstPerTenSec:    cfg.Resilience.RateLimit.BurstPerTenSec,
		IdleTTL:           seconds(cfg.Resilience.RateLimit.IdleTTLSecs),
	})

	handlers := toolhandlers.New(toolhandlers.Deps{
		Store:             store,
		Embed:             embedEngine,
		Extract:           extract,
		Text:              textSearcher,
		Vector:            vectorSearcher,
		Hybrid:            orchestrator,
		Optimizer:         optimizer,
		Breakers:          breakers,
		Auth:              auth,
		RateLimit:         rateLimit,
		IndexCodebaseRoot: cfg.Server.IndexCodebaseRoot,
		LanguageRulesPath: cfg.Server.LanguageRulesPath,
		Metrics:           metrics,
		Log:               log,
	})

	supervisor := bgtasks.New(bgtasks.DefaultConfig(), store.Ping, func(ctx context.Context) error {
		if len(cfg.Embedding.WarmupQueries) == 0 {
			return nil
		}
		_, err := embedEngine.EncodeBatch(ctx, cfg.Embedding.WarmupQueries)
		return err
	}, log)

	return &application{
		store:     store,
		handlers:  handlers,
		bg:        supervisor,
		optimizer: optimizer,
		breakers:  breakers,
	}, nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
