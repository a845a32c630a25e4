package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"trustguard/internal/api"
	"trustguard/internal/config"
	"trustguard/internal/logger"
	"trustguard/internal/models"
	"trustguard/internal/observability"
	"trustguard/internal/ratelimit"
	"trustguard/internal/stats"
	"trustguard/internal/storage"
	"trustguard/internal/version"
)

var (
	configFile    = flag.String("config", "", "Path to configuration file")
	exampleConfig = flag.String("write-example-config", "", "Write an example configuration file to this path and exit")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	ver := version.GetInfo()
	if *showVersion {
		fmt.Println(ver.String())
		return
	}
	if *exampleConfig != "" {
		if err := config.SaveExample(*exampleConfig); err != nil {
			slog.Error("Failed to write example configuration", "error", err)
			os.Exit(1)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis is shared by the counter store and the statistics backend
	var redisClient *redis.Client
	if cfg.Store.Type == models.BackendRedis || cfg.Stats.Type == models.BackendRedis {
		redisClient, err = ratelimit.NewRedisClient(cfg.Store.Redis)
		if err != nil {
			slog.Error("Failed to connect to redis", "addr", cfg.Store.Redis.Addr, "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	// Initialize the counter store shared by all policies
	store, err := initializeStore(ctx, cfg, redisClient)
	if err != nil {
		slog.Error("Failed to initialize counter store", "error", err)
		os.Exit(1)
	}

	// Initialize the rejection log
	storageInstance, err := storage.NewFactory().Create(cfg.Storage)
	if err != nil {
		slog.Error("Failed to initialize storage", "type", cfg.Storage.Type, "error", err)
		os.Exit(1)
	}
	defer storageInstance.Close()

	// Wrap storage with instrumentation if metrics are enabled
	var activeStorage storage.Storage = storageInstance
	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedStorage(storageInstance)
		if err != nil {
			slog.Error("Failed to create instrumented storage", "error", err)
			os.Exit(1)
		}
		activeStorage = instrumented
	}

	// Build the policy table
	defs, err := ratelimit.PoliciesFromConfig(cfg.RateLimit)
	if err != nil {
		slog.Error("Invalid rate limit policies", "error", err)
		os.Exit(1)
	}
	policies, err := ratelimit.NewPolicySet(store, defs)
	if err != nil {
		slog.Error("Failed to build rate limit policies", "error", err)
		os.Exit(1)
	}

	trusted, err := ratelimit.NewTrustedProxies(cfg.RateLimit.TrustedProxies)
	if err != nil {
		slog.Error("Invalid trusted proxies", "error", err)
		os.Exit(1)
	}

	// Decision statistics
	localStats := stats.NewMemoryRecorder(stats.WithTrackKeys(cfg.Stats.TrackKeys))
	recorders := stats.Multi{localStats}
	var clusterStats *stats.RedisRecorder
	if cfg.Stats.Type == models.BackendRedis {
		clusterStats = stats.NewRedisRecorder(redisClient,
			stats.WithRedisPrefix(cfg.Stats.Prefix),
			stats.WithRedisTTL(cfg.Stats.TTL),
			stats.WithRedisTrackKeys(cfg.Stats.TrackKeys),
		)
		recorders = append(recorders, clusterStats)
	}
	if cfg.Metrics.Enabled {
		metricsRecorder, err := observability.NewMetricsRecorder()
		if err != nil {
			slog.Error("Failed to create metrics recorder", "error", err)
			os.Exit(1)
		}
		recorders = append(recorders, metricsRecorder)
	}

	// Initialize HTTP handlers
	handlerOpts := []api.HandlersOption{
		api.WithStorage(activeStorage),
		api.WithStats(localStats),
		api.WithVersion(ver),
	}
	if redisClient != nil {
		handlerOpts = append(handlerOpts, api.WithHealthCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
	}
	if clusterStats != nil {
		handlerOpts = append(handlerOpts, api.WithClusterStats(clusterStats))
	}
	handlers := api.NewHandlers(policies, handlerOpts...)

	upstream, err := api.NewProxy(cfg.Upstream)
	if err != nil {
		slog.Error("Failed to create upstream proxy", "error", err)
		os.Exit(1)
	}

	guard := api.NewGuard(nil)
	if cfg.RateLimit.Enabled {
		guard = api.NewGuard(policies,
			ratelimit.WithIdentityExtractor(ratelimit.NewIdentityExtractor(trusted, cfg.RateLimit.UserIDHeader)),
			ratelimit.WithRecorder(recorders),
			ratelimit.WithRejectionLog(activeStorage),
		)
	} else {
		slog.Warn("Rate limiting is disabled; all requests are admitted")
	}

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}
	router := api.SetupRoutes(handlers, upstream, guard, routeOpts...)

	// The admin endpoints share the metrics listener
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider, api.SetupAdminRoutes(handlers))
		go func() {
			slog.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Starting server",
			"addr", server.Addr,
			"upstream", cfg.Upstream.URL,
			"store", cfg.Store.Type,
			"storage", cfg.Storage.Type,
			"policies", len(policies.Policies()),
		)

		var err error
		if cfg.Server.TLSEnabled {
			slog.Info("Starting HTTPS server with TLS")
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			slog.Info("Starting HTTP server")
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			stop()
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()

	slog.Info("Shutting down server")

	// Create a deadline to wait for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown metrics server
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	// Attempt graceful shutdown
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
}

// initializeStore creates the counter store selected by configuration. The
// memory store starts its janitor when a sweep interval is set; ctx stops it.
func initializeStore(ctx context.Context, cfg *models.Config, redisClient *redis.Client) (ratelimit.Store, error) {
	var (
		store ratelimit.Store
		err   error
	)

	switch cfg.Store.Type {
	case models.BackendMemory:
		memoryStore := ratelimit.NewMemoryStore()
		if cfg.RateLimit.SweepInterval > 0 {
			memoryStore.StartJanitor(ctx, cfg.RateLimit.SweepInterval)
		}
		store = memoryStore
	case models.BackendRedis:
		store = ratelimit.NewRedisStore(redisClient,
			ratelimit.WithKeyPrefix(cfg.Store.Redis.Prefix),
			ratelimit.WithTimeout(cfg.Store.Redis.Timeout),
		)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Store.Type)
	}

	if cfg.Metrics.Enabled {
		store, err = observability.NewInstrumentedStore(store, cfg.Store.Type)
		if err != nil {
			return nil, fmt.Errorf("instrument counter store: %w", err)
		}
	}
	return store, nil
}
