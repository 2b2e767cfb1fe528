package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/Prajanya-g/lvl.ai/internal/analytics"
	"github.com/Prajanya-g/lvl.ai/internal/apiclient"
	"github.com/Prajanya-g/lvl.ai/internal/loader"
	"github.com/Prajanya-g/lvl.ai/internal/postgres"
	redisstore "github.com/Prajanya-g/lvl.ai/internal/redis"
	"github.com/Prajanya-g/lvl.ai/internal/version"
	"github.com/Prajanya-g/lvl.ai/pkg/telemetry"
	"github.com/Prajanya-g/lvl.ai/services/analytics-api/config"
	"github.com/Prajanya-g/lvl.ai/services/analytics-api/handler"
	"github.com/Prajanya-g/lvl.ai/services/analytics-api/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analytics HTTP and gRPC health servers",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("http-port", "8080", "HTTP server port")
	serveCmd.Flags().String("grpc-port", "9090", "gRPC server port (health and reflection)")
	serveCmd.Flags().Duration("grpc-health-interval", 10*time.Second, "how often gRPC health re-runs the readiness checks")
	serveCmd.Flags().String("metrics-addr", ":9095", "Prometheus metrics server address")
	serveCmd.Flags().String("source", "api", "snapshot source: api | postgres")
	serveCmd.Flags().String("upstream-base-url", "http://localhost:5000/api", "lvl.ai backend API base URL")
	serveCmd.Flags().String("upstream-token", "", "static bearer token for the backend API")
	serveCmd.Flags().String("upstream-client-id", "", "OAuth2 client id (client-credentials grant)")
	serveCmd.Flags().String("upstream-client-secret", "", "OAuth2 client secret")
	serveCmd.Flags().String("upstream-token-url", "", "OAuth2 token endpoint")
	serveCmd.Flags().Duration("upstream-timeout", 10*time.Second, "per-request timeout for the backend API")
	serveCmd.Flags().Int("upstream-retries", 3, "attempts per backend API request")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address (host:port); empty keeps snapshots in memory")
	serveCmd.Flags().String("redis-password", "", "Redis password")
	serveCmd.Flags().Int("redis-db", 0, "Redis database number")
	serveCmd.Flags().String("identity-header", "X-User-ID", "header carrying the authenticated user id")
	serveCmd.Flags().String("name-header", "X-User-Name", "header carrying the user's display name")
	serveCmd.Flags().Int("rate-limit", 60, "requests per user per rate window; 0 disables")
	serveCmd.Flags().Duration("rate-window", time.Minute, "rate limit window")
	serveCmd.Flags().Duration("snapshot-ttl", redisstore.DefaultSnapshotTTL, "lifetime of a cached snapshot in Redis")
	serveCmd.Flags().Duration("snapshot-max-age", 5*time.Minute, "age below which a cached snapshot is served without refetching")
	serveCmd.Flags().Int("stats-window-days", 30, "days of task statistics to request")
	serveCmd.Flags().Int("task-limit", 100, "most recent tasks fetched per snapshot")
	serveCmd.Flags().Duration("fetch-timeout", 15*time.Second, "deadline for one snapshot fetch")
	serveCmd.Flags().Bool("player-card-demo-fallback", false, "show the demo player for users without activity")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")
	serveCmd.Flags().Float64("otel-sample-ratio", 1, "fraction of traces sampled")

	bindFlag("http_port", serveCmd.Flags(), "http-port")
	bindFlag("grpc_port", serveCmd.Flags(), "grpc-port")
	bindFlag("grpc_health_interval", serveCmd.Flags(), "grpc-health-interval")
	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("source", serveCmd.Flags(), "source")
	bindFlag("upstream_base_url", serveCmd.Flags(), "upstream-base-url")
	bindFlag("upstream_token", serveCmd.Flags(), "upstream-token")
	bindFlag("upstream_client_id", serveCmd.Flags(), "upstream-client-id")
	bindFlag("upstream_client_secret", serveCmd.Flags(), "upstream-client-secret")
	bindFlag("upstream_token_url", serveCmd.Flags(), "upstream-token-url")
	bindFlag("upstream_timeout", serveCmd.Flags(), "upstream-timeout")
	bindFlag("upstream_retries", serveCmd.Flags(), "upstream-retries")
	bindFlag("redis_addr", serveCmd.Flags(), "redis-addr")
	bindFlag("redis_password", serveCmd.Flags(), "redis-password")
	bindFlag("redis_db", serveCmd.Flags(), "redis-db")
	bindFlag("identity_header", serveCmd.Flags(), "identity-header")
	bindFlag("name_header", serveCmd.Flags(), "name-header")
	bindFlag("rate_limit", serveCmd.Flags(), "rate-limit")
	bindFlag("rate_window", serveCmd.Flags(), "rate-window")
	bindFlag("snapshot_ttl", serveCmd.Flags(), "snapshot-ttl")
	bindFlag("snapshot_max_age", serveCmd.Flags(), "snapshot-max-age")
	bindFlag("stats_window_days", serveCmd.Flags(), "stats-window-days")
	bindFlag("task_limit", serveCmd.Flags(), "task-limit")
	bindFlag("fetch_timeout", serveCmd.Flags(), "fetch-timeout")
	bindFlag("player_card_demo_fallback", serveCmd.Flags(), "player-card-demo-fallback")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	bindFlag("otel_sample_ratio", serveCmd.Flags(), "otel-sample-ratio")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "analytics-api")

	shutdownTracer, err := telemetry.InitTracer(context.Background(), telemetry.TracingConfig{
		Service:     "analytics-api",
		Version:     version.Version,
		Endpoint:    cfg.OTelEndpoint,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	var checks []telemetry.ReadyCheck

	// ── snapshot source ───────────────────────────────────────────────────────
	var source loader.Source
	switch cfg.Source {
	case "postgres":
		initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err := postgres.NewPool(initCtx, cfg.PostgresDSN)
		cancel()
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		pg := postgres.NewSource(pool)
		source = pg
		checks = append(checks, telemetry.ReadyCheck{Name: "postgres", Check: pg.Ping})
	case "api", "":
		client, err := apiclient.New(context.Background(), apiclient.Config{
			BaseURL:      cfg.UpstreamBaseURL,
			Timeout:      cfg.UpstreamTimeout,
			MaxAttempts:  cfg.UpstreamRetries,
			Token:        cfg.UpstreamToken,
			ClientID:     cfg.UpstreamClientID,
			ClientSecret: cfg.UpstreamClientSecret,
			TokenURL:     cfg.UpstreamTokenURL,
		}, logger)
		if err != nil {
			return fmt.Errorf("api client: %w", err)
		}
		source = client
	default:
		return fmt.Errorf("unknown source %q (want api or postgres)", cfg.Source)
	}

	// ── snapshot cache and rate limiter ───────────────────────────────────────
	var cache loader.Cache = loader.NewMemoryCache()
	var limiter middleware.Limiter
	if cfg.RedisAddr != "" {
		redisClient := redisstore.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer func() { _ = redisClient.Close() }()
		cache = redisstore.NewSnapshotStore(redisClient, cfg.SnapshotTTL)
		if cfg.RateLimit > 0 {
			limiter = redisstore.NewRateLimiter(redisClient, cfg.RateLimit, cfg.RateWindow)
		}
		checks = append(checks, telemetry.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	} else {
		logger.Warn("redis_addr not set: snapshots kept in memory, rate limiting disabled")
	}

	ld := loader.New(source, cache, loader.Options{
		StatsWindowDays: cfg.StatsWindowDays,
		TaskLimit:       cfg.TaskLimit,
		FetchTimeout:    cfg.FetchTimeout,
		MaxAge:          cfg.SnapshotMaxAge,
	}, logger)

	fallback := analytics.StrictFallback()
	if cfg.PlayerCardDemoFallback {
		fallback = analytics.DemoFallback()
	}
	restHandler := handler.NewREST(ld, fallback, logger, checks...)

	// ── HTTP server ───────────────────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1MB limit
	r.Get("/healthz", restHandler.Healthz)
	r.Get("/readyz", restHandler.Readyz)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity(middleware.IdentityConfig{
			UserHeader: cfg.IdentityHeader,
			NameHeader: cfg.NameHeader,
		}))
		if limiter != nil {
			r.Use(middleware.RateLimit(limiter, logger))
		}
		r.Get("/analytics", restHandler.Analytics)
		r.Post("/analytics/refresh", restHandler.Refresh)
		r.Get("/dashboard", restHandler.Dashboard)
		r.Get("/player-card", restHandler.PlayerCard)
	})

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second + cfg.FetchTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// ── gRPC server ───────────────────────────────────────────────────────────
	healthSrv := health.NewServer()
	grpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	reflection.Register(grpcSrv)

	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	// ── signal handling ───────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	// ── Prometheus metrics ────────────────────────────────────────────────────
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger, checks...)
	go telemetry.WatchHealth(runCtx, healthSrv, cfg.GRPCHealthInterval, logger, checks...)

	go func() {
		logger.Info("analytics-api HTTP starting",
			slog.String("addr", httpSrv.Addr),
			slog.String("source", cfg.Source),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	go func() {
		logger.Info("analytics-api gRPC starting", slog.String("addr", grpcLis.Addr().String()))
		if err := grpcSrv.Serve(grpcLis); err != nil {
			logger.Error("gRPC server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-quit
	logger.Info("shutting down...")
	runCancel()

	healthSrv.Shutdown()
	grpcSrv.GracefulStop()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("stopped")
	return nil
}
