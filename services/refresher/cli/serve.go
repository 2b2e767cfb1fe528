package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Prajanya-g/lvl.ai/internal/apiclient"
	"github.com/Prajanya-g/lvl.ai/internal/kafka"
	"github.com/Prajanya-g/lvl.ai/internal/loader"
	"github.com/Prajanya-g/lvl.ai/internal/postgres"
	redisstore "github.com/Prajanya-g/lvl.ai/internal/redis"
	"github.com/Prajanya-g/lvl.ai/internal/version"
	"github.com/Prajanya-g/lvl.ai/pkg/telemetry"
	"github.com/Prajanya-g/lvl.ai/services/refresher"
	"github.com/Prajanya-g/lvl.ai/services/refresher/config"
)

const leaderKey = "refresher:leader"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the snapshot refresher",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("metrics-addr", ":9096", "Prometheus metrics server address")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address (host:port)")
	serveCmd.Flags().String("redis-password", "", "Redis password")
	serveCmd.Flags().Int("redis-db", 0, "Redis database number")
	serveCmd.Flags().String("kafka-brokers", "localhost:9092", "comma-separated Kafka broker addresses")
	serveCmd.Flags().String("kafka-group-id", "analytics-refresher", "Kafka consumer group for task events")
	serveCmd.Flags().Bool("events-enabled", true, "refresh users when their task events arrive")
	serveCmd.Flags().String("source", "api", "snapshot source: api | postgres")
	serveCmd.Flags().StringSlice("users", nil, "user ids to refresh when no postgres DSN is configured")
	serveCmd.Flags().String("upstream-base-url", "http://localhost:5000/api", "lvl.ai backend API base URL")
	serveCmd.Flags().String("upstream-token", "", "static bearer token for the backend API")
	serveCmd.Flags().String("upstream-client-id", "", "OAuth2 client id (client-credentials grant)")
	serveCmd.Flags().String("upstream-client-secret", "", "OAuth2 client secret")
	serveCmd.Flags().String("upstream-token-url", "", "OAuth2 token endpoint")
	serveCmd.Flags().Duration("upstream-timeout", 10*time.Second, "per-request timeout for the backend API")
	serveCmd.Flags().Int("upstream-retries", 3, "attempts per backend API request")
	serveCmd.Flags().String("schedule", "*/5 * * * *", "cron schedule for refreshing active users")
	serveCmd.Flags().Duration("leader-ttl", 30*time.Second, "leader lock lifetime")
	serveCmd.Flags().Int("workers", 4, "concurrent refreshes per scheduled tick")
	serveCmd.Flags().Duration("active-window", 7*24*time.Hour, "users with task activity in this window are refreshed")
	serveCmd.Flags().Int("max-users", 500, "upper bound of users refreshed per tick")
	serveCmd.Flags().Duration("snapshot-ttl", redisstore.DefaultSnapshotTTL, "lifetime of a cached snapshot in Redis")
	serveCmd.Flags().Int("stats-window-days", 30, "days of task statistics to request")
	serveCmd.Flags().Int("task-limit", 100, "most recent tasks fetched per snapshot")
	serveCmd.Flags().Duration("fetch-timeout", 15*time.Second, "deadline for one snapshot fetch")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")
	serveCmd.Flags().Float64("otel-sample-ratio", 1, "fraction of traces sampled")

	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("redis_addr", serveCmd.Flags(), "redis-addr")
	bindFlag("redis_password", serveCmd.Flags(), "redis-password")
	bindFlag("redis_db", serveCmd.Flags(), "redis-db")
	bindFlag("kafka_brokers", serveCmd.Flags(), "kafka-brokers")
	bindFlag("kafka_group_id", serveCmd.Flags(), "kafka-group-id")
	bindFlag("events_enabled", serveCmd.Flags(), "events-enabled")
	bindFlag("source", serveCmd.Flags(), "source")
	bindFlag("users", serveCmd.Flags(), "users")
	bindFlag("upstream_base_url", serveCmd.Flags(), "upstream-base-url")
	bindFlag("upstream_token", serveCmd.Flags(), "upstream-token")
	bindFlag("upstream_client_id", serveCmd.Flags(), "upstream-client-id")
	bindFlag("upstream_client_secret", serveCmd.Flags(), "upstream-client-secret")
	bindFlag("upstream_token_url", serveCmd.Flags(), "upstream-token-url")
	bindFlag("upstream_timeout", serveCmd.Flags(), "upstream-timeout")
	bindFlag("upstream_retries", serveCmd.Flags(), "upstream-retries")
	bindFlag("schedule", serveCmd.Flags(), "schedule")
	bindFlag("leader_ttl", serveCmd.Flags(), "leader-ttl")
	bindFlag("workers", serveCmd.Flags(), "workers")
	bindFlag("active_window", serveCmd.Flags(), "active-window")
	bindFlag("max_users", serveCmd.Flags(), "max-users")
	bindFlag("snapshot_ttl", serveCmd.Flags(), "snapshot-ttl")
	bindFlag("stats_window_days", serveCmd.Flags(), "stats-window-days")
	bindFlag("task_limit", serveCmd.Flags(), "task-limit")
	bindFlag("fetch_timeout", serveCmd.Flags(), "fetch-timeout")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	bindFlag("otel_sample_ratio", serveCmd.Flags(), "otel-sample-ratio")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "refresher")
	instanceID := "refresher-" + uuid.New().String()[:8]

	schedule, err := refresher.ParseSchedule(cfg.Schedule)
	if err != nil {
		return err
	}
	if cfg.LeaderTTL <= 0 {
		cfg.LeaderTTL = 30 * time.Second
	}
	if cfg.RedisAddr == "" {
		return errors.New("redis_addr is required: snapshots and the leader lock live in Redis")
	}

	shutdownTracer, err := telemetry.InitTracer(context.Background(), telemetry.TracingConfig{
		Service:     "refresher",
		Version:     version.Version,
		Endpoint:    cfg.OTelEndpoint,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	redisClient := redisstore.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer func() { _ = redisClient.Close() }()
	checks := []telemetry.ReadyCheck{{Name: "redis", Check: func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}}}

	// ── snapshot source and active users ──────────────────────────────────────
	var pg *postgres.Source
	if cfg.PostgresDSN != "" {
		initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err := postgres.NewPool(initCtx, cfg.PostgresDSN)
		cancel()
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		pg = postgres.NewSource(pool)
		checks = append(checks, telemetry.ReadyCheck{Name: "postgres", Check: pg.Ping})
	}

	var source loader.Source
	switch cfg.Source {
	case "postgres":
		if pg == nil {
			return errors.New("source=postgres needs postgres_dsn")
		}
		source = pg
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

	var users refresher.UserLister = refresher.StaticUsers(cfg.Users)
	if pg != nil {
		users = pg
	} else if len(cfg.Users) == 0 {
		logger.Warn("no postgres_dsn and no users configured: scheduled ticks refresh nobody")
	}

	ld := loader.New(source, redisstore.NewSnapshotStore(redisClient, cfg.SnapshotTTL), loader.Options{
		StatsWindowDays: cfg.StatsWindowDays,
		TaskLimit:       cfg.TaskLimit,
		FetchTimeout:    cfg.FetchTimeout,
	}, logger)

	opts := []refresher.Option{
		refresher.WithLogger(logger),
		refresher.WithWorkers(cfg.Workers),
		refresher.WithActiveWindow(cfg.ActiveWindow),
		refresher.WithMaxUsers(cfg.MaxUsers),
		refresher.WithLeaseRenewInterval(cfg.LeaderTTL / 3),
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if cfg.EventsEnabled {
		brokers := strings.Split(cfg.KafkaBrokers, ",")
		producer := kafka.NewProducer(brokers)
		defer func() { _ = producer.Close() }()
		consumer := kafka.NewConsumer(brokers, kafka.TopicTaskEvents, cfg.KafkaGroupID, logger)
		defer func() { _ = consumer.Close() }()
		opts = append(opts, refresher.WithEvents(consumer, producer))
	}

	leader := redisstore.NewLeaderLock(redisClient, leaderKey, instanceID, cfg.LeaderTTL)
	r := refresher.NewRefresher(ld, leader, users, schedule, opts...)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger, checks...)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-quit
		logger.Info("shutting down...")
		runCancel()
	}()

	logger.Info("refresher starting",
		slog.String("instance_id", instanceID),
		slog.String("schedule", cfg.Schedule),
		slog.Bool("events", cfg.EventsEnabled),
	)
	if err := r.Run(runCtx); err != nil {
		return fmt.Errorf("refresher: %w", err)
	}
	logger.Info("stopped")
	return nil
}
