package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the analytics-api service.
type Config struct {
	LogLevel    string
	HTTPPort    string
	GRPCPort    string
	MetricsAddr string

	GRPCHealthInterval time.Duration

	// Source selects where snapshots are fetched from: "api" or "postgres".
	Source      string
	PostgresDSN string

	UpstreamBaseURL      string
	UpstreamToken        string
	UpstreamClientID     string
	UpstreamClientSecret string
	UpstreamTokenURL     string
	UpstreamTimeout      time.Duration
	UpstreamRetries      int

	// RedisAddr empty keeps snapshots in process memory and disables rate limiting.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	IdentityHeader string
	NameHeader     string
	RateLimit      int
	RateWindow     time.Duration

	SnapshotTTL     time.Duration
	SnapshotMaxAge  time.Duration
	StatsWindowDays int
	TaskLimit       int
	FetchTimeout    time.Duration

	PlayerCardDemoFallback bool

	OTelEndpoint    string
	OTelSampleRatio float64
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:    v.GetString("log_level"),
		HTTPPort:    v.GetString("http_port"),
		GRPCPort:    v.GetString("grpc_port"),
		MetricsAddr: v.GetString("metrics_addr"),

		GRPCHealthInterval: v.GetDuration("grpc_health_interval"),

		Source:      v.GetString("source"),
		PostgresDSN: v.GetString("postgres_dsn"),

		UpstreamBaseURL:      v.GetString("upstream_base_url"),
		UpstreamToken:        v.GetString("upstream_token"),
		UpstreamClientID:     v.GetString("upstream_client_id"),
		UpstreamClientSecret: v.GetString("upstream_client_secret"),
		UpstreamTokenURL:     v.GetString("upstream_token_url"),
		UpstreamTimeout:      v.GetDuration("upstream_timeout"),
		UpstreamRetries:      v.GetInt("upstream_retries"),

		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),

		IdentityHeader: v.GetString("identity_header"),
		NameHeader:     v.GetString("name_header"),
		RateLimit:      v.GetInt("rate_limit"),
		RateWindow:     v.GetDuration("rate_window"),

		SnapshotTTL:     v.GetDuration("snapshot_ttl"),
		SnapshotMaxAge:  v.GetDuration("snapshot_max_age"),
		StatsWindowDays: v.GetInt("stats_window_days"),
		TaskLimit:       v.GetInt("task_limit"),
		FetchTimeout:    v.GetDuration("fetch_timeout"),

		PlayerCardDemoFallback: v.GetBool("player_card_demo_fallback"),

		OTelEndpoint:    v.GetString("otel_endpoint"),
		OTelSampleRatio: v.GetFloat64("otel_sample_ratio"),
	}
}
