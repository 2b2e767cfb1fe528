package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the refresher service.
type Config struct {
	LogLevel    string
	MetricsAddr string

	KafkaBrokers string
	KafkaGroupID string
	// EventsEnabled turns on the tasks.events listener.
	EventsEnabled bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Source      string
	PostgresDSN string
	// Users is used instead of the database when no DSN is configured.
	Users []string

	UpstreamBaseURL      string
	UpstreamToken        string
	UpstreamClientID     string
	UpstreamClientSecret string
	UpstreamTokenURL     string
	UpstreamTimeout      time.Duration
	UpstreamRetries      int

	Schedule     string
	LeaderTTL    time.Duration
	Workers      int
	ActiveWindow time.Duration
	MaxUsers     int

	SnapshotTTL     time.Duration
	StatsWindowDays int
	TaskLimit       int
	FetchTimeout    time.Duration

	OTelEndpoint    string
	OTelSampleRatio float64
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:    v.GetString("log_level"),
		MetricsAddr: v.GetString("metrics_addr"),

		KafkaBrokers:  v.GetString("kafka_brokers"),
		KafkaGroupID:  v.GetString("kafka_group_id"),
		EventsEnabled: v.GetBool("events_enabled"),

		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),

		Source:      v.GetString("source"),
		PostgresDSN: v.GetString("postgres_dsn"),
		Users:       splitList(v.GetStringSlice("users")),

		UpstreamBaseURL:      v.GetString("upstream_base_url"),
		UpstreamToken:        v.GetString("upstream_token"),
		UpstreamClientID:     v.GetString("upstream_client_id"),
		UpstreamClientSecret: v.GetString("upstream_client_secret"),
		UpstreamTokenURL:     v.GetString("upstream_token_url"),
		UpstreamTimeout:      v.GetDuration("upstream_timeout"),
		UpstreamRetries:      v.GetInt("upstream_retries"),

		Schedule:     v.GetString("schedule"),
		LeaderTTL:    v.GetDuration("leader_ttl"),
		Workers:      v.GetInt("workers"),
		ActiveWindow: v.GetDuration("active_window"),
		MaxUsers:     v.GetInt("max_users"),

		SnapshotTTL:     v.GetDuration("snapshot_ttl"),
		StatsWindowDays: v.GetInt("stats_window_days"),
		TaskLimit:       v.GetInt("task_limit"),
		FetchTimeout:    v.GetDuration("fetch_timeout"),

		OTelEndpoint:    v.GetString("otel_endpoint"),
		OTelSampleRatio: v.GetFloat64("otel_sample_ratio"),
	}
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
