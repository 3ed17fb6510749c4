package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Snapshot store.
	SnapshotDir    string
	RetentionDays  int
	RealtimeWindow time.Duration

	// Live upstream and egress.
	UpstreamURL     string
	UpstreamTimeout time.Duration
	AlertsURL       string
	PublicBaseURL   string

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	// Updater pacing and schedule.
	UpdateDelay       time.Duration
	SchedulerEnabled  bool
	SchedulerUpdateAt string

	// Ephemeral client cache.
	ClientCacheTTL      time.Duration
	ClientCacheMaxBytes int64

	// NWS Public Information Statements.
	PNSEnabled   bool
	PNSCacheSize int
	NWSUserAgent string

	// Snapshot-updated notifications.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSnapshotTopic string
	KafkaGroupID       string
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is read first if present;
// variables already set in the environment take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	retentionDays, err := parsePositiveInt("RETENTION_DAYS", 30)
	if err != nil {
		return nil, err
	}
	retryAttempts, err := parsePositiveInt("RETRY_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	cacheMaxBytes, err := parsePositiveInt("CLIENT_CACHE_MAX_BYTES", 10*1024*1024)
	if err != nil {
		return nil, err
	}
	pnsCacheSize, err := parsePositiveInt("PNS_CACHE_SIZE", 256)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		SnapshotDir:   sharedcfg.EnvOrDefault("SNAPSHOT_DIR", "data"),
		RetentionDays: retentionDays,

		UpstreamURL:   sharedcfg.EnvOrDefault("UPSTREAM_URL", "https://mesonet.agron.iastate.edu/geojson/lsr.php"),
		AlertsURL:     sharedcfg.EnvOrDefault("ALERTS_URL", "https://api.weather.gov/products"),
		PublicBaseURL: sharedcfg.EnvOrDefault("PUBLIC_BASE_URL", "http://localhost:8080"),

		RetryMaxAttempts: retryAttempts,

		SchedulerEnabled:  os.Getenv("SCHEDULER_ENABLED") == "true",
		SchedulerUpdateAt: sharedcfg.EnvOrDefault("SCHEDULER_UPDATE_AT", "00:15"),

		ClientCacheMaxBytes: int64(cacheMaxBytes),

		PNSEnabled:   os.Getenv("PNS_ENABLED") == "true",
		PNSCacheSize: pnsCacheSize,
		NWSUserAgent: sharedcfg.EnvOrDefault("NWS_USER_AGENT", "(storm-data-lsr-cache, ops@example.com)"),

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSnapshotTopic: sharedcfg.EnvOrDefault("KAFKA_SNAPSHOT_TOPIC", "lsr-snapshot-updates"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "lsr-cache-invalidator"),
	}

	if cfg.RealtimeWindow, err = parsePositiveDuration("REALTIME_WINDOW", "24h"); err != nil {
		return nil, err
	}
	if cfg.UpstreamTimeout, err = parsePositiveDuration("UPSTREAM_TIMEOUT", "60s"); err != nil {
		return nil, err
	}
	if cfg.RetryBaseDelay, err = parsePositiveDuration("RETRY_BASE_DELAY", "1s"); err != nil {
		return nil, err
	}
	if cfg.RetryMaxDelay, err = parsePositiveDuration("RETRY_MAX_DELAY", "10s"); err != nil {
		return nil, err
	}
	if cfg.ClientCacheTTL, err = parsePositiveDuration("CLIENT_CACHE_TTL", "5m"); err != nil {
		return nil, err
	}

	// Zero disables the pause between updater days.
	updateDelay, err := time.ParseDuration(sharedcfg.EnvOrDefault("UPDATE_DELAY", "500ms"))
	if err != nil || updateDelay < 0 {
		return nil, errors.New("invalid UPDATE_DELAY")
	}
	cfg.UpdateDelay = updateDelay

	if cfg.SnapshotDir == "" {
		return nil, errors.New("SNAPSHOT_DIR is required")
	}
	if err := requireAbsoluteURL("UPSTREAM_URL", cfg.UpstreamURL); err != nil {
		return nil, err
	}
	if err := requireAbsoluteURL("ALERTS_URL", cfg.AlertsURL); err != nil {
		return nil, err
	}
	if err := requireAbsoluteURL("PUBLIC_BASE_URL", cfg.PublicBaseURL); err != nil {
		return nil, err
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		return nil, errors.New("RETRY_MAX_DELAY must not be less than RETRY_BASE_DELAY")
	}
	if _, err := time.Parse("15:04", cfg.SchedulerUpdateAt); err != nil {
		return nil, errors.New("invalid SCHEDULER_UPDATE_AT, expected HH:MM")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.KafkaEnabled && cfg.KafkaSnapshotTopic == "" {
		return nil, errors.New("KAFKA_SNAPSHOT_TOPIC is required")
	}

	return cfg, nil
}

// RetentionWindow is the retention period as a duration.
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func requireAbsoluteURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s must be an absolute http(s) URL", key)
	}
	return nil
}
