package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "intelengine.yaml"

// CLIFlags holds command-line flag values. Nil pointers indicate unset flags
// that should not override the config. Use ParseFlags to populate this struct.
type CLIFlags struct {
	ConfigPath *string
	Port       *string
	LogLevel   *string
	DSN        *string
	NatsURL    *string
}

// ParseFlags parses command-line arguments into CLIFlags.
// Call this before Load/LoadWithCLI. Passing nil args parses os.Args[1:].
func ParseFlags(args []string) (CLIFlags, error) {
	var flags CLIFlags

	fs := flag.NewFlagSet("intelengine", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	fs.StringVar(configPath, "c", "", "path to YAML config file (shorthand)")
	port := fs.String("port", "", "HTTP server port")
	fs.StringVar(port, "p", "", "HTTP server port (shorthand)")
	logLevel := fs.String("log-level", "", "logging level (debug, info, warn, error)")
	dsn := fs.String("dsn", "", "PostgreSQL connection string")
	natsURL := fs.String("nats-url", "", "NATS server URL")

	if err := fs.Parse(args); err != nil {
		return flags, fmt.Errorf("parse flags: %w", err)
	}

	// Only set pointers for flags that were explicitly provided.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config", "c":
			flags.ConfigPath = configPath
		case "port", "p":
			flags.Port = port
		case "log-level":
			flags.LogLevel = logLevel
		case "dsn":
			flags.DSN = dsn
		case "nats-url":
			flags.NatsURL = natsURL
		}
	})

	return flags, nil
}

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadWithCLI returns a Config using the full hierarchy:
// defaults < YAML < ENV < CLI flags. The YAML path can be overridden
// via CLIFlags.ConfigPath.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	yamlPath := DefaultConfigFile
	if flags.ConfigPath != nil {
		yamlPath = *flags.ConfigPath
	}

	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, "", fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, "", fmt.Errorf("config validate: %w", err)
	}

	return &cfg, yamlPath, nil
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// applyCLI overlays CLI flag values onto cfg. Only non-nil flags override.
func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Port != nil {
		cfg.Server.Port = *flags.Port
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.DSN != nil {
		cfg.Postgres.DSN = *flags.DSN
	}
	if flags.NatsURL != nil {
		cfg.NATS.URL = *flags.NatsURL
	}
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "INTELENGINE_PORT")
	setString(&cfg.Server.CORSOrigin, "INTELENGINE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "INTELENGINE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "INTELENGINE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "INTELENGINE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "INTELENGINE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "INTELENGINE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "INTELENGINE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "INTELENGINE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "INTELENGINE_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "INTELENGINE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "INTELENGINE_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "INTELENGINE_RATE_RPS")
	setInt(&cfg.Rate.Burst, "INTELENGINE_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "INTELENGINE_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "INTELENGINE_RATE_MAX_IDLE_TIME")

	// L1 response cache
	setInt64(&cfg.Cache.MaxCostBytes, "INTELENGINE_CACHE_MAX_COST_BYTES")
	setDuration(&cfg.Cache.TTL, "INTELENGINE_CACHE_TTL")

	// OpenTelemetry
	setBool(&cfg.OTEL.Enabled, "INTELENGINE_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "INTELENGINE_OTEL_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "INTELENGINE_OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "INTELENGINE_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "INTELENGINE_OTEL_SAMPLE_RATE")

	// Intelligence engine tuning — the eleven recognized options.
	setInt(&cfg.Intelligence.MaxEvents, "INTELENGINE_MAX_EVENTS")
	setInt(&cfg.Intelligence.MaxBlockRange, "INTELENGINE_MAX_BLOCK_RANGE")
	setInt64(&cfg.Intelligence.FromBlock, "INTELENGINE_FROM_BLOCK")
	setInt(&cfg.Intelligence.MaxPageRankIterations, "INTELENGINE_MAX_PAGERANK_ITERATIONS")
	setFloat64(&cfg.Intelligence.PageRankDampingFactor, "INTELENGINE_PAGERANK_DAMPING_FACTOR")
	setFloat64(&cfg.Intelligence.MinPageRankForInfluence, "INTELENGINE_MIN_PAGERANK_FOR_INFLUENCE")
	setFloat64(&cfg.Intelligence.TrustThreshold, "INTELENGINE_TRUST_THRESHOLD")
	setFloat64(&cfg.Intelligence.QualityScalingFactor, "INTELENGINE_QUALITY_SCALING_FACTOR")
	setDuration(&cfg.Intelligence.CacheTTL, "INTELENGINE_CACHE_TTL_NAMES")
	setInt(&cfg.Intelligence.MaxCacheSize, "INTELENGINE_MAX_CACHE_SIZE")
	setDuration(&cfg.Intelligence.PageRankCacheTTL, "INTELENGINE_PAGERANK_CACHE_TTL")

	setString(&cfg.NameRegistry.ReverseSuffix, "INTELENGINE_REVERSE_SUFFIX")

	setString(&cfg.Sources.IndexedViewEndpoint, "INTELENGINE_INDEXED_VIEW_ENDPOINT")
	setString(&cfg.Sources.EventLogEndpoint, "INTELENGINE_EVENT_LOG_ENDPOINT")
	setString(&cfg.Sources.NameRegistryEndpoint, "INTELENGINE_NAME_REGISTRY_ENDPOINT")
	setString(&cfg.MCP.Addr, "INTELENGINE_MCP_ADDR")
}

// validate checks that required fields are set and security constraints are met.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Intelligence.MaxEvents < 1 {
		return errors.New("intelligence.max_events must be >= 1")
	}
	if cfg.Intelligence.MaxBlockRange < 1 {
		return errors.New("intelligence.max_block_range must be >= 1")
	}
	if cfg.Intelligence.MaxPageRankIterations < 1 {
		return errors.New("intelligence.max_pagerank_iterations must be >= 1")
	}
	if cfg.Intelligence.PageRankDampingFactor <= 0 || cfg.Intelligence.PageRankDampingFactor >= 1 {
		return errors.New("intelligence.pagerank_damping_factor must be in (0, 1)")
	}
	if cfg.Intelligence.MaxCacheSize < 1 {
		return errors.New("intelligence.max_cache_size must be >= 1")
	}
	if cfg.NameRegistry.ReverseSuffix == "" {
		return errors.New("name_registry.reverse_suffix is required")
	}
	if cfg.Sources.EventLogEndpoint == "" {
		return errors.New("sources.event_log_endpoint is required")
	}
	if cfg.Sources.NameRegistryEndpoint == "" {
		return errors.New("sources.name_registry_endpoint is required")
	}

	if cfg.Intelligence.MinPageRankForInfluence < 0 {
		slog.Warn("intelligence.min_pagerank_for_influence is negative; treating as unset (0.5/N)")
		cfg.Intelligence.MinPageRankForInfluence = 0
	}

	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
