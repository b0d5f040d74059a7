// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Data, Geocoder, Search, CORS, Redis, Kafka, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Data     DataConfig      `yaml:"data"`
	Geocoder GeocoderConfig  `yaml:"geocoder"`
	Search   SearchConfig    `yaml:"search"`
	CORS     CORSConfig      `yaml:"cors"`
	Limit    RateLimitConfig `yaml:"rateLimit"`
	Postgres PostgresConfig  `yaml:"postgres"`
	Kafka    KafkaConfig     `yaml:"kafka"`
	Redis    RedisConfig     `yaml:"redis"`
	Logging  LoggingConfig   `yaml:"logging"`
	Metrics  MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// DataConfig locates the geocoded market records. When Driver is empty the
// records are read from the JSON results and cache files; otherwise they are
// read from the SQL database identified by Driver and DSN.
type DataConfig struct {
	ResultsFile string `yaml:"resultsFile"`
	CacheFile   string `yaml:"cacheFile"`
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
}

// GeocoderConfig controls the optional Google Geocoding enrichment. An empty
// APIKey disables it.
type GeocoderConfig struct {
	APIKey           string        `yaml:"apiKey"`
	BaseURL          string        `yaml:"baseURL"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
}

// Enabled reports whether a geocoding key is configured.
func (g GeocoderConfig) Enabled() bool {
	return strings.TrimSpace(g.APIKey) != ""
}

// SearchConfig controls query validation and pagination limits.
type SearchConfig struct {
	DefaultLimit   int `yaml:"defaultLimit"`
	MaxLimit       int `yaml:"maxLimit"`
	MaxQueryLength int `yaml:"maxQueryLength"`
}

// CORSConfig controls the allowed browser origins.
type CORSConfig struct {
	AllowOrigins     []string `yaml:"allowOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
}

// RateLimitConfig bounds lookups per client address. Requests tokens are
// refilled continuously over Window.
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// PostgresConfig holds PostgreSQL connection parameters for the analytics
// snapshot store.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	Enabled         bool          `yaml:"enabled"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	cfg.normalize()
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Data: DataConfig{
			ResultsFile: "polymarket_all_results.json",
			CacheFile:   ".geolocate_cache.json",
		},
		Geocoder: GeocoderConfig{
			BaseURL:          "https://maps.googleapis.com/maps/api/geocode/json",
			Timeout:          5 * time.Second,
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		},
		Search: SearchConfig{
			DefaultLimit:   100,
			MaxLimit:       1000,
			MaxQueryLength: 200,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		},
		Limit: RateLimitConfig{
			Requests: 120,
			Window:   time.Minute,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "polyworld",
			User:            "polyworld",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "polyworld-analytics",
			Topics: KafkaTopics{
				AnalyticsEvents: "location-search-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// normalize enforces cross-field rules after all sources are applied.
func (c *Config) normalize() {
	for _, origin := range c.CORS.AllowOrigins {
		if origin == "*" && c.CORS.AllowCredentials {
			c.CORS.AllowCredentials = false
			break
		}
	}
	if c.Geocoder.Timeout <= 0 {
		c.Geocoder.Timeout = 5 * time.Second
	}
	if c.Limit.Requests <= 0 {
		c.Limit.Requests = 120
	}
	if c.Limit.Window <= 0 {
		c.Limit.Window = time.Minute
	}
	if c.Search.MaxLimit <= 0 {
		c.Search.MaxLimit = 1000
	}
	if c.Search.DefaultLimit <= 0 || c.Search.DefaultLimit > c.Search.MaxLimit {
		c.Search.DefaultLimit = c.Search.MaxLimit
	}
}

// applyEnvOverrides reads PW_* environment variables, plus the service's
// historical variable names, and overrides the corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PW_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := firstEnv("PW_RESULTS_FILE", "POLYWORLD_RESULTS_FILE"); v != "" {
		cfg.Data.ResultsFile = v
	}
	if v := firstEnv("PW_CACHE_FILE", "POLYWORLD_CACHE_FILE"); v != "" {
		cfg.Data.CacheFile = v
	}
	if v := os.Getenv("PW_DATA_DRIVER"); v != "" {
		cfg.Data.Driver = v
	}
	if v := os.Getenv("PW_DATA_DSN"); v != "" {
		cfg.Data.DSN = v
	}
	if v := firstEnv("PW_GEOCODER_API_KEY", "GOOGLE_MAPS_API_KEY"); v != "" {
		cfg.Geocoder.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("PW_GEOCODER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Geocoder.Timeout = d
		}
	}
	if v := firstEnv("PW_CORS_ORIGINS", "POLYWORLD_CORS_ORIGINS"); strings.TrimSpace(v) != "" {
		cfg.CORS.AllowOrigins = ParseList(v)
	}
	if v, ok := lookupFirstEnv("PW_CORS_ALLOW_CREDENTIALS", "POLYWORLD_CORS_ALLOW_CREDENTIALS"); ok {
		cfg.CORS.AllowCredentials = ParseBool(v, cfg.CORS.AllowCredentials)
	}
	if v, ok := os.LookupEnv("PW_RATE_LIMIT_ENABLED"); ok {
		cfg.Limit.Enabled = ParseBool(v, cfg.Limit.Enabled)
	}
	if v := os.Getenv("PW_RATE_LIMIT_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limit.Requests = n
		}
	}
	if v := os.Getenv("PW_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("PW_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v, ok := os.LookupEnv("PW_POSTGRES_ENABLED"); ok {
		cfg.Postgres.Enabled = ParseBool(v, cfg.Postgres.Enabled)
	}
	if v := os.Getenv("PW_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = ParseList(v)
	}
	if v, ok := os.LookupEnv("PW_KAFKA_ENABLED"); ok {
		cfg.Kafka.Enabled = ParseBool(v, cfg.Kafka.Enabled)
	}
	if v := os.Getenv("PW_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("PW_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v, ok := os.LookupEnv("PW_REDIS_ENABLED"); ok {
		cfg.Redis.Enabled = ParseBool(v, cfg.Redis.Enabled)
	}
	if v := os.Getenv("PW_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PW_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// ParseBool parses common boolean spellings, returning def for anything else.
func ParseBool(value string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// ParseList splits a comma-separated value, dropping blank items.
func ParseList(value string) []string {
	items := make([]string, 0)
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func firstEnv(keys ...string) string {
	v, _ := lookupFirstEnv(keys...)
	return v
}

func lookupFirstEnv(keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
	}
	return "", false
}
