package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Classifier providers.
const (
	ClassifierHuggingFace = "huggingface"
	ClassifierOpenAI      = "openai"
	ClassifierAnthropic   = "anthropic"
)

// DefaultHuggingFaceEndpoint is used when the huggingface provider has no
// endpoint. The other providers fall back to their SDK's base URL.
const DefaultHuggingFaceEndpoint = "https://api-inference.huggingface.co"

// Config holds all configuration for sentify-engine.
// Configuration can come from a YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"5000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	Auth         AuthConfig         `yaml:"auth"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	AlphaVantage AlphaVantageConfig `yaml:"alphavantage"`
	Scraper      ScraperConfig      `yaml:"scraper"`
	Classifier   ClassifierConfig   `yaml:"classifier"`
	Ingestion    IngestionConfig    `yaml:"ingestion"`
	Logging      LoggingConfig      `yaml:"logging"`
	Tracing      TracingConfig      `yaml:"tracing"`
}

// AuthConfig holds authentication-related configuration.
// Tokens are issued by the account service; this process only validates them.
type AuthConfig struct {
	// EnableVerification controls whether JWT signatures are verified.
	// Set to false for local development without the account service.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"sentify"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"sentify"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds Redis configuration. Redis is optional; when Host is empty
// live notifications are delivered only to connections held by this process.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// AlphaVantageConfig configures the news feed and company overview client.
type AlphaVantageConfig struct {
	BaseURL string        `yaml:"base_url" env:"ALPHAVANTAGE_BASE_URL" env-default:"https://www.alphavantage.co/query"`
	APIKey  string        `yaml:"-" env:"ALPHAVANTAGE_API_KEY"`
	Timeout time.Duration `yaml:"timeout" env:"ALPHAVANTAGE_TIMEOUT" env-default:"60s"`
}

// ScraperConfig configures the article description scraper.
type ScraperConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"SCRAPER_TIMEOUT" env-default:"10s"`
	// Delay is slept before every request to stay polite with publishers.
	Delay   time.Duration `yaml:"delay" env:"SCRAPER_DELAY" env-default:"500ms"`
	Referer string        `yaml:"referer" env:"SCRAPER_REFERER" env-default:"https://www.google.com"`
	// UserAgents overrides the built-in desktop user agent pool.
	UserAgents []string `yaml:"user_agents" env:"SCRAPER_USER_AGENTS" env-separator:","`
}

// ClassifierConfig configures the sentiment classifier.
type ClassifierConfig struct {
	Provider string        `yaml:"provider" env:"CLASSIFIER_PROVIDER" env-default:"huggingface"`
	Endpoint string        `yaml:"endpoint" env:"CLASSIFIER_ENDPOINT"`
	Model    string        `yaml:"model" env:"CLASSIFIER_MODEL" env-default:"distilbert-base-uncased-finetuned-sst-2-english"`
	APIKey   string        `yaml:"-" env:"CLASSIFIER_API_KEY,HF_API_TOKEN,OPENAI_API_KEY,ANTHROPIC_API_KEY"`
	Timeout  time.Duration `yaml:"timeout" env:"CLASSIFIER_TIMEOUT" env-default:"30s"`

	// BreakerThreshold consecutive failures open the circuit for BreakerReset.
	BreakerThreshold int           `yaml:"breaker_threshold" env:"CLASSIFIER_BREAKER_THRESHOLD" env-default:"5"`
	BreakerReset     time.Duration `yaml:"breaker_reset" env:"CLASSIFIER_BREAKER_RESET" env-default:"30s"`
}

// IngestionConfig configures the daily ingestion driver.
type IngestionConfig struct {
	Workers      int           `yaml:"workers" env:"INGESTION_WORKERS" env-default:"4"`
	BacklogDays  int           `yaml:"backlog_days" env:"INGESTION_BACKLOG_DAYS" env-default:"7"`
	Interval     time.Duration `yaml:"interval" env:"INGESTION_INTERVAL" env-default:"24h"`
	BacklogOnRun bool          `yaml:"backlog_on_start" env:"INGESTION_BACKLOG_ON_START" env-default:"false"`
	Scheduler    bool          `yaml:"scheduler" env:"INGESTION_SCHEDULER" env-default:"true"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// TracingConfig toggles the OpenTelemetry stdout exporter.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" env:"TRACING_ENABLED" env-default:"false"`
}

// Load reads configuration from path with environment variable overrides.
// A missing file is not an error: every field then comes from the environment
// or its default. The version parameter is injected at build time.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	cfg.Auth.JWKSEndpoints = parseJWKSEndpoints(cfg.Auth.JWKSEndpointsStr)
	cfg.Database.Host = containerHost(cfg.Database.Host)
	cfg.Redis.Host = containerHost(cfg.Redis.Host)
	if cfg.Classifier.Provider == ClassifierHuggingFace && cfg.Classifier.Endpoint == "" {
		cfg.Classifier.Endpoint = DefaultHuggingFaceEndpoint
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// Validate checks cross-field constraints cleanenv cannot express.
func (c *Config) Validate() error {
	switch c.Classifier.Provider {
	case ClassifierHuggingFace, ClassifierOpenAI, ClassifierAnthropic:
	default:
		return fmt.Errorf("unknown classifier provider %q", c.Classifier.Provider)
	}
	if c.Ingestion.Workers < 1 {
		return fmt.Errorf("ingestion workers must be at least 1, got %d", c.Ingestion.Workers)
	}
	if c.Ingestion.BacklogDays < 1 {
		return fmt.Errorf("backlog days must be at least 1, got %d", c.Ingestion.BacklogDays)
	}
	return nil
}

// inContainer reports whether the process runs inside Docker. Cached after first use.
var inContainer = sync.OnceValue(func() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
})

// containerHost rewrites loopback hosts to host.docker.internal when running
// in a container so local Postgres and Redis stay reachable.
func containerHost(host string) string {
	if !inContainer() {
		return host
	}
	if host == "localhost" || host == "127.0.0.1" {
		return "host.docker.internal"
	}
	return host
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	for _, pair := range strings.Split(value, ",") {
		issuer, jwksURL, ok := strings.Cut(pair, "=")
		if ok {
			endpoints[strings.TrimSpace(issuer)] = strings.TrimSpace(jwksURL)
		}
	}
	return endpoints
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the connection string in URL form, as required by golang-migrate.
func (c *DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// Addr returns the host:port address of the Redis server.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ListenAddr returns the address the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return c.BindAddr + ":" + c.Port
}
