package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Providers     ProvidersConfig
	Decision      DecisionConfig
	RateLimit     RateLimitConfig
	Cache         CacheConfig
	Storage       StorageConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration // zero keeps SSE responses open
	RequestTimeout  time.Duration // applied to non-streaming routes only
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
// An empty config selects the in-memory record store.
type DatabaseConfig struct {
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// Provider identifiers accepted by HEPHAESTUS_PROVIDER and request bodies
const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
	ProviderLocal  = "local"
	ProviderCustom = "custom"
)

// ProvidersConfig holds every backend's settings plus the active selection
type ProvidersConfig struct {
	Active  string // HEPHAESTUS_PROVIDER
	OpenAI  OpenAIConfig
	Azure   AzureConfig
	Local   LocalConfig
	Custom  CustomConfig
	Timeout time.Duration
}

// OpenAIConfig holds OpenAI provider configuration
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	AnalysisModel   string
	TranscribeModel string
	Instructions    string
}

// AzureConfig holds Azure OpenAI provider configuration
type AzureConfig struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// LocalConfig holds the self-hosted model endpoint
type LocalConfig struct {
	Endpoint string
}

// CustomConfig holds the custom HTTP provider endpoint and optional auth header
type CustomConfig struct {
	Endpoint   string
	AuthHeader string
	AuthValue  string
}

// DecisionConfig holds the remote decision service settings
type DecisionConfig struct {
	ServiceURL string
	Timeout    time.Duration
	Enabled    bool
}

// RateLimitConfig holds the per ip:path request budget
type RateLimitConfig struct {
	WindowMs int
	Max      int
}

// Window returns the rate limit window as a duration
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowMs) * time.Millisecond
}

// CacheConfig holds response cache settings.
// RedisURL selects the shared redis backend instead of the in-process LRU.
type CacheConfig struct {
	TTL             time.Duration
	MaxEntries      int
	RedisURL        string
	CleanupInterval time.Duration
}

// StorageConfig holds local upload storage settings
type StorageConfig struct {
	UploadDir      string
	MaxUploadBytes int64
}

// AuthConfig holds optional bearer token verification settings
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// Enabled reports whether API routes require a bearer token
func (c AuthConfig) Enabled() bool {
	return c.JWTSecret != ""
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 0),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: loadDatabaseConfig(),
		Providers: ProvidersConfig{
			Active: strings.ToLower(getEnv("HEPHAESTUS_PROVIDER", ProviderOpenAI)),
			OpenAI: OpenAIConfig{
				APIKey:          getEnv("OPENAI_API_KEY", ""),
				BaseURL:         getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Model:           getEnv("OPENAI_MODEL", "gpt-4o-mini"),
				AnalysisModel:   getEnv("OPENAI_ANALYSIS_MODEL", ""),
				TranscribeModel: getEnv("OPENAI_TRANSCRIBE_MODEL", "gpt-4o-mini-transcribe"),
				Instructions:    getEnv("OPENAI_INSTRUCTIONS", ""),
			},
			Azure: AzureConfig{
				APIKey:     getEnv("AZURE_OPENAI_API_KEY", ""),
				Endpoint:   getEnv("AZURE_OPENAI_ENDPOINT", ""),
				Deployment: getEnv("AZURE_OPENAI_DEPLOYMENT", ""),
				APIVersion: getEnv("AZURE_OPENAI_API_VERSION", ""),
			},
			Local: LocalConfig{
				Endpoint: getEnv("LOCAL_MODEL_ENDPOINT", ""),
			},
			Custom: CustomConfig{
				Endpoint:   getEnv("CUSTOM_PROVIDER_ENDPOINT", ""),
				AuthHeader: getEnv("CUSTOM_PROVIDER_AUTH_HEADER", ""),
				AuthValue:  getEnv("CUSTOM_PROVIDER_AUTH_VALUE", ""),
			},
			Timeout: getEnvAsDuration("PROVIDER_TIMEOUT", 120*time.Second),
		},
		Decision: DecisionConfig{
			ServiceURL: getEnv("AI_SERVICE_URL", "http://localhost:8000"),
			Timeout:    getEnvAsDuration("AI_SERVICE_TIMEOUT", 1800*time.Millisecond),
			Enabled:    getEnvAsBool("AI_SERVICE_ENABLED", true),
		},
		RateLimit: RateLimitConfig{
			WindowMs: getEnvAsInt("RATE_LIMIT_WINDOW_MS", 60000),
			Max:      getEnvAsInt("RATE_LIMIT_MAX", 60),
		},
		Cache: CacheConfig{
			TTL:             getEnvAsDuration("CACHE_TTL", 30*time.Second),
			MaxEntries:      getEnvAsInt("CACHE_MAX_ENTRIES", 1024),
			RedisURL:        getEnv("REDIS_URL", ""),
			CleanupInterval: getEnvAsDuration("CACHE_CLEANUP_INTERVAL", time.Minute),
		},
		Storage: StorageConfig{
			UploadDir:      getEnv("UPLOAD_DIR", "storage/uploads"),
			MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_BYTES", 10<<20)),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			Issuer:    getEnv("AUTH_JWT_ISSUER", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings the process cannot start without.
// Provider credentials are not checked here; see Issues.
func (c *Config) Validate() error {
	if c.RateLimit.WindowMs <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_MS must be a positive number")
	}
	if c.RateLimit.Max <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must be a positive number")
	}
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	return nil
}

// Issues lists every configuration problem for operator display.
// Unlike Validate, it reports missing credentials for the active provider.
func (c *Config) Issues() []string {
	var issues []string
	p := c.Providers

	if c.Decision.ServiceURL == "" {
		issues = append(issues, "AI_SERVICE_URL is required.")
	}

	switch p.ActiveOrDefault() {
	case ProviderOpenAI:
		if p.OpenAI.APIKey == "" {
			issues = append(issues, "OPENAI_API_KEY is required when HEPHAESTUS_PROVIDER=openai.")
		}
	case ProviderAzure:
		if p.Azure.APIKey == "" {
			issues = append(issues, "AZURE_OPENAI_API_KEY is required when HEPHAESTUS_PROVIDER=azure.")
		}
		if p.Azure.Endpoint == "" {
			issues = append(issues, "AZURE_OPENAI_ENDPOINT is required when HEPHAESTUS_PROVIDER=azure.")
		}
		if p.Azure.Deployment == "" {
			issues = append(issues, "AZURE_OPENAI_DEPLOYMENT is required when HEPHAESTUS_PROVIDER=azure.")
		}
	case ProviderLocal:
		if p.Local.Endpoint == "" {
			issues = append(issues, "LOCAL_MODEL_ENDPOINT is required when HEPHAESTUS_PROVIDER=local.")
		}
	case ProviderCustom:
		if p.Custom.Endpoint == "" {
			issues = append(issues, "CUSTOM_PROVIDER_ENDPOINT is required when HEPHAESTUS_PROVIDER=custom.")
		}
	}

	if c.RateLimit.WindowMs <= 0 {
		issues = append(issues, "RATE_LIMIT_WINDOW_MS must be a positive number.")
	}
	if c.RateLimit.Max <= 0 {
		issues = append(issues, "RATE_LIMIT_MAX must be a positive number.")
	}

	return issues
}

// ActiveOrDefault returns the lower-cased active provider, defaulting to openai
func (p ProvidersConfig) ActiveOrDefault() string {
	active := strings.ToLower(strings.TrimSpace(p.Active))
	if active == "" {
		return ProviderOpenAI
	}
	return active
}

// OpenAIConfigured reports whether the primary hosted provider has credentials
func (p ProvidersConfig) OpenAIConfigured() bool {
	return p.OpenAI.APIKey != ""
}

// AzureConfigured reports whether the regional provider has key, endpoint and deployment
func (p ProvidersConfig) AzureConfigured() bool {
	return p.Azure.APIKey != "" && p.Azure.Endpoint != "" && p.Azure.Deployment != ""
}

// LocalConfigured reports whether the self-hosted endpoint is set
func (p ProvidersConfig) LocalConfigured() bool {
	return p.Local.Endpoint != ""
}

// CustomConfigured reports whether the custom endpoint is set
func (p ProvidersConfig) CustomConfigured() bool {
	return p.Custom.Endpoint != ""
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Enabled reports whether a PostgreSQL store is configured
func (c *DatabaseConfig) Enabled() bool {
	return c.ConnectionString != "" || c.Host != ""
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password)
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars.
// Leaving both unset selects the in-memory store.
func loadDatabaseConfig() DatabaseConfig {
	pool := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		pool.ConnectionString = dbURL
		return pool
	}
	pool.Host = getEnv("DB_HOST", "")
	pool.Port = getEnvAsInt("DB_PORT", 5432)
	pool.User = getEnv("DB_USER", "hephaestus")
	pool.Password = getEnv("DB_PASSWORD", "")
	pool.Database = getEnv("DB_NAME", "hephaestus")
	pool.SSLMode = getEnv("DB_SSLMODE", "disable")
	return pool
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 4000)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 4000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
