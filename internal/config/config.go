// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCHealthAddr is the address of the gRPC health endpoint; empty disables it.
	GRPCHealthAddr string `mapstructure:"GRPC_HEALTH_ADDR"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the zap level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// CORSOrigins is a comma-separated list of allowed browser origins; "*" allows any.
	CORSOrigins string `mapstructure:"CORS_ORIGINS"`

	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// SupabaseURL is the project URL; JWKS is fetched from <SupabaseURL>/auth/v1/.well-known/jwks.json
	// and the token issuer must be <SupabaseURL>/auth/v1.
	SupabaseURL string `mapstructure:"SUPABASE_URL"`
	// JWTAudience is the aud claim required on access tokens (Supabase uses "authenticated").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTPublicKey is a PEM public key or path to one; when set it is used instead of JWKS.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTPrivateKey is a PEM private key or path, used only by cmd/seed to mint dev tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`

	// ModelDir holds the YAML model artifacts.
	ModelDir string `mapstructure:"MODEL_DIR"`

	// OllamaHost is the local LLM server base URL (e.g. http://ollama:11434).
	OllamaHost string `mapstructure:"OLLAMA_HOST"`
	// OllamaModel is the default local model.
	OllamaModel string `mapstructure:"OLLAMA_MODEL"`
	// OllamaTimeout is the local LLM request timeout (e.g. "60s").
	OllamaTimeout string `mapstructure:"OLLAMA_TIMEOUT"`
	// GeminiAPIKey enables the gemini provider when set.
	GeminiAPIKey string `mapstructure:"GEMINI_API_KEY"`
	// GeminiBaseURL is the OpenAI-compatible Gemini endpoint.
	GeminiBaseURL string `mapstructure:"GEMINI_BASE_URL"`
	// GeminiModel is the default Gemini model.
	GeminiModel string `mapstructure:"GEMINI_MODEL"`
	// EdgeFunctionURL enables the edge provider when set.
	EdgeFunctionURL string `mapstructure:"EDGE_FUNCTION_URL"`
	// EdgeFunctionKey is sent as the bearer key to the edge function.
	EdgeFunctionKey string `mapstructure:"EDGE_FUNCTION_KEY"`
	// AIDefaultProvider is used when a request names no provider (local, gemini, edge).
	AIDefaultProvider string `mapstructure:"AI_DEFAULT_PROVIDER"`
	// AICacheCapacity is the response cache size; the cache is cleared when it fills up.
	AICacheCapacity int `mapstructure:"AI_CACHE_CAPACITY"`
	// AIMaxRetries is the number of attempts made on HTTP 429.
	AIMaxRetries int `mapstructure:"AI_MAX_RETRIES"`
	// AIRateLimitRPS is the per-user request rate allowed on AI routes; 0 disables limiting.
	AIRateLimitRPS float64 `mapstructure:"AI_RATE_LIMIT_RPS"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for telemetry events.
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
	// ActionsKafkaTopic is the Kafka topic automation actions are queued on; empty delivers inline.
	ActionsKafkaTopic string `mapstructure:"ACTIONS_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is where the worker pushes telemetry (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// OTLPEndpoint is the OTLP gRPC collector; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// EmailAPIURL is the transactional email HTTP endpoint used by email actions.
	EmailAPIURL string `mapstructure:"EMAIL_API_URL"`
	// EmailAPIKey is the bearer key for EmailAPIURL.
	EmailAPIKey string `mapstructure:"EMAIL_API_KEY"`
	// EmailFrom is the sender address.
	EmailFrom string `mapstructure:"EMAIL_FROM"`
	// WebhookAllowPrivate lets webhook actions reach loopback and private addresses (local development only).
	WebhookAllowPrivate bool `mapstructure:"WEBHOOK_ALLOW_PRIVATE"`

	// PowerBITenantID, PowerBIClientID and PowerBIClientSecret configure the client-credentials flow.
	PowerBITenantID     string `mapstructure:"POWERBI_TENANT_ID"`
	PowerBIClientID     string `mapstructure:"POWERBI_CLIENT_ID"`
	PowerBIClientSecret string `mapstructure:"POWERBI_CLIENT_SECRET"`

	// AutomationInterval is how often the worker sweeps all companies' rules (e.g. "5m"); empty disables the sweep.
	AutomationInterval string `mapstructure:"AUTOMATION_INTERVAL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("GRPC_HEALTH_ADDR", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SUPABASE_URL", "")
	v.SetDefault("JWT_AUDIENCE", "authenticated")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("MODEL_DIR", "models")
	v.SetDefault("OLLAMA_HOST", "http://ollama:11434")
	v.SetDefault("OLLAMA_MODEL", "llama3.1")
	v.SetDefault("OLLAMA_TIMEOUT", "60s")
	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai/")
	v.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")
	v.SetDefault("EDGE_FUNCTION_URL", "")
	v.SetDefault("EDGE_FUNCTION_KEY", "")
	v.SetDefault("AI_DEFAULT_PROVIDER", "local")
	v.SetDefault("AI_CACHE_CAPACITY", 100)
	v.SetDefault("AI_MAX_RETRIES", 3)
	v.SetDefault("AI_RATE_LIMIT_RPS", 2.0)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "bizlens-telemetry")
	v.SetDefault("ACTIONS_KAFKA_TOPIC", "")
	v.SetDefault("KAFKA_GROUP_ID", "bizlens-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("EMAIL_API_URL", "")
	v.SetDefault("EMAIL_API_KEY", "")
	v.SetDefault("EMAIL_FROM", "alerts@bizlens.local")
	v.SetDefault("WEBHOOK_ALLOW_PRIVATE", false)
	v.SetDefault("POWERBI_TENANT_ID", "")
	v.SetDefault("POWERBI_CLIENT_ID", "")
	v.SetDefault("POWERBI_CLIENT_SECRET", "")
	v.SetDefault("AUTOMATION_INTERVAL", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.JWTPrivateKey != "" && cfg.Env == "production" {
		return nil, errors.New("config: JWT_PRIVATE_KEY must not be set when APP_ENV=production")
	}
	if cfg.WebhookAllowPrivate && cfg.Env == "production" {
		return nil, errors.New("config: WEBHOOK_ALLOW_PRIVATE must not be set when APP_ENV=production")
	}
	if cfg.AICacheCapacity < 1 {
		return nil, errors.New("config: AI_CACHE_CAPACITY must be at least 1")
	}
	if cfg.AIMaxRetries < 1 || cfg.AIMaxRetries > 10 {
		return nil, errors.New("config: AI_MAX_RETRIES must be between 1 and 10")
	}
	switch cfg.AIDefaultProvider {
	case "local", "gemini", "edge":
	default:
		return nil, errors.New("config: AI_DEFAULT_PROVIDER must be one of local, gemini, edge")
	}

	cfg.SupabaseURL = strings.TrimSuffix(strings.TrimSpace(cfg.SupabaseURL), "/")
	return &cfg, nil
}

// AuthEnabled reports whether access tokens can be validated (JWKS or a static public key).
func (c *Config) AuthEnabled() bool {
	return c != nil && (c.SupabaseURL != "" || strings.TrimSpace(c.JWTPublicKey) != "")
}

// JWTIssuer returns the issuer Supabase puts on access tokens, or "" when no project URL is set.
func (c *Config) JWTIssuer() string {
	if c == nil || c.SupabaseURL == "" {
		return ""
	}
	return c.SupabaseURL + "/auth/v1"
}

// JWKSURL returns the Supabase JWKS endpoint, or "" when no project URL is set.
func (c *Config) JWKSURL() string {
	if c == nil || c.SupabaseURL == "" {
		return ""
	}
	return c.SupabaseURL + "/auth/v1/.well-known/jwks.json"
}

// OllamaTimeoutDuration parses OllamaTimeout. Returns 60s if unset or invalid.
func (c *Config) OllamaTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.OllamaTimeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// AutomationIntervalDuration parses AutomationInterval. Returns 0 (sweep disabled) if unset or invalid.
func (c *Config) AutomationIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.AutomationInterval)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if Kafka is enabled (non-empty list) and to create producers and readers.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// CORSOriginsList returns the allowed origins from the comma-separated config.
func (c *Config) CORSOriginsList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.CORSOrigins)
}

// PowerBIEnabled reports whether all Power BI client-credentials settings are present.
func (c *Config) PowerBIEnabled() bool {
	return c != nil && c.PowerBITenantID != "" && c.PowerBIClientID != "" && c.PowerBIClientSecret != ""
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
