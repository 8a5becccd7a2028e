package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for the entitlement service.
// It merges file defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string
	MaxDBConns  int32

	// AuthPublicKeyPEM verifies access tokens minted by the authentication
	// service. This service never signs tokens.
	AuthPublicKeyPEM string
	AuthIssuer       string

	StripeAPIKey    string
	PremiumCacheTTL time.Duration

	IdentifyBaseURL string
	IdentifyAPIKey  string
	IdentifyTimeout time.Duration

	UnregisteredMax int
	RegisteredMax   int
	DeviceCeiling   int

	ReconcileSessionTTL time.Duration

	EventStreamPrefix string
	EventStreamMaxLen int64

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxClaimTTL     time.Duration
	OutboxMaxRetries   int

	RetentionInterval time.Duration
	RetainWindows     int
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// It is intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
	} `yaml:"dependencies"`
	Auth struct {
		PublicKeyPEM string `yaml:"public_key_pem"`
		Issuer       string `yaml:"issuer"`
	} `yaml:"auth"`
	Identify struct {
		BaseURL        string `yaml:"base_url"`
		APIKey         string `yaml:"api_key"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"identify"`
	Limits struct {
		UnregisteredMax int `yaml:"unregistered_max"`
		RegisteredMax   int `yaml:"registered_max"`
		DeviceCeiling   int `yaml:"device_ceiling"`
	} `yaml:"limits"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// This order keeps local bootstrap simple while allowing environment-specific overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:           "entitlement-service",
		HTTPPort:            8080,
		GRPCPort:            9090,
		MaxDBConns:          20,
		AuthIssuer:          "verdantlabs-auth",
		PremiumCacheTTL:     30 * time.Second,
		IdentifyTimeout:     20 * time.Second,
		UnregisteredMax:     3,
		RegisteredMax:       5,
		DeviceCeiling:       5,
		ReconcileSessionTTL: 12 * time.Hour,
		EventStreamPrefix:   "usage:events",
		EventStreamMaxLen:   100000,
		OutboxPollInterval:  2 * time.Second,
		OutboxBatchSize:     100,
		OutboxClaimTTL:      30 * time.Second,
		OutboxMaxRetries:    5,
		RetentionInterval:   6 * time.Hour,
		RetainWindows:       3,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if f.Auth.PublicKeyPEM != "" {
			cfg.AuthPublicKeyPEM = f.Auth.PublicKeyPEM
		}
		if f.Auth.Issuer != "" {
			cfg.AuthIssuer = f.Auth.Issuer
		}
		if f.Identify.BaseURL != "" {
			cfg.IdentifyBaseURL = f.Identify.BaseURL
		}
		if f.Identify.APIKey != "" {
			cfg.IdentifyAPIKey = f.Identify.APIKey
		}
		if f.Identify.TimeoutSeconds > 0 {
			cfg.IdentifyTimeout = time.Duration(f.Identify.TimeoutSeconds) * time.Second
		}
		if f.Limits.UnregisteredMax > 0 {
			cfg.UnregisteredMax = f.Limits.UnregisteredMax
		}
		if f.Limits.RegisteredMax > 0 {
			cfg.RegisteredMax = f.Limits.RegisteredMax
		}
		if f.Limits.DeviceCeiling > 0 {
			cfg.DeviceCeiling = f.Limits.DeviceCeiling
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.AuthPublicKeyPEM = envOrDefault("AUTH_PUBLIC_KEY_PEM", cfg.AuthPublicKeyPEM)
	cfg.AuthIssuer = envOrDefault("AUTH_ISSUER", cfg.AuthIssuer)
	cfg.StripeAPIKey = envOrDefault("STRIPE_API_KEY", cfg.StripeAPIKey)
	cfg.IdentifyBaseURL = envOrDefault("IDENTIFY_BASE_URL", cfg.IdentifyBaseURL)
	cfg.IdentifyAPIKey = envOrDefault("IDENTIFY_API_KEY", cfg.IdentifyAPIKey)
	cfg.EventStreamPrefix = envOrDefault("EVENT_STREAM_PREFIX", cfg.EventStreamPrefix)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.UnregisteredMax = envInt("LIMIT_UNREGISTERED_MAX", cfg.UnregisteredMax)
	cfg.RegisteredMax = envInt("LIMIT_REGISTERED_MAX", cfg.RegisteredMax)
	cfg.DeviceCeiling = envInt("LIMIT_DEVICE_CEILING", cfg.DeviceCeiling)
	cfg.EventStreamMaxLen = int64(envInt("EVENT_STREAM_MAX_LEN", int(cfg.EventStreamMaxLen)))
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)
	cfg.RetainWindows = envInt("RETENTION_RETAIN_WINDOWS", cfg.RetainWindows)

	cfg.PremiumCacheTTL = time.Duration(envInt("PREMIUM_CACHE_TTL_SECONDS", int(cfg.PremiumCacheTTL.Seconds()))) * time.Second
	cfg.IdentifyTimeout = time.Duration(envInt("IDENTIFY_TIMEOUT_SECONDS", int(cfg.IdentifyTimeout.Seconds()))) * time.Second
	cfg.ReconcileSessionTTL = time.Duration(envInt("RECONCILE_SESSION_TTL_HOURS", int(cfg.ReconcileSessionTTL.Hours()))) * time.Hour
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxClaimTTL = time.Duration(envInt("OUTBOX_CLAIM_TTL_SECONDS", int(cfg.OutboxClaimTTL.Seconds()))) * time.Second
	cfg.RetentionInterval = time.Duration(envInt("RETENTION_INTERVAL_HOURS", int(cfg.RetentionInterval.Hours()))) * time.Hour

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if cfg.AuthPublicKeyPEM == "" {
		return Config{}, fmt.Errorf("missing AUTH_PUBLIC_KEY_PEM")
	}
	if cfg.IdentifyBaseURL == "" {
		return Config{}, fmt.Errorf("missing IDENTIFY_BASE_URL")
	}

	return cfg, nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
