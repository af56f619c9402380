// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for the admin middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// RedisConfig provides the shared Redis connection used for dedup windows.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides settings for the asynq client and worker.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetWebhookRetention() time.Duration
}

// WhatsAppConfig provides settings for the messaging gateway.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppTimeout() time.Duration
}

// LLMConfig provides settings for the completion provider.
type LLMConfig interface {
	GetLLMAPIKey() string
	GetLLMBaseURL() string
	GetLLMModel() string
	GetLLMTimeout() time.Duration
	IsLLMEnabled() bool
}

// ConversationConfig provides tuning for the conversation engine.
type ConversationConfig interface {
	GetMaxToolSteps() int
	GetDefaultTimezone() string
	GetCancellationLeadTime() time.Duration
	GetSettingsCacheTTL() time.Duration
}

// WebhookConfig provides settings for inbound webhook handling.
type WebhookConfig interface {
	GetWebhookToken() string
	GetDedupWindow() time.Duration
}

// MinIOConfig provides settings for the fiscal document bucket.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketFiscalDocuments() string
	IsMinIOEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                        string
	HTTPAddr                   string
	DatabaseURL                string
	MigrationsDir              string
	JWTAccessSecret            string
	CORSAllowAll               bool
	CORSOrigins                []string
	RedisURL                   string
	RedisTLSInsecure           bool
	AsynqQueueName             string
	AsynqConcurrency           int
	WebhookRetention           time.Duration
	WhatsAppURL                string
	WhatsAppKey                string
	WhatsAppTimeout            time.Duration
	LLMAPIKey                  string
	LLMBaseURL                 string
	LLMModel                   string
	LLMTimeout                 time.Duration
	MaxToolSteps               int
	DefaultTimezone            string
	CancellationLeadTime       time.Duration
	SettingsCacheTTL           time.Duration
	WebhookToken               string
	DedupWindow                time.Duration
	MinIOEndpoint              string
	MinIOAccessKey             string
	MinIOSecretKey             string
	MinIOUseSSL                bool
	MinioBucketFiscalDocuments string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// RedisConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }

// SchedulerConfig implementation
func (c *Config) GetAsynqQueueName() string          { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int           { return c.AsynqConcurrency }
func (c *Config) GetWebhookRetention() time.Duration { return c.WebhookRetention }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppURL() string            { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string            { return c.WhatsAppKey }
func (c *Config) GetWhatsAppTimeout() time.Duration { return c.WhatsAppTimeout }

// LLMConfig implementation
func (c *Config) GetLLMAPIKey() string         { return c.LLMAPIKey }
func (c *Config) GetLLMBaseURL() string        { return c.LLMBaseURL }
func (c *Config) GetLLMModel() string          { return c.LLMModel }
func (c *Config) GetLLMTimeout() time.Duration { return c.LLMTimeout }
func (c *Config) IsLLMEnabled() bool           { return c.LLMAPIKey != "" }

// ConversationConfig implementation
func (c *Config) GetMaxToolSteps() int                   { return c.MaxToolSteps }
func (c *Config) GetDefaultTimezone() string             { return c.DefaultTimezone }
func (c *Config) GetCancellationLeadTime() time.Duration { return c.CancellationLeadTime }
func (c *Config) GetSettingsCacheTTL() time.Duration     { return c.SettingsCacheTTL }

// WebhookConfig implementation
func (c *Config) GetWebhookToken() string       { return c.WebhookToken }
func (c *Config) GetDedupWindow() time.Duration { return c.DedupWindow }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string  { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool      { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketFiscalDocuments() string {
	return c.MinioBucketFiscalDocuments
}
func (c *Config) IsMinIOEnabled() bool { return c.MinIOEndpoint != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                        getEnv("APP_ENV", "development"),
		HTTPAddr:                   getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:                getEnv("DATABASE_URL", ""),
		MigrationsDir:              getEnv("MIGRATIONS_DIR", "migrations"),
		JWTAccessSecret:            getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:               corsAllowAll,
		CORSOrigins:                corsOrigins,
		RedisURL:                   getEnv("REDIS_URL", ""),
		RedisTLSInsecure:           strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:             getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:           mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		WebhookRetention:           mustDuration(getEnv("WEBHOOK_RETENTION", "720h")),
		WhatsAppURL:                getEnv("WHATSAPP_URL", ""),
		WhatsAppKey:                getEnv("WHATSAPP_KEY", ""),
		WhatsAppTimeout:            mustDuration(getEnv("WHATSAPP_TIMEOUT", "10s")),
		LLMAPIKey:                  getEnv("LLM_API_KEY", ""),
		LLMBaseURL:                 getEnv("LLM_BASE_URL", "https://api.moonshot.ai/v1"),
		LLMModel:                   getEnv("LLM_MODEL", "kimi-k2-turbo-preview"),
		LLMTimeout:                 mustDuration(getEnv("LLM_TIMEOUT", "25s")),
		MaxToolSteps:               mustInt(getEnv("ASSISTANT_MAX_TOOL_STEPS", "4")),
		DefaultTimezone:            getEnv("DEFAULT_TIMEZONE", "America/Sao_Paulo"),
		CancellationLeadTime:       mustDuration(getEnv("CANCELLATION_LEAD_TIME", "1h")),
		SettingsCacheTTL:           mustDuration(getEnv("TENANT_SETTINGS_TTL", "60s")),
		WebhookToken:               getEnv("WEBHOOK_TOKEN", ""),
		DedupWindow:                mustDuration(getEnv("WEBHOOK_DEDUP_WINDOW", "2m")),
		MinIOEndpoint:              getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:             getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:             getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:                strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketFiscalDocuments: getEnv("MINIO_BUCKET_FISCAL_DOCUMENTS", "fiscal-documents"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.MaxToolSteps < 1 || cfg.MaxToolSteps > 6 {
		return nil, fmt.Errorf("ASSISTANT_MAX_TOOL_STEPS must be between 1 and 6")
	}
	if cfg.DedupWindow <= 0 {
		return nil, fmt.Errorf("WEBHOOK_DEDUP_WINDOW must be a positive duration")
	}
	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		return nil, fmt.Errorf("DEFAULT_TIMEZONE is invalid: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
