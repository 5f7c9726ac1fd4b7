// Package config loads the gateway's configuration the way the teacher's
// internal/shared/config does: a nested struct populated from
// environment variables, with a best-effort godotenv.Load() for local
// development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config aggregates every env-driven knob listed in spec.md §6.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Store    ObjectStoreConfig
	LLM      LLMConfig
	WhatsApp WhatsAppConfig
	MCP      MCPConfig
	Security SecurityConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Environment string // "production" or "development"
	LogLevel    string
	Port        string
	CORSOrigin  string
}

type DatabaseConfig struct {
	Driver string // "postgres" or "sqlite"
	DSN    string
}

type ObjectStoreConfig struct {
	CloudName        string
	APIKey           string
	APISecret        string
	Folder           string
	MaxUploadBytes   int64
	AllowedMimeTypes []string
}

type LLMConfig struct {
	OpenAIAPIKey    string
	GeminiAPIKey    string
	DefaultProvider string
	ToolLoopDepth   int
}

type WhatsAppConfig struct {
	AuthDir           string
	CacheDir          string
	MaxReconnects     int
	ReconnectBaseWait int // seconds
}

type MCPConfig struct {
	HandshakeTimeoutSeconds int
	IdleTimeoutMinutes      int
}

type SecurityConfig struct {
	JWTSecret string
}

type RateLimitConfig struct {
	GlobalPerWindow int
	AuthPerWindow   int
	WindowMinutes   int
}

// Load reads configuration from the environment (after a best-effort
// .env load, matching the teacher's utils.LoadConfig) and validates the
// fields THE CORE cannot run without. A missing required variable causes
// cmd/gateway to exit 1 per spec.md §6.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional; absence of .env is not an error

	cfg := &Config{
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			Port:        getEnv("APP_PORT", "8080"),
			CORSOrigin:  getEnv("CORS_ORIGIN", "*"),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "sqlite"),
			DSN:    getEnv("DB_DSN", "file:gateway.db?_foreign_keys=on"),
		},
		Store: ObjectStoreConfig{
			CloudName:        os.Getenv("CLOUDINARY_CLOUD_NAME"),
			APIKey:           os.Getenv("CLOUDINARY_API_KEY"),
			APISecret:        os.Getenv("CLOUDINARY_API_SECRET"),
			Folder:           getEnv("CLOUDINARY_FOLDER", "chatgateway"),
			MaxUploadBytes:   getEnvInt64("MAX_UPLOAD_BYTES", 20*1024*1024),
			AllowedMimeTypes: getEnvList("ALLOWED_UPLOAD_MIME_TYPES", []string{"image/png", "image/jpeg", "image/webp", "image/gif"}),
		},
		LLM: LLMConfig{
			OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
			GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
			DefaultProvider: getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			ToolLoopDepth:   int(getEnvInt64("LLM_TOOL_LOOP_DEPTH", 10)),
		},
		WhatsApp: WhatsAppConfig{
			AuthDir:           getEnv("WHATSAPP_AUTH_DIR", "./.wwebjs_auth"),
			CacheDir:          getEnv("WHATSAPP_CACHE_DIR", "./.wwebjs_cache"),
			MaxReconnects:     int(getEnvInt64("WHATSAPP_MAX_RECONNECTS", 5)),
			ReconnectBaseWait: int(getEnvInt64("WHATSAPP_RECONNECT_BASE_SECONDS", 5)),
		},
		MCP: MCPConfig{
			HandshakeTimeoutSeconds: int(getEnvInt64("MCP_HANDSHAKE_TIMEOUT_SECONDS", 10)),
			IdleTimeoutMinutes:      int(getEnvInt64("MCP_IDLE_TIMEOUT_MINUTES", 10)),
		},
		Security: SecurityConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		RateLimit: RateLimitConfig{
			GlobalPerWindow: int(getEnvInt64("RATE_LIMIT_GLOBAL", 100)),
			AuthPerWindow:   int(getEnvInt64("RATE_LIMIT_AUTH", 20)),
			WindowMinutes:   int(getEnvInt64("RATE_LIMIT_WINDOW_MINUTES", 15)),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("config: DB_DSN is required")
	}
	if c.LLM.OpenAIAPIKey == "" && c.LLM.GeminiAPIKey == "" {
		return fmt.Errorf("config: at least one of OPENAI_API_KEY or GEMINI_API_KEY is required")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
