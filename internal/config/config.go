package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingDatabaseDSN  = errors.New("DB_DSN is required")
	ErrMissingOpenAIKey    = errors.New("OPENAI_API_KEY is required")
	ErrMissingSupabaseURL  = errors.New("SUPABASE_URL is required")
	ErrMissingSupabaseKeys = errors.New("SUPABASE_ANON_KEY and SUPABASE_SERVICE_ROLE_KEY are required")
)

type Config struct {
	HTTP     HTTPConfig
	DB       DBConfig
	Redis    RedisConfig
	Supabase SupabaseConfig
	OpenAI   OpenAIConfig
	Log      LogConfig
}

type HTTPConfig struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
	HealthPath      string
	MetricsPath     string
}

type DBConfig struct {
	Driver        string
	DSN           string
	AutoMigrate   bool
	MigrationsDir string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	UsageTTL time.Duration
}

type SupabaseConfig struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
	StorageBucket  string
}

type OpenAIConfig struct {
	APIKey           string
	BaseURL          string
	ChatModel        string
	FallbackModel    string
	AssistantModel   string
	ClientTimeout    time.Duration
	MaxRetries       int
	BackoffBase      time.Duration
	PollInterval     time.Duration
	RunTimeout       time.Duration
	IndexTimeout     time.Duration
	FileWaitTimeout  time.Duration
	MaxResponseBytes int64
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			ListenAddr:      mustEnv("HTTP_LISTEN_ADDR", ":8080"),
			ReadTimeout:     mustDuration("HTTP_READ_TIMEOUT", 30*time.Second),
			ShutdownTimeout: mustDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
			HealthPath:      mustEnv("HEALTH_PATH", "/healthz"),
			MetricsPath:     mustEnv("METRICS_PATH", "/metrics"),
		},
		DB: DBConfig{
			Driver:        strings.ToLower(mustEnv("DB_DRIVER", "postgres")),
			DSN:           mustEnv("DB_DSN", ""),
			AutoMigrate:   mustBool("AUTO_MIGRATE", true),
			MigrationsDir: mustEnv("MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     mustEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: mustEnv("REDIS_PASSWORD", ""),
			DB:       mustInt("REDIS_DB", 0),
			UsageTTL: mustDuration("USAGE_COUNTER_TTL", 48*time.Hour),
		},
		Supabase: SupabaseConfig{
			URL:            strings.TrimSuffix(mustEnv("SUPABASE_URL", ""), "/"),
			AnonKey:        mustEnv("SUPABASE_ANON_KEY", ""),
			ServiceRoleKey: mustEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
			StorageBucket:  mustEnv("SUPABASE_STORAGE_BUCKET", "admin-uploads"),
		},
		OpenAI: OpenAIConfig{
			APIKey:           mustEnv("OPENAI_API_KEY", ""),
			BaseURL:          strings.TrimSuffix(mustEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
			ChatModel:        mustEnv("OPENAI_CHAT_MODEL", "gpt-4"),
			FallbackModel:    mustEnv("OPENAI_FALLBACK_MODEL", "gpt-3.5-turbo"),
			AssistantModel:   mustEnv("OPENAI_ASSISTANT_MODEL", "gpt-4-turbo-preview"),
			ClientTimeout:    mustDuration("OPENAI_HTTP_TIMEOUT", 60*time.Second),
			MaxRetries:       mustInt("OPENAI_MAX_RETRIES", 2),
			BackoffBase:      mustDuration("OPENAI_BACKOFF_BASE", 400*time.Millisecond),
			PollInterval:     mustDuration("OPENAI_POLL_INTERVAL", time.Second),
			RunTimeout:       mustDuration("OPENAI_RUN_TIMEOUT", 60*time.Second),
			IndexTimeout:     mustDuration("OPENAI_INDEX_TIMEOUT", 60*time.Second),
			FileWaitTimeout:  mustDuration("OPENAI_FILE_WAIT_TIMEOUT", 60*time.Second),
			MaxResponseBytes: int64(mustInt("OPENAI_MAX_RESPONSE_BYTES", 4<<20)),
		},
		Log: LogConfig{
			Level: strings.ToLower(mustEnv("LOG_LEVEL", "info")),
		},
	}

	if cfg.DB.DSN == "" {
		return nil, ErrMissingDatabaseDSN
	}
	if cfg.OpenAI.APIKey == "" {
		return nil, ErrMissingOpenAIKey
	}
	if cfg.Supabase.URL == "" {
		return nil, ErrMissingSupabaseURL
	}
	if cfg.Supabase.AnonKey == "" || cfg.Supabase.ServiceRoleKey == "" {
		return nil, ErrMissingSupabaseKeys
	}

	return cfg, nil
}

func mustEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func mustInt(key string, def int) int {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func mustBool(key string, def bool) bool {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func mustDuration(key string, def time.Duration) time.Duration {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
