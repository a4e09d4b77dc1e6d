package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Storage      StorageConfig
	Workflow     WorkflowConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	PublicURL             string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ListenChanges  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token verification parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// NotificationConfig holds Microsoft Graph mail settings. An empty TenantID
// falls back to log-only delivery.
type NotificationConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	SenderEmail  string
	GraphBaseURL string
}

// StorageConfig holds S3-compatible blob storage settings. An empty Bucket
// falls back to in-memory storage.
type StorageConfig struct {
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

// WorkflowConfig tunes engine behavior.
type WorkflowConfig struct {
	IdempotencyTTLMinutes int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	listenChanges := getEnvAsBool("POSTGRES_LISTEN_CHANGES", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-workflow"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			PublicURL:             getEnv("APP_PUBLIC_URL", "http://localhost:8080"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ListenChanges:  listenChanges,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			TenantID:     os.Getenv("NOTIFY_GRAPH_TENANT_ID"),
			ClientID:     os.Getenv("NOTIFY_GRAPH_CLIENT_ID"),
			ClientSecret: os.Getenv("NOTIFY_GRAPH_CLIENT_SECRET"),
			SenderEmail:  getEnv("NOTIFY_SENDER_EMAIL", "noreply@example.com"),
			GraphBaseURL: getEnv("NOTIFY_GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0"),
		},
		Storage: StorageConfig{
			Bucket:        os.Getenv("STORAGE_BUCKET"),
			Region:        getEnv("STORAGE_REGION", "us-east-1"),
			Endpoint:      os.Getenv("STORAGE_ENDPOINT"),
			AccessKey:     os.Getenv("STORAGE_ACCESS_KEY"),
			SecretKey:     os.Getenv("STORAGE_SECRET_KEY"),
			PublicBaseURL: os.Getenv("STORAGE_PUBLIC_BASE_URL"),
		},
		Workflow: WorkflowConfig{
			IdempotencyTTLMinutes: getEnvAsInt("WORKFLOW_IDEMPOTENCY_TTL_MINUTES", 24*60),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the service cannot run with. The ticket board
// only learns about database writes through the change feed, so a configured
// database must keep listening.
func (c *Config) Validate() error {
	if c.Postgres.DSN != "" && !c.Postgres.ListenChanges {
		return errors.New("POSTGRES_LISTEN_CHANGES cannot be disabled while POSTGRES_DSN is set")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Enabled reports whether Graph credentials are present.
func (n NotificationConfig) Enabled() bool {
	return n.TenantID != "" && n.ClientID != "" && n.ClientSecret != ""
}

// IdempotencyTTL returns how long submission outcomes are remembered.
func (w WorkflowConfig) IdempotencyTTL() time.Duration {
	if w.IdempotencyTTLMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(w.IdempotencyTTLMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
