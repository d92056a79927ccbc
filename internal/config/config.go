package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Cache drivers.
const (
	CacheSQLite   = "sqlite"
	CachePostgres = "postgres"
	CacheMemory   = "memory"
)

// Config aggregates runtime configuration for the messenger client and the development backend.
type Config struct {
	Client      ClientConfig
	Credentials CredentialsConfig
	Cache       CacheConfig
	Server      ServerConfig
	Postgres    PostgresConfig
	MinIO       MinIOConfig
	Auth        AuthConfig
	Metrics     MetricsConfig
	LogLevel    string
}

// ClientConfig parameterizes the outgoing request pipeline.
type ClientConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	RefreshTimeout time.Duration
}

// CredentialsConfig locates the durable credential file.
type CredentialsConfig struct {
	Path string
}

// CacheConfig selects the profile cache.
type CacheConfig struct {
	Driver     string
	SQLitePath string
}

// ServerConfig parameterizes the HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PostgresConfig contains PostgreSQL connection details. An empty Host disables Postgres.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// MaxConns caps the pool; zero keeps the pgx default.
	MaxConns        int32
	ApplicationName string
}

// Enabled reports whether a PostgreSQL host is configured.
func (p PostgresConfig) Enabled() bool {
	return p.Host != ""
}

// DSN returns the PostgreSQL DSN string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// MinIOConfig carries MinIO connection and bucket information. An empty Endpoint
// keeps avatars in memory.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
	PresignTTL      time.Duration
}

// Enabled reports whether a MinIO endpoint is configured.
func (m MinIOConfig) Enabled() bool {
	return m.Endpoint != ""
}

// AuthConfig groups the development backend's token settings.
type AuthConfig struct {
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	BcryptCost         int
	// DevCode, when set, is the code every send-auth-code issues.
	DevCode string
	CodeTTL time.Duration
}

// MetricsConfig groups observability settings.
type MetricsConfig struct {
	PrometheusPath string
}

// Load reads configuration values from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Client: ClientConfig{
			BaseURL:        strings.TrimRight(getString("MESSENGER_API_URL", "http://localhost:8080"), "/"),
			RequestTimeout: getDuration("MESSENGER_REQUEST_TIMEOUT", 30*time.Second),
			RefreshTimeout: getDuration("MESSENGER_REFRESH_TIMEOUT", 30*time.Second),
		},
		Credentials: CredentialsConfig{
			Path: getString("MESSENGER_CREDENTIALS_PATH", filepath.Join(stateDir(), "credentials.json")),
		},
		Cache: CacheConfig{
			Driver:     strings.ToLower(getString("MESSENGER_CACHE_DRIVER", CacheSQLite)),
			SQLitePath: getString("MESSENGER_CACHE_PATH", filepath.Join(stateDir(), "profile.db")),
		},
		Server: ServerConfig{
			Host:         getString("MESSENGER_DEVAPI_HOST", "0.0.0.0"),
			Port:         getInt("MESSENGER_DEVAPI_PORT", 8080),
			ReadTimeout:  getDuration("MESSENGER_DEVAPI_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDuration("MESSENGER_DEVAPI_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getDuration("MESSENGER_DEVAPI_IDLE_TIMEOUT", 60*time.Second),
		},
		Postgres: PostgresConfig{
			Host:     getString("POSTGRES_HOST", ""),
			Port:     getInt("POSTGRES_PORT", 5432),
			User:     getString("POSTGRES_USER", "messenger"),
			Password: getString("POSTGRES_PASSWORD", "change-me"),
			Database: getString("POSTGRES_DB", "messenger"),
			SSLMode:  strings.ToLower(getString("POSTGRES_SSL_MODE", "disable")),
			MaxConns: int32(getInt("POSTGRES_MAX_CONNS", 0)),
		},
		MinIO: MinIOConfig{
			Endpoint:        getString("MINIO_ENDPOINT", ""),
			AccessKeyID:     getString("MINIO_ROOT_USER", "messenger"),
			SecretAccessKey: getString("MINIO_ROOT_PASSWORD", "change-me-strong-password"),
			Bucket:          getString("MINIO_BUCKET", "avatars"),
			UseSSL:          getBool("MINIO_USE_SSL", false),
			Region:          getString("MINIO_REGION", ""),
			PresignTTL:      getDuration("MINIO_PRESIGN_TTL", time.Hour),
		},
		Auth: loadAuthConfig(),
		Metrics: MetricsConfig{
			PrometheusPath: getString("MESSENGER_METRICS_PATH", "/metrics"),
		},
		LogLevel: getString("LOG_LEVEL", "info"),
	}

	switch cfg.Cache.Driver {
	case CacheSQLite, CacheMemory:
	case CachePostgres:
		if !cfg.Postgres.Enabled() {
			return Config{}, fmt.Errorf("cache driver %q requires POSTGRES_HOST", cfg.Cache.Driver)
		}
	default:
		return Config{}, fmt.Errorf("unknown cache driver %q", cfg.Cache.Driver)
	}

	return cfg, nil
}

func stateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "messenger")
	}
	return ".messenger"
}

func getString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.ToLower(strings.TrimSpace(val))
		switch val {
		case "1", "true", "t", "yes", "y":
			return true
		case "0", "false", "f", "no", "n":
			return false
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func loadAuthConfig() AuthConfig {
	cost := getInt("MESSENGER_AUTH_BCRYPT_COST", 10)
	if cost < 4 || cost > 31 {
		cost = 10
	}

	return AuthConfig{
		AccessTokenSecret:  getString("MESSENGER_JWT_SECRET", "change-me-to-a-32-byte-secret"),
		RefreshTokenSecret: getString("MESSENGER_JWT_REFRESH_SECRET", "change-me-to-a-64-byte-secret"),
		AccessTokenTTL:     getDuration("MESSENGER_AUTH_ACCESS_TOKEN_TTL", 10*time.Minute),
		RefreshTokenTTL:    getDuration("MESSENGER_AUTH_REFRESH_TOKEN_TTL", 720*time.Hour),
		BcryptCost:         cost,
		DevCode:            getString("MESSENGER_AUTH_DEV_CODE", "133337"),
		CodeTTL:            getDuration("MESSENGER_AUTH_CODE_TTL", 5*time.Minute),
	}
}
