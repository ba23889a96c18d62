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
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Google   GoogleConfig
	Mail     MailConfig
	Storage  StorageConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
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

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret         string
	SessionTTLMinutes int
	CodeTTLMinutes    int
	CodeLength        int
	BcryptCost        int
	MinPasswordLength int
}

// GoogleConfig holds the OAuth client used for Google sign-in.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// MailConfig configures outbound SMTP. An empty Host selects the log mailer.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// StorageConfig points at the S3-compatible bucket holding profile photos.
type StorageConfig struct {
	Region           string
	Bucket           string
	Endpoint         string
	AccessKey        string
	SecretKey        string
	PresignTTLMinute int
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
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "quickbites-identity"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "4000"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:         os.Getenv("AUTH_JWT_SECRET"),
			SessionTTLMinutes: getEnvAsInt("AUTH_SESSION_TTL_MINUTES", 24*60),
			CodeTTLMinutes:    getEnvAsInt("AUTH_CODE_TTL_MINUTES", 5),
			CodeLength:        getEnvAsInt("AUTH_CODE_LENGTH", 6),
			BcryptCost:        getEnvAsInt("AUTH_BCRYPT_COST", 10),
			MinPasswordLength: getEnvAsInt("AUTH_MIN_PASSWORD_LENGTH", 8),
		},
		Google: GoogleConfig{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			RedirectURI:  getEnv("GOOGLE_REDIRECT_URI", "postmessage"),
		},
		Mail: MailConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("SMTP_FROM", "QuickBites <noreply@quickbites.local>"),
		},
		Storage: StorageConfig{
			Region:           getEnv("S3_REGION", "us-east-1"),
			Bucket:           os.Getenv("S3_BUCKET"),
			Endpoint:         os.Getenv("S3_ENDPOINT"),
			AccessKey:        os.Getenv("S3_ACCESS_KEY"),
			SecretKey:        os.Getenv("S3_SECRET_KEY"),
			PresignTTLMinute: getEnvAsInt("S3_PRESIGN_TTL_MINUTES", 15),
		},
	}

	if cfg.Auth.JWTSecret == "" && cfg.App.Env == "development" {
		cfg.Auth.JWTSecret = "dev-secret"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	}
	if c.Auth.CodeLength < 4 || c.Auth.CodeLength > 10 {
		errs = append(errs, fmt.Errorf("AUTH_CODE_LENGTH must be between 4 and 10, got %d", c.Auth.CodeLength))
	}
	if c.Auth.MinPasswordLength < 8 {
		errs = append(errs, fmt.Errorf("AUTH_MIN_PASSWORD_LENGTH must be at least 8, got %d", c.Auth.MinPasswordLength))
	}
	return errors.Join(errs...)
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

// SessionTTL is the validity window of a session token.
func (a AuthConfig) SessionTTL() time.Duration {
	if a.SessionTTLMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(a.SessionTTLMinutes) * time.Minute
}

// CodeTTL is the validity window of a one-time code.
func (a AuthConfig) CodeTTL() time.Duration {
	if a.CodeTTLMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(a.CodeTTLMinutes) * time.Minute
}

// Enabled reports whether Google sign-in is configured.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != ""
}

// PresignTTL is the lifetime of presigned photo URLs.
func (s StorageConfig) PresignTTL() time.Duration {
	if s.PresignTTLMinute <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.PresignTTLMinute) * time.Minute
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
