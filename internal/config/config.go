package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	AI       AIConfig       `mapstructure:"ai"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Push     PushConfig     `mapstructure:"push"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Company  CompanyConfig  `mapstructure:"company"`
	Clamd    ClamdConfig    `mapstructure:"clamd"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int      `mapstructure:"port"`
	Env            string   `mapstructure:"env"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// Attempts allowed per client IP within RateLimitWindow.
	LoginRateLimit      int           `mapstructure:"login_rate_limit"`
	SubmissionRateLimit int           `mapstructure:"submission_rate_limit"`
	RateLimitWindow     time.Duration `mapstructure:"rate_limit_window"`
}

// IsProduction reports whether internal error detail must be hidden from clients.
func (a APIConfig) IsProduction() bool {
	return strings.EqualFold(a.Env, "production")
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds the redis connection used for rate limits, token revocation and pub/sub.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// StorageConfig selects the object storage backend for uploaded documents.
type StorageConfig struct {
	Provider string      `mapstructure:"provider"`
	MinIO    MinIOConfig `mapstructure:"minio"`
	GCS      GCSConfig   `mapstructure:"gcs"`
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Bucket          string `mapstructure:"bucket"`
}

// GCSConfig contains Google Cloud Storage options.
type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// JWTConfig carries PEM-encoded RSA keys and token lifetimes.
type JWTConfig struct {
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	AccessTTL      time.Duration `mapstructure:"access_ttl"`
	RefreshTTL     time.Duration `mapstructure:"refresh_ttl"`
}

// AIConfig configures the external analysis service.
type AIConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// SMTPConfig configures the outbound email transport.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// Enabled reports whether an SMTP relay is configured.
func (s SMTPConfig) Enabled() bool {
	return s.Host != ""
}

// PushConfig selects the push transport.
type PushConfig struct {
	Provider        string `mapstructure:"provider"`
	CredentialsFile string `mapstructure:"credentials_file"`
	TelegramToken   string `mapstructure:"telegram_token"`
}

// NotifyConfig controls notification dispatch.
type NotifyConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	AdminUserIDs []uint        `mapstructure:"admin_user_ids"`
}

// CompanyConfig controls the company credential setup flow.
type CompanyConfig struct {
	SetPasswordURL string        `mapstructure:"set_password_url"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
}

// ClamdConfig points at an optional clamd daemon used to scan uploads.
type ClamdConfig struct {
	Address string `mapstructure:"address"`
}

// UploadConfig bounds accepted uploads.
type UploadConfig struct {
	MaxCVBytes int64 `mapstructure:"max_cv_bytes"`
}

// WorkerConfig holds asynq server settings.
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration from defaults, an optional config file, .env and the environment.
func Load() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// viper does not split comma separated env values into a []uint.
	if raw := os.Getenv("NOTIFY_ADMIN_USER_IDS"); raw != "" {
		ids, err := parseIDList(raw)
		if err != nil {
			return nil, fmt.Errorf("parse NOTIFY_ADMIN_USER_IDS: %w", err)
		}
		cfg.Notify.AdminUserIDs = ids
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadDatabase resolves only the database section, for tools that never talk to
// redis, storage or the AI service.
func LoadDatabase() (DatabaseConfig, error) {
	v, err := newViper()
	if err != nil {
		return DatabaseConfig{}, err
	}
	// UnmarshalKey skips env bindings of nested keys, so decode the whole tree.
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return DatabaseConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validateDatabase(cfg.Database); err != nil {
		return DatabaseConfig{}, err
	}
	return cfg.Database, nil
}

func newViper() (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}
	return v, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.env", "development")
	v.SetDefault("api.login_rate_limit", 10)
	v.SetDefault("api.submission_rate_limit", 5)
	v.SetDefault("api.rate_limit_window", time.Minute)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "jobgate")
	v.SetDefault("database.user", "jobgate")
	v.SetDefault("database.password", "jobgate")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("storage.provider", "minio")
	v.SetDefault("storage.minio.endpoint", "localhost:9000")
	v.SetDefault("storage.minio.use_ssl", false)
	v.SetDefault("storage.minio.bucket", "jobgate")
	v.SetDefault("jwt.private_key_path", "keys/jwt_private.pem")
	v.SetDefault("jwt.public_key_path", "keys/jwt_public.pem")
	v.SetDefault("jwt.access_ttl", 24*time.Hour)
	v.SetDefault("jwt.refresh_ttl", 7*24*time.Hour)
	v.SetDefault("ai.base_url", "http://localhost:8000")
	v.SetDefault("ai.max_retries", 2)
	v.SetDefault("ai.retry_delay", 500*time.Millisecond)
	v.SetDefault("ai.timeout", 30*time.Second)
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "no-reply@jobgate.local")
	v.SetDefault("push.provider", "none")
	v.SetDefault("notify.timeout", 10*time.Second)
	v.SetDefault("company.set_password_url", "http://localhost:3000/company/set-password")
	v.SetDefault("company.token_ttl", 72*time.Hour)
	v.SetDefault("upload.max_cv_bytes", 10<<20)
	v.SetDefault("worker.concurrency", 5)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                        "API_PORT",
		"api.env":                         "APP_ENV",
		"api.allowed_origins":             "API_ALLOWED_ORIGINS",
		"api.login_rate_limit":            "API_LOGIN_RATE_LIMIT",
		"api.submission_rate_limit":       "API_SUBMISSION_RATE_LIMIT",
		"api.rate_limit_window":           "API_RATE_LIMIT_WINDOW",
		"database.host":                   "DATABASE_HOST",
		"database.port":                   "DATABASE_PORT",
		"database.name":                   "POSTGRES_DB",
		"database.user":                   "POSTGRES_USER",
		"database.password":               "POSTGRES_PASSWORD",
		"database.sslmode":                "DATABASE_SSLMODE",
		"redis.host":                      "REDIS_HOST",
		"redis.port":                      "REDIS_PORT",
		"redis.password":                  "REDIS_PASSWORD",
		"storage.provider":                "STORAGE_PROVIDER",
		"storage.minio.endpoint":          "MINIO_ENDPOINT",
		"storage.minio.access_key_id":     "MINIO_ACCESS_KEY_ID",
		"storage.minio.secret_access_key": "MINIO_SECRET_ACCESS_KEY",
		"storage.minio.use_ssl":           "MINIO_USE_SSL",
		"storage.minio.bucket":            "MINIO_BUCKET",
		"storage.gcs.bucket":              "GCS_BUCKET",
		"storage.gcs.credentials_file":    "GOOGLE_APPLICATION_CREDENTIALS",
		"jwt.private_key_path":            "JWT_PRIVATE_KEY_PATH",
		"jwt.public_key_path":             "JWT_PUBLIC_KEY_PATH",
		"jwt.access_ttl":                  "JWT_ACCESS_TTL",
		"jwt.refresh_ttl":                 "JWT_REFRESH_TTL",
		"ai.base_url":                     "AI_SERVICE_URL",
		"ai.api_key":                      "AI_SERVICE_API_KEY",
		"ai.max_retries":                  "AI_SERVICE_MAX_RETRIES",
		"ai.retry_delay":                  "AI_SERVICE_RETRY_DELAY",
		"ai.timeout":                      "AI_SERVICE_TIMEOUT",
		"smtp.host":                       "SMTP_HOST",
		"smtp.port":                       "SMTP_PORT",
		"smtp.username":                   "SMTP_USERNAME",
		"smtp.password":                   "SMTP_PASSWORD",
		"smtp.from":                       "SMTP_FROM",
		"push.provider":                   "PUSH_PROVIDER",
		"push.credentials_file":           "FIREBASE_CREDENTIALS_FILE",
		"push.telegram_token":             "TELEGRAM_BOT_TOKEN",
		"notify.timeout":                  "NOTIFY_TIMEOUT",
		"company.set_password_url":        "COMPANY_SET_PASSWORD_URL",
		"company.token_ttl":               "COMPANY_TOKEN_TTL",
		"clamd.address":                   "CLAMD_ADDRESS",
		"upload.max_cv_bytes":             "UPLOAD_MAX_CV_BYTES",
		"worker.concurrency":              "WORKER_CONCURRENCY",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func parseIDList(raw string) ([]uint, error) {
	var ids []uint
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", part, err)
		}
		if id == 0 {
			return nil, errors.New("admin user id must be positive")
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.API.RateLimitWindow <= 0 {
		return errors.New("api rate limit window must be positive")
	}
	if err := validateDatabase(cfg.Database); err != nil {
		return err
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	switch cfg.Storage.Provider {
	case "minio":
		if cfg.Storage.MinIO.Endpoint == "" {
			return errors.New("minio endpoint is required")
		}
		if cfg.Storage.MinIO.AccessKeyID == "" {
			return errors.New("minio access key id is required")
		}
		if cfg.Storage.MinIO.SecretAccessKey == "" {
			return errors.New("minio secret access key is required")
		}
		if cfg.Storage.MinIO.Bucket == "" {
			return errors.New("minio bucket is required")
		}
	case "gcs":
		if cfg.Storage.GCS.Bucket == "" {
			return errors.New("gcs bucket is required")
		}
	default:
		return fmt.Errorf("unsupported storage provider %q", cfg.Storage.Provider)
	}
	if cfg.JWT.AccessTTL <= 0 || cfg.JWT.RefreshTTL <= 0 {
		return errors.New("jwt token ttl must be positive")
	}
	if cfg.AI.BaseURL == "" {
		return errors.New("ai base url is required")
	}
	if cfg.AI.MaxRetries < 0 {
		return errors.New("ai max retries must not be negative")
	}
	if cfg.AI.Timeout <= 0 {
		return errors.New("ai timeout must be positive")
	}
	switch cfg.Push.Provider {
	case "none":
	case "fcm":
		if cfg.Push.CredentialsFile == "" {
			return errors.New("firebase credentials file is required for fcm push")
		}
	case "telegram":
		if cfg.Push.TelegramToken == "" {
			return errors.New("telegram bot token is required for telegram push")
		}
	default:
		return fmt.Errorf("unsupported push provider %q", cfg.Push.Provider)
	}
	if cfg.Notify.Timeout <= 0 {
		return errors.New("notify timeout must be positive")
	}
	if cfg.Company.TokenTTL <= 0 {
		return errors.New("company token ttl must be positive")
	}
	if cfg.Upload.MaxCVBytes <= 0 {
		return errors.New("upload max cv bytes must be positive")
	}
	return nil
}

func validateDatabase(db DatabaseConfig) error {
	switch {
	case db.Host == "":
		return errors.New("database host is required")
	case db.Port <= 0:
		return errors.New("database port must be positive")
	case db.Name == "":
		return errors.New("database name is required")
	case db.User == "":
		return errors.New("database user is required")
	case db.Password == "":
		return errors.New("database password is required")
	case db.SSLMode == "":
		return errors.New("database sslmode is required")
	}
	return nil
}
