package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Log      LogConfig
	Bid      BidConfig
	Session  SessionConfig
	Exports  ExportsConfig
}

type DatabaseConfig struct {
	Enabled      bool
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	// ConnectTimeout bounds the initial dial; StatementTimeout caps every
	// trip pool query server side.
	ConnectTimeout   time.Duration
	StatementTimeout time.Duration
}

type RedisConfig struct {
	Host        string
	Port        int
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
	OpTimeout   time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// BidConfig tunes the bid compiler pipeline.
type BidConfig struct {
	RulesFile           string
	CandidateBudget     int
	SearchBudget        time.Duration
	Concurrency         int
	MaxLayers           int
	ConfidenceThreshold float64
	CreditTarget        float64
	TripLength          int
}

// SessionConfig controls retention of compile results for explain/export follow-ups.
type SessionConfig struct {
	Backend       string
	IdleTTL       time.Duration
	Capacity      int
	SweepInterval time.Duration
}

// ExportsConfig controls on-disk archival of rendered bid exports.
type ExportsConfig struct {
	ArchiveEnabled    bool
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Enabled:      v.GetBool("ENABLE_PAIRING_DB"),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),

		ConnectTimeout:   parseDuration(v.GetString("DB_CONNECT_TIMEOUT"), 5*time.Second),
		StatementTimeout: parseDuration(v.GetString("DB_STATEMENT_TIMEOUT"), 2*time.Second),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),

		PoolSize:    v.GetInt("REDIS_POOL_SIZE"),
		DialTimeout: parseDuration(v.GetString("REDIS_DIAL_TIMEOUT"), 5*time.Second),
		OpTimeout:   parseDuration(v.GetString("REDIS_OP_TIMEOUT"), 500*time.Millisecond),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Bid = BidConfig{
		RulesFile:           v.GetString("BID_RULES_FILE"),
		CandidateBudget:     v.GetInt("BID_CANDIDATE_BUDGET"),
		SearchBudget:        parseDuration(v.GetString("BID_SEARCH_BUDGET"), 2*time.Second),
		Concurrency:         v.GetInt("BID_CONCURRENCY"),
		MaxLayers:           v.GetInt("BID_MAX_LAYERS"),
		ConfidenceThreshold: v.GetFloat64("BID_CONFIDENCE_THRESHOLD"),
		CreditTarget:        v.GetFloat64("BID_CREDIT_TARGET"),
		TripLength:          v.GetInt("BID_TRIP_LENGTH"),
	}

	cfg.Session = SessionConfig{
		Backend:       strings.ToLower(v.GetString("BID_SESSION_BACKEND")),
		IdleTTL:       parseDuration(v.GetString("BID_SESSION_IDLE_TTL"), 30*time.Minute),
		Capacity:      v.GetInt("BID_SESSION_CAPACITY"),
		SweepInterval: parseDuration(v.GetString("BID_SESSION_SWEEP_INTERVAL"), time.Minute),
	}

	cfg.Exports = ExportsConfig{
		ArchiveEnabled:    v.GetBool("ENABLE_EXPORT_ARCHIVE"),
		StorageDir:        v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval:   parseDuration(v.GetString("EXPORTS_CLEANUP_INTERVAL"), time.Hour),
		WorkerConcurrency: v.GetInt("EXPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("EXPORTS_WORKER_RETRIES"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("ENABLE_PAIRING_DB", false)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "crew_bids")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONNECT_TIMEOUT", "5s")
	v.SetDefault("DB_STATEMENT_TIMEOUT", "2s")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_OP_TIMEOUT", "500ms")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("BID_RULES_FILE", "")
	v.SetDefault("BID_CANDIDATE_BUDGET", 24)
	v.SetDefault("BID_SEARCH_BUDGET", "2s")
	v.SetDefault("BID_CONCURRENCY", 4)
	v.SetDefault("BID_MAX_LAYERS", 7)
	v.SetDefault("BID_CONFIDENCE_THRESHOLD", 0.6)
	v.SetDefault("BID_CREDIT_TARGET", 75.0)
	v.SetDefault("BID_TRIP_LENGTH", 3)

	v.SetDefault("BID_SESSION_BACKEND", SessionBackendMemory)
	v.SetDefault("BID_SESSION_IDLE_TTL", "30m")
	v.SetDefault("BID_SESSION_CAPACITY", 1024)
	v.SetDefault("BID_SESSION_SWEEP_INTERVAL", "1m")

	v.SetDefault("ENABLE_EXPORT_ARCHIVE", false)
	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("EXPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("EXPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("EXPORTS_WORKER_RETRIES", 3)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
