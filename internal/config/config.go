// Package config holds the runtime settings of the boxoffice process.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/internal/intake"
	"github.com/MarkoPoloResearchLab/boxoffice/pkg/booking"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"

	BackendGorm = "gorm"
	BackendPgx  = "pgx"

	TransportMemory = "memory"
	TransportAMQP   = "amqp"

	defaultListenAddr      = ":8080"
	defaultGRPCListenAddr  = ":9090"
	defaultAllowedOrigin   = "http://localhost:3000"
	defaultRequestTimeout  = 5 * time.Second
	defaultSQLiteDSN       = "boxoffice.db"
	defaultReaperInterval  = 60 * time.Second
	defaultDeadLetterLimit = 1000
	defaultShutdownTimeout = 10 * time.Second
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
)

// ErrInvalidConfig reports a setting that cannot be used.
var ErrInvalidConfig = errors.New("invalid config")

// Config aggregates runtime settings for every boxoffice command.
type Config struct {
	ListenAddr      string
	GRPCListenAddr  string
	AllowedOrigins  []string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	DatabaseDriver string
	DatabaseURL    string
	StoreBackend   string
	AutoMigrate    bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool
	CacheTimeout  time.Duration

	IntakeTransport   string
	AMQPURL           string
	IntakePartitions  int
	IntakeBuffer      int
	DropPolicy        intake.DropPolicy
	IntakeMaxAttempts int
	DeadLetterLimit   int

	ReservationTTL         time.Duration
	ReaperInterval         time.Duration
	ReaperBatchSize        int
	CacheReconcileInterval time.Duration

	LogLevel  string
	LogFormat string
}

// Validate applies defaults and rejects inconsistent settings.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.GRPCListenAddr = defaultIfEmpty(cfg.GRPCListenAddr, defaultGRPCListenAddr)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	cfg.RequestTimeout = defaultDuration(cfg.RequestTimeout, defaultRequestTimeout)
	cfg.ShutdownTimeout = defaultDuration(cfg.ShutdownTimeout, defaultShutdownTimeout)

	cfg.DatabaseDriver = strings.ToLower(defaultIfEmpty(cfg.DatabaseDriver, DriverSQLite))
	if cfg.DatabaseDriver == DriverSQLite {
		cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultSQLiteDSN)
	}
	cfg.StoreBackend = strings.ToLower(defaultIfEmpty(cfg.StoreBackend, BackendGorm))
	cfg.CacheTimeout = defaultDuration(cfg.CacheTimeout, booking.DefaultCacheTimeout)

	cfg.IntakeTransport = strings.ToLower(defaultIfEmpty(cfg.IntakeTransport, TransportMemory))
	if cfg.IntakePartitions <= 0 {
		cfg.IntakePartitions = intake.DefaultPartitions
	}
	if cfg.IntakeBuffer <= 0 {
		cfg.IntakeBuffer = intake.DefaultPartitionBuffer
	}
	if cfg.IntakeMaxAttempts <= 0 {
		cfg.IntakeMaxAttempts = intake.DefaultMaxAttempts
	}
	if cfg.DeadLetterLimit <= 0 {
		cfg.DeadLetterLimit = defaultDeadLetterLimit
	}
	policy, err := intake.ParseDropPolicy(string(cfg.DropPolicy))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.DropPolicy = policy

	cfg.ReservationTTL = defaultDuration(cfg.ReservationTTL, booking.DefaultReservationTTL)
	cfg.ReaperInterval = defaultDuration(cfg.ReaperInterval, defaultReaperInterval)
	if cfg.ReaperBatchSize <= 0 {
		cfg.ReaperBatchSize = booking.DefaultReaperBatchSize
	}
	if cfg.CacheReconcileInterval < 0 {
		return fmt.Errorf("%w: cache reconcile interval must not be negative", ErrInvalidConfig)
	}

	cfg.LogLevel = defaultIfEmpty(cfg.LogLevel, defaultLogLevel)
	cfg.LogFormat = defaultIfEmpty(cfg.LogFormat, defaultLogFormat)

	switch cfg.DatabaseDriver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("%w: unsupported database driver %q", ErrInvalidConfig, cfg.DatabaseDriver)
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return fmt.Errorf("%w: database url is required for %s", ErrInvalidConfig, cfg.DatabaseDriver)
	}
	switch cfg.StoreBackend {
	case BackendGorm:
	case BackendPgx:
		if cfg.DatabaseDriver != DriverPostgres {
			return fmt.Errorf("%w: the pgx store backend requires the postgres driver", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported store backend %q", ErrInvalidConfig, cfg.StoreBackend)
	}
	switch cfg.IntakeTransport {
	case TransportMemory:
	case TransportAMQP:
		if strings.TrimSpace(cfg.AMQPURL) == "" {
			return fmt.Errorf("%w: amqp url is required for the amqp intake transport", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported intake transport %q", ErrInvalidConfig, cfg.IntakeTransport)
	}
	if cfg.RedisDB < 0 {
		return fmt.Errorf("%w: redis db must not be negative", ErrInvalidConfig)
	}
	return nil
}

// CacheEnabled reports whether a Redis stock cache is configured.
func (cfg Config) CacheEnabled() bool {
	return strings.TrimSpace(cfg.RedisAddr) != ""
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

func defaultDuration(value time.Duration, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
