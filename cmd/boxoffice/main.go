package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MarkoPoloResearchLab/boxoffice/internal/config"
	"github.com/MarkoPoloResearchLab/boxoffice/internal/intake"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix   = "BOXOFFICE"
	flagEnvFile = "env-file"

	flagListenAddr             = "listen-addr"
	flagGRPCListenAddr         = "grpc-listen-addr"
	flagAllowedOrigins         = "allowed-origins"
	flagRequestTimeout         = "request-timeout"
	flagShutdownTimeout        = "shutdown-timeout"
	flagDatabaseDriver         = "database-driver"
	flagDatabaseURL            = "database-url"
	flagStoreBackend           = "store-backend"
	flagAutoMigrate            = "auto-migrate"
	flagRedisAddr              = "redis-addr"
	flagRedisPassword          = "redis-password"
	flagRedisDB                = "redis-db"
	flagRedisTLS               = "redis-tls"
	flagCacheTimeout           = "cache-timeout"
	flagIntakeTransport        = "intake-transport"
	flagAMQPURL                = "amqp-url"
	flagIntakePartitions       = "intake-partitions"
	flagIntakeBuffer           = "intake-buffer"
	flagDropPolicy             = "drop-policy"
	flagIntakeMaxAttempts      = "intake-max-attempts"
	flagDeadLetterLimit        = "dead-letter-limit"
	flagReservationTTL         = "reservation-ttl"
	flagReaperInterval         = "reaper-interval"
	flagReaperBatchSize        = "reaper-batch-size"
	flagCacheReconcileInterval = "cache-reconcile-interval"
	flagLogLevel               = "log-level"
	flagLogFormat              = "log-format"
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "boxoffice: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &config.Config{}
	rootCmd := &cobra.Command{
		Use:           "boxoffice",
		Short:         "Concert ticket booking and inventory service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
	}
	registerFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the intake workers, background sweeps, HTTP API and gRPC health server",
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return runServe(ctx, *cfg)
			},
		},
		&cobra.Command{
			Use:   "reap",
			Short: "Run one expiration sweep and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return runReap(ctx, *cfg)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd.Context(), *cfg)
			},
		},
	)
	return rootCmd
}

func registerFlags(flags *pflag.FlagSet) {
	flags.String(flagEnvFile, ".env", "optional dotenv file loaded before reading the environment")

	flags.String(flagListenAddr, "", "HTTP listen address (default :8080)")
	flags.String(flagGRPCListenAddr, "", "gRPC health listen address (default :9090)")
	flags.String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	flags.Duration(flagRequestTimeout, 0, "per-request timeout (default 5s)")
	flags.Duration(flagShutdownTimeout, 0, "graceful shutdown budget (default 10s)")

	flags.String(flagDatabaseDriver, "", "postgres, mysql or sqlite (default sqlite)")
	flags.String(flagDatabaseURL, "", "database DSN; a file path for sqlite (default boxoffice.db)")
	flags.String(flagStoreBackend, "", "gorm or pgx (pgx requires postgres; default gorm)")
	flags.Bool(flagAutoMigrate, false, "migrate the schema on serve start")

	flags.String(flagRedisAddr, "", "Redis host:port for the stock cache; empty disables the cache")
	flags.String(flagRedisPassword, "", "Redis password")
	flags.Int(flagRedisDB, 0, "Redis database number")
	flags.Bool(flagRedisTLS, false, "connect to Redis over TLS")
	flags.Duration(flagCacheTimeout, 0, "stock cache round-trip budget (default 250ms)")

	flags.String(flagIntakeTransport, "", "memory or amqp (default memory)")
	flags.String(flagAMQPURL, "", "RabbitMQ URL for the amqp intake transport")
	flags.Int(flagIntakePartitions, 0, "number of category-ordered intake partitions (default 8)")
	flags.Int(flagIntakeBuffer, 0, "per-partition buffer for the memory transport (default 256)")
	flags.String(flagDropPolicy, string(intake.DropDiscard), "discard, dead_letter or retry")
	flags.Int(flagIntakeMaxAttempts, 0, "delivery budget for the retry drop policy (default 3)")
	flags.Int(flagDeadLetterLimit, 0, "in-memory dead letters kept (default 1000)")

	flags.Duration(flagReservationTTL, 0, "how long PENDING reservations hold stock (default 5m)")
	flags.Duration(flagReaperInterval, 0, "expiration sweep interval (default 60s)")
	flags.Int(flagReaperBatchSize, 0, "expired reservations loaded per sweep (default 500)")
	flags.Duration(flagCacheReconcileInterval, 0, "stock cache reconciliation interval; zero disables")

	flags.String(flagLogLevel, "", "log level (default info)")
	flags.String(flagLogFormat, "", "json or console (default json)")
}

func loadConfig(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	envFile, err := flags.GetString(flagEnvFile)
	if err != nil {
		return err
	}
	if err := loadEnvFile(envFile, flags.Changed(flagEnvFile)); err != nil {
		return err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	var bindErr error
	flags.VisitAll(func(flag *pflag.Flag) {
		if bindErr == nil {
			bindErr = v.BindPFlag(flag.Name, flag)
		}
	})
	if bindErr != nil {
		return bindErr
	}

	cfg.ListenAddr = strings.TrimSpace(v.GetString(flagListenAddr))
	cfg.GRPCListenAddr = strings.TrimSpace(v.GetString(flagGRPCListenAddr))
	cfg.AllowedOrigins = config.ParseAllowedOrigins(v.GetString(flagAllowedOrigins))
	cfg.RequestTimeout = v.GetDuration(flagRequestTimeout)
	cfg.ShutdownTimeout = v.GetDuration(flagShutdownTimeout)

	cfg.DatabaseDriver = strings.TrimSpace(v.GetString(flagDatabaseDriver))
	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.StoreBackend = strings.TrimSpace(v.GetString(flagStoreBackend))
	cfg.AutoMigrate = v.GetBool(flagAutoMigrate)

	cfg.RedisAddr = strings.TrimSpace(v.GetString(flagRedisAddr))
	cfg.RedisPassword = v.GetString(flagRedisPassword)
	cfg.RedisDB = v.GetInt(flagRedisDB)
	cfg.RedisTLS = v.GetBool(flagRedisTLS)
	cfg.CacheTimeout = v.GetDuration(flagCacheTimeout)

	cfg.IntakeTransport = strings.TrimSpace(v.GetString(flagIntakeTransport))
	cfg.AMQPURL = strings.TrimSpace(v.GetString(flagAMQPURL))
	cfg.IntakePartitions = v.GetInt(flagIntakePartitions)
	cfg.IntakeBuffer = v.GetInt(flagIntakeBuffer)
	cfg.DropPolicy = intake.DropPolicy(v.GetString(flagDropPolicy))
	cfg.IntakeMaxAttempts = v.GetInt(flagIntakeMaxAttempts)
	cfg.DeadLetterLimit = v.GetInt(flagDeadLetterLimit)

	cfg.ReservationTTL = v.GetDuration(flagReservationTTL)
	cfg.ReaperInterval = v.GetDuration(flagReaperInterval)
	cfg.ReaperBatchSize = v.GetInt(flagReaperBatchSize)
	cfg.CacheReconcileInterval = v.GetDuration(flagCacheReconcileInterval)

	cfg.LogLevel = strings.TrimSpace(v.GetString(flagLogLevel))
	cfg.LogFormat = strings.TrimSpace(v.GetString(flagLogFormat))

	return cfg.Validate()
}

// loadEnvFile reads a dotenv file without overriding variables already set.
// A missing default file is not an error; an explicitly named one is.
func loadEnvFile(path string, explicit bool) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("env file %s: %w", path, err)
	}
	return nil
}
