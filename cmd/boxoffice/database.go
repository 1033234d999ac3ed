package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarkoPoloResearchLab/boxoffice/internal/config"
	"github.com/MarkoPoloResearchLab/boxoffice/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/boxoffice/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/boxoffice/pkg/booking"
	"github.com/glebarez/sqlite"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultSQLiteFile = "boxoffice.db"

// storeHandle is an opened booking store plus its liveness probe and cleanup.
type storeHandle struct {
	store   booking.Store
	ping    func(ctx context.Context) error
	cleanup func()
}

func openStore(ctx context.Context, cfg config.Config) (storeHandle, error) {
	if cfg.StoreBackend == config.BackendPgx {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return storeHandle{}, fmt.Errorf("pgx pool: %w", err)
		}
		store := pgstore.New(pool)
		return storeHandle{store: store, ping: store.Ping, cleanup: pool.Close}, nil
	}
	db, cleanup, err := openDatabase(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return storeHandle{}, err
	}
	store := gormstore.New(db)
	return storeHandle{
		store:   store,
		ping:    store.Ping,
		cleanup: func() { _ = cleanup() },
	}, nil
}

func openDatabase(ctx context.Context, driver string, dsn string) (*gorm.DB, func() error, error) {
	gormConfig := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	var (
		db  *gorm.DB
		err error
	)
	switch driver {
	case config.DriverPostgres:
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	case config.DriverMySQL:
		mysqlDSN, dsnErr := normalizeMySQLDSN(dsn)
		if dsnErr != nil {
			return nil, nil, dsnErr
		}
		db, err = gorm.Open(gormmysql.Open(mysqlDSN), gormConfig)
	case config.DriverSQLite:
		sqlitePath, pathErr := resolveSQLitePath(dsn)
		if pathErr != nil {
			return nil, nil, pathErr
		}
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormConfig)
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("database open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	if driver == config.DriverSQLite {
		// sqlite serializes writers; one connection keeps conditional
		// updates from failing with SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, nil
}

// normalizeMySQLDSN forces the options the store relies on: RowsAffected
// must count matched rows and DATETIME columns must scan into time.Time.
func normalizeMySQLDSN(dsn string) (string, error) {
	parsed, err := mysql.ParseDSN(strings.TrimPrefix(dsn, "mysql://"))
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	parsed.ClientFoundRows = true
	parsed.ParseTime = true
	return parsed.FormatDSN(), nil
}

func resolveSQLitePath(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = defaultSQLiteFile
		}
		return normalizeSQLitePath(path)
	}
	return normalizeSQLitePath(dsn)
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	relative := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(relative), 0o755); err != nil {
		return "", err
	}
	return relative, nil
}

func migrateSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(gormstore.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func runMigrate(ctx context.Context, cfg config.Config) error {
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, cleanup, err := openDatabase(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()
	if err := migrateSchema(db); err != nil {
		return err
	}
	log.Info("schema migrated")
	return nil
}
