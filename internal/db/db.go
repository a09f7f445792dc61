// Package db opens the relational store, applies schema migrations and
// loads seed data.
package db

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	// Registers the postgres database driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/5vraa/swims.cc-website-sub000/internal/models"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Drivers accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Options controls how Open connects.
type Options struct {
	Driver  string
	DSN     string
	Debug   bool
	Retries int
	Backoff time.Duration
}

// Open connects to the configured database, retrying while postgres starts.
func Open(opts Options, log *slog.Logger) (*gorm.DB, error) {
	if opts.DSN == "" {
		return nil, errors.New("db: empty DSN")
	}
	if log == nil {
		log = slog.Default()
	}
	level := logger.Silent
	if opts.Debug {
		level = logger.Info
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(level)}

	var dialector gorm.Dialector
	switch opts.Driver {
	case DriverSQLite:
		dialector = sqlite.Open(opts.DSN)
	case DriverPostgres, "":
		dialector = postgres.Open(NormalizeDSN(opts.DSN))
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", opts.Driver)
	}

	attempts := opts.Retries
	if attempts < 1 {
		attempts = 1
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	var conn *gorm.DB
	var err error
	for i := 1; i <= attempts; i++ {
		conn, err = gorm.Open(dialector, cfg)
		if err == nil {
			break
		}
		log.Warn("database connection failed", "module", "db", "attempt", i, "of", attempts, "error", err)
		if i < attempts {
			time.Sleep(backoff)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("db: connect after %d attempts: %w", attempts, err)
	}
	if err := conn.Exec("SELECT 1").Error; err != nil {
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	log.Info("database connected", "module", "db", "driver", dialector.Name(), "dsn", MaskDSN(opts.DSN))
	return conn, nil
}

// Models lists every table owned by this service.
func Models() []any {
	return []any{
		&models.Profile{},
		&models.RedeemCode{},
		&models.CodeRedemption{},
		&models.AuditLog{},
		&models.PendingBenefit{},
		&models.GrantedBenefit{},
	}
}

// Migrate runs AutoMigrate for all models.
// Used for sqlite and development; production runs RunSQLMigrations.
func Migrate(conn *gorm.DB) error {
	for _, m := range Models() {
		if err := conn.AutoMigrate(m); err != nil {
			return fmt.Errorf("automigrate %T: %w", m, err)
		}
	}
	for _, table := range []string{"profiles", "redeem_codes", "code_redemptions"} {
		if !conn.Migrator().HasTable(table) {
			return errors.New("db: missing table after migration: " + table)
		}
	}
	return nil
}

// RunSQLMigrations applies the embedded SQL migrations with golang-migrate.
// dsn may be in key=value or URL form; postgres only.
func RunSQLMigrations(dsn string) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("db: migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, ToURLDSN(NormalizeDSN(dsn)))
	if err != nil {
		return fmt.Errorf("db: migrate init: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("db: migrate up: %w", err)
	}
	return nil
}
