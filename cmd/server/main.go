package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/5vraa/swims.cc-website-sub000/auth"
	"github.com/5vraa/swims.cc-website-sub000/gate"
	"github.com/5vraa/swims.cc-website-sub000/internal/config"
	"github.com/5vraa/swims.cc-website-sub000/internal/db"
	"github.com/5vraa/swims.cc-website-sub000/internal/events"
	"github.com/5vraa/swims.cc-website-sub000/internal/oracle"
	"github.com/5vraa/swims.cc-website-sub000/internal/policy"
	"github.com/5vraa/swims.cc-website-sub000/internal/services"
	"github.com/5vraa/swims.cc-website-sub000/internal/store"
	"github.com/5vraa/swims.cc-website-sub000/view"
)

var (
	migrateOnlyFlag = flag.Bool("migrate-only", false, "Run DB migrations and exit")
	seedOnlyFlag    = flag.Bool("seed-only", false, "Run DB seed and exit")
)

func main() {
	flag.Parse()

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := newLogger(cfg.App, os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	conn, err := db.Open(db.Options{
		Driver:  cfg.Database.Driver,
		DSN:     cfg.Database.DSN(),
		Debug:   cfg.Database.Debug,
		Retries: 5,
		Backoff: 2 * time.Second,
	}, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	if *migrateOnlyFlag {
		if err := migrate(cfg, conn); err != nil {
			return err
		}
		logger.Info("migrations completed")
		return nil
	}
	if *seedOnlyFlag {
		if err := seed(cfg, conn); err != nil {
			return err
		}
		logger.Info("seeding completed")
		return nil
	}

	if cfg.App.Migrations {
		if err := migrate(cfg, conn); err != nil {
			return err
		}
		logger.Info("migrations completed")
	}
	if err := seed(cfg, conn); err != nil {
		return err
	}

	ora, closeOracle, err := buildOracle(cfg, logger)
	if err != nil {
		return err
	}
	defer closeOracle()

	audit, closeAudit, err := buildAudit(cfg, conn, logger)
	if err != nil {
		return err
	}
	defer closeAudit()

	codes := store.NewRedeemStore(conn)
	ag := policy.NewAuthGate(
		gate.NewResolver(cfg.Discord.Provider, cfg.Discord.CheckTimeout),
		policy.NewDBProfileResolver(store.NewProfileStore(conn), logger),
		ora, cfg.Discord.StaffRoleID, logger,
	)
	view.SetStaffResolver(func(r *http.Request) (bool, bool) {
		v, err := ag.Verdict(r.Context())
		if err != nil {
			return false, false
		}
		return v.IsStaff, v.Satisfies(gate.LevelAdmin)
	})

	deps := appDeps{
		DB:       conn,
		Verifier: auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Audience),
		Gate:     ag,
		Redeem:   services.NewRedeemService(codes, audit, logger),
		Codes:    codes,
		Audit:    audit,
		History:  store.NewAuditStore(conn),
		Guard:    policy.GuardOptions{RedirectDelay: cfg.Guard.RedirectDelay, RedirectURL: cfg.Guard.RedirectURL},
		Logger:   logger,
	}
	reconciler := services.NewReconciler(codes, audit, logger, cfg.App.ReconcileInterval, cfg.App.ReconcileBatch).
		WithMaxAttempts(cfg.App.ReconcileAttempts)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      NewApp(deps),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", "port", cfg.Server.Port, "dev", cfg.App.Dev)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return reconciler.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}

// migrate applies the SQL migrations on postgres and AutoMigrate elsewhere.
func migrate(cfg *config.Config, conn *gorm.DB) error {
	if cfg.Database.Driver == db.DriverPostgres {
		if err := db.RunSQLMigrations(cfg.Database.DSN()); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		return nil
	}
	if err := db.Migrate(conn); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func seed(cfg *config.Config, conn *gorm.DB) error {
	if cfg.App.SeedFile == "" {
		return nil
	}
	data, err := db.LoadSeedFile(cfg.App.SeedFile)
	if err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}
	if err := db.Seed(conn, data); err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}
	return nil
}

// buildOracle picks the Discord oracle when a bot token is configured and
// the static fallback list otherwise.
func buildOracle(cfg *config.Config, logger *slog.Logger) (oracle.Oracle, func(), error) {
	if cfg.Discord.BotToken == "" {
		logger.Warn("no discord bot token, external role check uses the fallback list", "module", "oracle")
		return oracle.NewStaticOracle(cfg.Discord.FallbackStaffIDs), func() {}, nil
	}

	var cache oracle.Cache = oracle.NewMemoryCache(cfg.Discord.CacheTTL)
	closeCache := func() {}
	if cfg.Redis.URL != "" {
		client, err := oracle.ConnectRedis(cfg.Redis.URL)
		if err != nil {
			return nil, nil, err
		}
		cache = oracle.NewRedisCache(client, cfg.Redis.KeyPrefix, cfg.Discord.CacheTTL, logger)
		closeCache = func() { _ = client.Close() }
	}

	d, err := oracle.NewDiscordOracle(oracle.DiscordOptions{
		BotToken:       cfg.Discord.BotToken,
		GuildID:        cfg.Discord.GuildID,
		FallbackIDs:    cfg.Discord.FallbackStaffIDs,
		Cache:          cache,
		RequestTimeout: 5 * time.Second,
		Logger:         logger,
	})
	if err != nil {
		closeCache()
		return nil, nil, err
	}
	return d, func() {
		_ = d.Close()
		closeCache()
	}, nil
}

// buildAudit fans audit events out to the database, the log and, when
// brokers are configured, Kafka.
func buildAudit(cfg *config.Config, conn *gorm.DB, logger *slog.Logger) (events.Sink, func(), error) {
	sinks := events.Fanout{store.NewAuditStore(conn), events.LogSink{Logger: logger}}
	if len(cfg.Kafka.Brokers) == 0 {
		return sinks, func() {}, nil
	}
	k, err := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
	if err != nil {
		return nil, nil, err
	}
	return append(sinks, k), func() { _ = k.Close() }, nil
}

func newLogger(app config.AppConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(app.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(app.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
