// Package main runs the chip bank HTTP server.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/playtower/chipbank/internal/app"
	"github.com/playtower/chipbank/internal/app/httpapi"
	"github.com/playtower/chipbank/internal/app/metrics"
	"github.com/playtower/chipbank/internal/app/storage/postgres"
	"github.com/playtower/chipbank/internal/config"
	"github.com/playtower/chipbank/internal/platform/migrations"
	"github.com/playtower/chipbank/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}).WithField("component", "server")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	stores := app.Stores{}

	if cfg.Database.DSN != "" {
		db, err := openDatabase(cfg.Database)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = migrations.Apply(migrateCtx, db)
		cancel()
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}

		store := postgres.New(db, cfg.Transfer.TxTimeout)
		stores.Transfers = store
		stores.Directory = store
		log.Info("using postgres storage")
	} else {
		log.Warn("DATABASE_DSN not set; using in-memory storage")
	}

	application, err := app.New(stores, app.Options{
		MaxTransfer:  cfg.Transfer.MaxAmount,
		KafkaBrokers: cfg.Kafka.Brokers,
		KafkaTopic:   cfg.Kafka.Topic,
	}, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           metrics.InstrumentHandler(httpapi.NewHandler(application.Transfers, log)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		_ = application.Stop(context.Background())
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown")
	}
	return application.Stop(shutdownCtx)
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
