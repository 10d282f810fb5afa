package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/josh-kwaku/peerpay/internal/config"
	"github.com/josh-kwaku/peerpay/internal/domain"
	"github.com/josh-kwaku/peerpay/internal/events"
	"github.com/josh-kwaku/peerpay/internal/logging"
	"github.com/josh-kwaku/peerpay/internal/service/transfer"
)

func main() {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init(logging.Options{
		Service:     "peerpay-api",
		Level:       cfg.LogLevel,
		Env:         cfg.AppEnv,
		StoreDriver: cfg.StoreDriver,
		Currency:    cfg.Currency,
	})

	startCtx, cancelStart := context.WithTimeout(context.Background(), cfg.DBConnectTimeout+30*time.Second)
	st, err := openStore(startCtx, cfg)
	cancelStart()
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaWriteTimeout)
		slog.Info("publishing transfer events", "topic", cfg.KafkaTopic)
	}
	defer publisher.Close()

	engine := transfer.NewEngine(st, publisher, transfer.Settings{
		Currency:        domain.Currency(cfg.Currency),
		TransferLimit:   cfg.TransferLimitMinor,
		MaxHistoryLimit: cfg.HistoryMaxLimit,
		PublishTimeout:  cfg.EventPublishTimeout,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(cfg, engine, st),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr, "store", cfg.StoreDriver, "currency", cfg.Currency)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	slog.Info("server stopped")
}
