package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"remindd/internal/config"
	"remindd/internal/database"
	"remindd/internal/logging"
	"remindd/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	// A failed local store is survivable: the engine runs remote-only and
	// local fallback stays off until the next restart.
	var db *sql.DB
	db, err = database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("local store unavailable, continuing without fallback",
			"path", cfg.DatabasePath, "error", err)
		db = nil
	} else {
		defer db.Close()
	}

	srv, err := server.New(db, cfg, logger)
	if err != nil {
		logger.Error("server init failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if assets := srv.Assets(); assets != nil {
		if err := assets.Install(ctx, cfg.Precache); err != nil {
			logger.Warn("asset precache incomplete", "error", err)
		}
		if err := assets.Activate(); err != nil {
			logger.Warn("asset cache activation", "error", err)
		}
	}

	srv.Engine().Start(ctx)
	defer srv.Engine().Stop()

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("remindd listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
