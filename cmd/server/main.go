package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/halcyonsec/beacon/internal/api"
	"github.com/halcyonsec/beacon/internal/certwatch"
	"github.com/halcyonsec/beacon/internal/config"
	"github.com/halcyonsec/beacon/internal/heartbeat"
	"github.com/halcyonsec/beacon/internal/ingest"
	"github.com/halcyonsec/beacon/internal/store"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	cfgPath := flag.String("config", "", "Path to YAML config (optional)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}

	// ── Storage engine ────────────────────────────────────────────────────────
	st, err := store.Open(store.Config{
		Path:     cfg.Storage.Path,
		PoolSize: cfg.Storage.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		slog.Error("failed to open store", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	// ── Core components ───────────────────────────────────────────────────────
	pipeline := ingest.New(st, logger)
	tracker := heartbeat.New(st, logger)

	handler := api.New(api.Deps{
		Pipeline:  pipeline,
		Tracker:   tracker,
		Store:     st,
		APIKey:    cfg.Auth.APIKey,
		StaticDir: cfg.Server.StaticDir,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ── TLS with certificate hot-reload ──────────────────────────────────────
	useTLS := cfg.Server.TLSCert != ""
	if useTLS {
		reloader, err := certwatch.New(cfg.Server.TLSCert, cfg.Server.TLSKey, logger)
		if err != nil {
			slog.Error("failed to load TLS certificate", "err", err)
			os.Exit(1)
		}
		stopWatch, err := reloader.Watch()
		if err != nil {
			slog.Warn("certificate watcher unavailable (hot-reload disabled)", "err", err)
		} else {
			defer stopWatch()
		}
		srv.TLSConfig = &tls.Config{GetCertificate: reloader.GetCertificate}
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Server.Addr, "tls", useTLS, "db", cfg.Storage.Path)
		var err error
		if useTLS {
			err = srv.ListenAndServeTLS("", "")
		} else {
			slog.Warn("no TLS certificate configured, serving plain HTTP")
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	slog.Info("goodbye")
}
