// collectord runs the document collection service: HTTP API, sync
// scheduler, and orphan reaper over a shared SQLite catalog.
package main

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/collector/dbopen"
	"github.com/hazyhaar/collector/docconv"
	"github.com/hazyhaar/collector/gate"
	"github.com/hazyhaar/collector/normalize"
	"github.com/hazyhaar/collector/ocr"
	"github.com/hazyhaar/collector/reaper"
	"github.com/hazyhaar/collector/service"
	"github.com/hazyhaar/collector/spool"
	"github.com/hazyhaar/collector/store"
	"github.com/hazyhaar/collector/syncd"
	"github.com/hazyhaar/collector/webfetch"
)

func main() {
	cfg, err := loadConfig(env("CONFIG", "collectord.yaml"))
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Integrity key. Derive 32 bytes via SHA-256 so any non-empty secret
	// satisfies guard.MinSecretLen.
	secretInput := os.Getenv("INTEGRITY_SECRET")
	if secretInput == "" && !cfg.DevMode {
		slog.Error("INTEGRITY_SECRET is required (or set dev_mode)")
		os.Exit(1)
	}
	var key []byte
	if secretInput != "" {
		secretHash := sha256.Sum256([]byte(secretInput))
		key = secretHash[:]
	}

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Catalog DB.
	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll(), dbopen.WithSchema(store.Schema))
	if err != nil {
		slog.Error("catalog db", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	st := store.New(db)

	if err := os.MkdirAll(cfg.ScratchDir, 0o755); err != nil {
		slog.Error("scratch dir", "error", err)
		os.Exit(1)
	}

	g, err := gate.New(gate.Config{
		Key:         key,
		StorageRoot: cfg.ScratchDir,
		DevMode:     cfg.DevMode,
		Logger:      logger,
	})
	if err != nil {
		slog.Error("gate", "error", err)
		os.Exit(1)
	}

	fetcher := webfetch.New(webfetch.Config{
		Timeout:          cfg.webTimeout(),
		FallbackTimeout:  cfg.webFallbackTimeout(),
		UserAgent:        cfg.Web.UserAgent,
		RemoteBrowserURL: cfg.Web.RemoteBrowserURL,
		Logger:           logger,
	})
	defer fetcher.Close()

	var repoClient *docconv.RepoClient
	if cfg.Repo.Token != "" || cfg.Repo.BaseURL != "" {
		repoClient, err = docconv.NewRepoClient(ctx, docconv.RepoConfig{
			Token:   cfg.Repo.Token,
			BaseURL: cfg.Repo.BaseURL,
		})
		if err != nil {
			slog.Error("repo client", "error", err)
			os.Exit(1)
		}
	}

	conv, err := docconv.New(docconv.Config{
		OCR:        ocr.NewTesseract(ocr.Config{Binary: cfg.OCR.Binary, Logger: logger}),
		Web:        fetcher,
		Repo:       repoClient,
		OCRWorkers: cfg.OCR.Workers,
		Logger:     logger,
	})
	if err != nil {
		slog.Error("converter registry", "error", err)
		os.Exit(1)
	}
	defer conv.Close()

	norm := normalize.New(normalize.Config{})

	rp, err := reaper.New(reaper.Config{ScratchDir: cfg.ScratchDir, Logger: logger}, st)
	if err != nil {
		slog.Error("reaper", "error", err)
		os.Exit(1)
	}

	sink := spool.NewWriter(cfg.OutboxDir)

	svc, err := service.New(service.Config{
		ScratchDir:          cfg.ScratchDir,
		DefaultOCRLanguages: cfg.OCR.Languages,
		Logger:              logger,
	}, g, conv, norm, st, rp, sink)
	if err != nil {
		slog.Error("service", "error", err)
		os.Exit(1)
	}

	sched, err := syncd.New(syncd.Config{
		TickInterval: cfg.syncTick(),
		Workers:      cfg.Sync.Workers,
		MaxFailCount: cfg.Sync.MaxFailCount,
		Logger:       logger,
	}, st, svc.SyncSource, sink)
	if err != nil {
		slog.Error("scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Close()
	svc.SetScheduler(sched)
	go sched.Run(ctx)

	// HTTP server.
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           svc.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Listen, "dev_mode", cfg.DevMode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
