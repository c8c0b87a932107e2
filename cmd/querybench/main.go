package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/p-arndt/querybench/internal/api"
	"github.com/p-arndt/querybench/internal/benchmark"
	"github.com/p-arndt/querybench/internal/cache"
	"github.com/p-arndt/querybench/internal/config"
	"github.com/p-arndt/querybench/internal/docker"
	"github.com/p-arndt/querybench/internal/generation"
	"github.com/p-arndt/querybench/internal/reaper"
	"github.com/p-arndt/querybench/internal/sandbox"
	"github.com/p-arndt/querybench/internal/schema"
	"github.com/p-arndt/querybench/internal/store"
)

func main() {
	cfgPath := flag.String("config", "", "path to querybench.yaml")
	purgePrefix := flag.String("purge-cache", "", `delete cached artifacts whose key starts with prefix (e.g. "schema:", "populate:<db_id>") and exit`)
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	st, err := store.New(cfg.DBPath, 0)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if *purgePrefix != "" {
		n, err := st.DeleteCacheEntries(*purgePrefix)
		if err != nil {
			logger.Error("purge cache", "prefix", *purgePrefix, "error", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "removed %d cache entries with prefix %q\n", n, *purgePrefix)
		return
	}

	if cfg.Generation.BaseURL == "" {
		logger.Error("generation service base URL is not set (generation.base_url or RAG_BASE_URL)")
		os.Exit(1)
	}

	dc, err := docker.New()
	if err != nil {
		logger.Error("docker client", "error", err)
		os.Exit(1)
	}
	defer dc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := dc.Ping(ctx); err != nil {
		logger.Error("docker ping failed, is Docker running?", "error", err)
		os.Exit(1)
	}
	logger.Info("docker connection OK")

	schemas, err := schema.Connect(ctx, cfg.Mongo)
	if err != nil {
		logger.Error("mongo connect", "error", err)
		os.Exit(1)
	}
	defer schemas.Close(context.Background())

	gen := generation.NewClient(cfg.Generation.BaseURL, cfg.Generation.APIKey, logger,
		generation.WithTimeout(time.Duration(cfg.Generation.TimeoutSeconds)*time.Second),
		generation.WithRetryConfig(generation.RetryConfig{
			MaxRetries: cfg.Generation.MaxRetries,
			RetryDelay: time.Second,
		}),
	)

	// A nil store makes every lookup a miss without touching sqlite.
	var cacheStore cache.Store
	if cfg.Cache.Enabled {
		cacheStore = st
	} else {
		logger.Warn("artifact cache disabled")
	}
	artifacts := cache.New(cacheStore, cfg.Cache.VersionKeys, logger)

	prov := sandbox.NewProvisioner(cfg.Sandbox, dc, st, logger)

	orch := benchmark.New(benchmark.Options{
		DefaultDBID:  cfg.DefaultDBID,
		DefaultModel: cfg.Generation.DefaultModel,
		WebhookURL:   cfg.WebhookURL,
		PopulateRows: cfg.Generation.PopulateRows,
		Settle:       time.Duration(cfg.Sandbox.SettleMs) * time.Millisecond,
	}, schemas, gen, artifacts, prov, logger)

	rpr := reaper.New(st, dc,
		time.Duration(cfg.Reaper.IntervalSeconds)*time.Second,
		time.Duration(cfg.Reaper.MaxAgeSeconds)*time.Second,
		logger)
	// Leftovers of a previous process are cleared before any run can reserve.
	rpr.Reconcile(ctx)
	go rpr.Run(ctx)

	srv := api.NewServer(cfg, orch, map[string]api.Pinger{
		"docker": dc,
		"mongo":  schemas,
	}, logger)

	httpServer := &http.Server{
		Addr:         cfg.Listen,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // a benchmark provisions a database
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-sigCh
		logger.Info("shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", cfg.Listen)
	fmt.Fprintf(os.Stderr, "\n  querybench ready at http://%s\n\n", cfg.Listen)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
