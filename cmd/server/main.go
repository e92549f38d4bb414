package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/api"
	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/config"
	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/handlers"
	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/journal"
	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/logging"
	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/pipeline"
	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/scheduler"
	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/tracing"
	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, "auditflow")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return err
	}

	catalog := handlers.DefaultCatalog()
	if cfg.CriteriaFile != "" {
		if catalog, err = handlers.LoadCatalog(cfg.CriteriaFile); err != nil {
			return err
		}
	}
	logger.Info("criteria loaded", "criteria", catalog.IDs())

	registry := worker.NewRegistry()
	handlers.Register(registry, handlers.KeywordAnalyzer{}, catalog)
	logger.Info("workers registered", "categories", registry.Categories(), "workers", len(cfg.Workers))

	schedOpts := []scheduler.Option{
		scheduler.WithName("audit"),
		scheduler.WithConcurrency(cfg.ConcurrencyLimit),
		scheduler.WithLogger(logger),
	}
	apiOpts := []api.Option{
		api.WithLogger(logger),
		api.WithAuditParallelism(cfg.AuditParallelism),
	}

	if cfg.JournalEnabled() {
		j, err := journal.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer j.Close()
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)

		schedOpts = append(schedOpts, scheduler.WithRecorder(j))
		apiOpts = append(apiOpts, api.WithStore(j))
	}

	mgr, err := scheduler.New(registry, cfg.Workers, schedOpts...)
	if err != nil {
		return err
	}

	audits := pipeline.New(mgr, pipeline.WithLogger(logger))
	handler := api.NewHandler(mgr, audits, apiOpts...)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
		if err := mgr.Shutdown(cfg.ShutdownTimeout); err != nil {
			logger.Warn("scheduler shutdown incomplete", "err", err)
		}
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("tracer shutdown error", "err", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
