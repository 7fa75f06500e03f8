package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/diogenes-labs/diogenes/internal/agent"
	"github.com/diogenes-labs/diogenes/internal/config"
	"github.com/diogenes-labs/diogenes/internal/coordinator"
	"github.com/diogenes-labs/diogenes/internal/crawl"
	"github.com/diogenes-labs/diogenes/internal/health"
	"github.com/diogenes-labs/diogenes/internal/httpapi"
	"github.com/diogenes-labs/diogenes/internal/llm"
	"github.com/diogenes-labs/diogenes/internal/memory"
	_ "github.com/diogenes-labs/diogenes/internal/metrics" // Import for side effects
	"github.com/diogenes-labs/diogenes/internal/orchestrator"
	"github.com/diogenes-labs/diogenes/internal/search"
	"github.com/diogenes-labs/diogenes/internal/session"
	"github.com/diogenes-labs/diogenes/internal/streaming"
	"github.com/diogenes-labs/diogenes/internal/workerpool"
)

func main() {
	configPath := flag.String("config", envOrDefault("DIOGENES_CONFIG_FILE", ""), "path to the YAML config file")
	flag.Parse()

	var (
		cfg     *config.Config
		watcher *config.Watcher
		err     error
	)
	if *configPath != "" {
		watcher, err = config.NewWatcher(*configPath, nil)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		defer watcher.Close()
		cfg = watcher.Current()
	} else {
		cfg, err = config.Load("")
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	if watcher != nil {
		watcher.OnChange(func(next *config.Config) {
			logger.Info("configuration reloaded",
				zap.String("path", *configPath))
		})
	}

	logger.Info("starting diogenes",
		zap.String("version", cfg.Version),
		zap.String("llm_base_url", cfg.LLM.BaseURL),
		zap.String("search_base_url", cfg.Search.BaseURL),
	)

	// Shared clients.
	searchClient := search.NewClient(cfg.Search, logger)
	arxivClient := search.NewArxivClient(cfg.Search.Timeout, logger)
	llmClient := llm.NewClient(cfg.LLM, logger)

	var fetcher crawl.Fetcher = crawl.NewHTTPFetcher(cfg.Crawl, logger)
	if cfg.Crawl.UseBrowser {
		browser := crawl.NewBrowserFetcher(cfg.Crawl, logger)
		defer browser.Close()
		fetcher = browser
	}
	crawler := crawl.New(cfg.Crawl, fetcher, logger)

	workers := workerpool.New(cfg.Processing.Workers, logger)
	defer workers.Shutdown()

	// Optional state backends. The service runs without them, with
	// session persistence and memory context disabled.
	var sessions *session.Manager
	if cfg.Session.RedisAddr != "" {
		sessions, err = session.NewManager(cfg.Session, logger)
		if err != nil {
			logger.Warn("session store unavailable, continuing without persistence", zap.Error(err))
			sessions = nil
		} else {
			defer sessions.Close()
		}
	}

	var memories *memory.Store
	if cfg.Agent.EnableMemoryContext && cfg.Memory.Database != "" {
		memories, err = memory.NewStore(cfg.Memory, logger)
		if err != nil {
			logger.Warn("memory store unavailable, continuing without memory context", zap.Error(err))
			memories = nil
		} else {
			defer memories.Close()
		}
	}

	// Agent pool.
	pool := agent.NewPool(logger)
	pool.Register(agent.NewResearcher(searchClient, arxivClient, crawler, workers, cfg.Processing, logger))
	pool.Register(agent.NewVerifier(llmClient, logger))
	pool.Register(agent.NewWriter(llmClient, logger))
	pool.Register(agent.NewSuggester(llmClient, cfg.LLM.Models.Planner, logger))

	coord := coordinator.New(pool, llmClient, cfg.LLM.Models.Planner, workers, logger)
	orch := orchestrator.New(coord, pool, memories, sessions, cfg.API.MaxConcurrentResearch, logger)

	// Health checks: the service is not ready without search and a model
	// backend; Redis only degrades it.
	hm := health.NewManager(logger)
	hm.Register(health.SearxChecker(searchClient))
	hm.Register(health.OllamaChecker(llmClient))
	if sessions != nil {
		hm.Register(health.RedisChecker(sessions))
	}

	streams := streaming.NewManager(streaming.DefaultCapacity, logger)
	api := httpapi.NewServer(orch, sessions, hm, streams, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		Handler:      api.Routes(),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulTimeout(cfg))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
}

func gracefulTimeout(cfg *config.Config) time.Duration {
	if cfg.API.GracefulTimeout > 0 {
		return cfg.API.GracefulTimeout
	}
	return 15 * time.Second
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	var zcfg zap.Config
	if cfg.JSONFormat {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
