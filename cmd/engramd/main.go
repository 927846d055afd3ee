package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nidhogg/engram/internal/api"
	"github.com/nidhogg/engram/internal/config"
	"github.com/nidhogg/engram/internal/mirror"
	"github.com/nidhogg/engram/internal/provider"
	"github.com/nidhogg/engram/internal/snapshot"
	"github.com/nidhogg/engram/internal/tracebus"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting engram...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/engram.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Initialize provider router
	router := provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		provCfg := provider.Config{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey, Model: pc.Model,
			Timeout: time.Duration(pc.Timeout) * time.Second,
		}
		switch pc.Type {
		case "openai":
			router.Register(provider.NewOpenAI(provCfg, logger))
		case "anthropic":
			router.Register(provider.NewAnthropic(provCfg, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}
	if cfg.DefaultProvider != "" {
		router.SetDefault(cfg.DefaultProvider)
	}
	if len(cfg.FallbackProviders) > 0 {
		router.SetFallbacks(cfg.FallbackProviders)
	}
	if router.Empty() {
		logger.Warn("no providers configured, extraction falls back to structural parsing")
	}

	// Initialize PostgreSQL snapshot store
	var store *snapshot.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := snapshot.NewStore(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without persistence", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(context.Background()); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			store = ps
		}
	}

	// Initialize the trace bus
	var bus *tracebus.Bus
	if cfg.Database.Redis.URL != "" {
		b, busErr := tracebus.New(cfg.Database.Redis.URL, logger)
		if busErr != nil {
			logger.Warn("Redis unavailable, running without trace bus", zap.Error(busErr))
		} else {
			bus = b
		}
	}

	// Initialize the Neo4j mirror
	var mir *mirror.Mirror
	if cfg.Database.Neo4j.URI != "" {
		m, mErr := mirror.New(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
		if mErr == nil {
			mErr = m.Ping(context.Background())
		}
		if mErr != nil {
			logger.Warn("Neo4j unavailable, running without mirror", zap.Error(mErr))
		} else {
			mir = m
		}
	}

	// Build HTTP handler
	handler := api.NewHandler(router, store, bus, mir, cfg.Memory.SnapshotDir, logger)

	// Background decay sweep
	decayStop := make(chan struct{})
	if cfg.Memory.DecaySeconds > 0 {
		interval := time.Duration(cfg.Memory.DecaySeconds * float64(time.Second))
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					handler.DecayAll(cfg.Memory.DecaySeconds)
				case <-decayStop:
					return
				}
			}
		}()
		logger.Info("decay sweep scheduled", zap.Duration("interval", interval))
	}

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("engram listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down engram...")
	close(decayStop)
	ctx := context.Background()
	srv.Shutdown(ctx)
	if store != nil {
		store.Close()
	}
	if bus != nil {
		bus.Close()
	}
	if mir != nil {
		mir.Close(ctx)
	}
}
