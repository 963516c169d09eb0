// galaxy-params-server serves tool building, request checking and batch
// expansion over HTTP.
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

	"github.com/galaxyproject/galaxy-params/internal/api"
	"github.com/galaxyproject/galaxy-params/internal/config"
	"github.com/galaxyproject/galaxy-params/internal/events"
	"github.com/galaxyproject/galaxy-params/internal/logging"
	"github.com/galaxyproject/galaxy-params/internal/service"
	"github.com/galaxyproject/galaxy-params/internal/state"
	"github.com/galaxyproject/galaxy-params/internal/tools"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	port := flag.Int("port", 0, "Server port (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	logger := logging.NewLogger(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	app, closeApp, err := service.NewApp(context.Background(), cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer closeApp()

	registry, err := tools.NewRegistry(cfg.Tools.Dir, cfg.Tools.CacheSize, app, logger)
	if err != nil {
		log.Fatalf("Failed to create tool registry: %v", err)
	}
	if err := registry.Scan(); err != nil {
		log.Fatalf("Failed to load tools: %v", err)
	}

	opts := api.Options{Logger: logger}
	if cfg.MongoDB.URI != "" {
		store, err := state.NewStore(cfg.MongoDB.URI, cfg.MongoDB.Database)
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			store.Close(ctx)
		}()
		opts.Store = store
		logger.Info("connected to MongoDB", "database", cfg.MongoDB.Database)
	}
	if cfg.Redis.Addr != "" {
		redisClient, err := events.ConnectRedis(&cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		opts.Publisher = events.NewPublisher(redisClient, cfg.Redis.Channel)
	}

	server := api.NewServer(cfg, registry, app, opts)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
}
