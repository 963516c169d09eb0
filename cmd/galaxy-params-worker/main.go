// galaxy-params-worker records job requests announced by the server and
// checks that their parameters restore against the current tools.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/galaxyproject/galaxy-params/internal/config"
	"github.com/galaxyproject/galaxy-params/internal/events"
	"github.com/galaxyproject/galaxy-params/internal/logging"
	"github.com/galaxyproject/galaxy-params/internal/service"
	"github.com/galaxyproject/galaxy-params/internal/state"
	"github.com/galaxyproject/galaxy-params/internal/tools"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.MongoDB.URI == "" || cfg.Redis.Addr == "" {
		log.Fatalf("The worker needs both mongodb.uri and redis.addr")
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

	store, err := state.NewStore(cfg.MongoDB.URI, cfg.MongoDB.Database)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store.Close(ctx)
	}()

	redisClient, err := events.ConnectRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	subscriber := events.NewSubscriber(redisClient, cfg.Redis.Channel, logger)
	subscriber.AddHandler(events.NewJobRecorder(store, registry))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := subscriber.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("subscriber stopped", "error", err)
		}
	}()
	logger.Info("worker started", "tools", len(registry.IDs()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	cancel()
	subscriber.Stop()
}
