package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openasr/parakeetd/internal/app"
	"github.com/openasr/parakeetd/internal/config"
	"github.com/openasr/parakeetd/internal/httpserver"
	"github.com/openasr/parakeetd/internal/observability"
	"github.com/openasr/parakeetd/internal/redisclient"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.Options{})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient = redisclient.New(cfg.Redis)
		if err := redisclient.Ping(ctx, redisClient); err != nil {
			log.Fatalf("connect redis: %v", err)
		}
		defer redisClient.Close()
	}

	obs, err := observability.Setup(ctx, cfg.Observability)
	if err != nil {
		log.Fatalf("setup observability: %v", err)
	}
	if obs != nil {
		defer obs.Shutdown(ctx)
	}

	container, err := app.NewContainer(cfg, logger, redisClient, obs)
	if err != nil {
		log.Fatalf("build container: %v", err)
	}

	logger.Info("loading model", "model", cfg.Model.Name)
	if err := container.Engine.Load(ctx); err != nil {
		log.Fatalf("load model: %v", err)
	}
	logger.Info("model ready", "model", cfg.Model.Name, "warmup", container.Engine.LastWarmup().Status.String())
	defer func() {
		unloadCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Engine.Unload(unloadCtx); err != nil {
			logger.Error("unload model", "error", err)
		}
	}()

	server, err := httpserver.New(container)
	if err != nil {
		log.Fatalf("construct server: %v", err)
	}

	logger.Info("listening", "addr", cfg.Server.ListenAddr)
	if err := server.Listen(ctx); err != nil && err != context.Canceled {
		log.Fatalf("server stopped: %v", err)
	}
}
