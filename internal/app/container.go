// Package app assembles the runtime dependencies shared by the HTTP
// handlers.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openasr/parakeetd/internal/audio"
	"github.com/openasr/parakeetd/internal/config"
	"github.com/openasr/parakeetd/internal/coordinator"
	"github.com/openasr/parakeetd/internal/engine"
	"github.com/openasr/parakeetd/internal/engine/sidecar"
	"github.com/openasr/parakeetd/internal/limits"
	"github.com/openasr/parakeetd/internal/observability"
)

// Container aggregates runtime dependencies for handlers and services.
type Container struct {
	Config        *config.Config
	Logger        *slog.Logger
	Redis         *redis.Client
	RateLimiter   *limits.RateLimiter
	Observability *observability.Provider
	Engine        *engine.Engine
	Coordinator   *coordinator.Coordinator
	StartedAt     time.Time
}

// NewContainer builds a dependency container from the provided primitives.
// redisClient and obs may be nil when the corresponding features are
// disabled.
func NewContainer(cfg *config.Config, logger *slog.Logger, redisClient *redis.Client, obs *observability.Provider) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	store, err := audio.NewTempStore(cfg.Audio.TempDir, logger)
	if err != nil {
		return nil, fmt.Errorf("init temp store: %w", err)
	}
	inspector := audio.NewInspector(cfg.Audio.FFprobeBin, cfg.Audio.ProbeTimeout, logger)
	normalizer := audio.NewNormalizer(cfg.Audio.FFmpegBin, cfg.Audio.ConvertTimeout, logger)

	backend := sidecar.New(sidecar.Config{
		URL:         cfg.Model.SidecarURL,
		Model:       cfg.Model.Name,
		Device:      cfg.Model.Device,
		LoadTimeout: cfg.Model.LoadTimeout,
		Timeout:     cfg.Model.InferTimeout,
	})
	eng := engine.New(backend, engine.Config{
		ModelName: cfg.Model.Name,
		WarmupDir: cfg.Model.WarmupDir,
	}, logger)

	var metrics coordinator.Metrics
	if obs != nil {
		metrics = obs
	}
	coord := coordinator.New(store, inspector, normalizer, eng, metrics, cfg.Audio.MaxUploadBytes(), logger)

	var limiter *limits.RateLimiter
	if redisClient != nil {
		limiter = limits.NewRateLimiter(redisClient)
	}

	return &Container{
		Config:        cfg,
		Logger:        logger,
		Redis:         redisClient,
		RateLimiter:   limiter,
		Observability: obs,
		Engine:        eng,
		Coordinator:   coord,
		StartedAt:     time.Now().UTC(),
	}, nil
}

// LimitConfig returns the service-wide per-client limits.
func (c *Container) LimitConfig() limits.LimitConfig {
	return limits.LimitConfig{
		RequestsPerMinute: c.Config.RateLimits.RequestsPerMinute,
		ParallelRequests:  c.Config.RateLimits.ParallelRequests,
	}
}
