package httpserver

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/openasr/parakeetd/internal/app"
	"github.com/openasr/parakeetd/internal/config"
	"github.com/openasr/parakeetd/internal/httpserver/httputil"
	publicroutes "github.com/openasr/parakeetd/internal/httpserver/public"
	"github.com/openasr/parakeetd/internal/requestctx"
)

// Server wraps the Fiber app and configuration.
type Server struct {
	app       *fiber.App
	cfg       *config.Config
	container *app.Container
}

// New constructs a server with baseline middleware ready.
func New(container *app.Container) (*Server, error) {
	if container == nil {
		return nil, fmt.Errorf("dependency container is required")
	}

	cfg := container.Config
	if cfg == nil {
		return nil, fmt.Errorf("container missing config")
	}

	// Leave headroom above the upload cap so oversized files reach the
	// handler and earn the structured 413 instead of a connection reset.
	bodyLimit := int(cfg.Audio.MaxUploadBytes()) + 1024*1024
	fiberApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ServerHeader:          "parakeetd",
		BodyLimit:             bodyLimit,
		ReadTimeout:           cfg.Server.RequestTimeout,
		ReadBufferSize:        4 * 1024,
		WriteBufferSize:       4 * 1024,
		ErrorHandler:          errorHandler(cfg),
	})

	fiberApp.Use(requestid.New())
	fiberApp.Use(logger.New())
	fiberApp.Use(recover.New())
	if len(cfg.API.CORSOrigins) > 0 {
		fiberApp.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(cfg.API.CORSOrigins, ","),
			AllowMethods: "GET,POST,OPTIONS",
		}))
	}

	fiberApp.Use(func(c *fiber.Ctx) error {
		rid, _ := c.Locals(requestid.ConfigDefault.ContextKey).(string)
		if rid == "" {
			rid = requestctx.NewRequestID()
		}
		rc := &requestctx.Context{RequestID: rid, ClientIP: c.IP()}
		c.Locals(requestctx.FiberLocalsKey(), rc)
		c.SetUserContext(requestctx.WithContext(c.UserContext(), rc))
		return c.Next()
	})

	if container.Observability != nil {
		fiberApp.Use(func(c *fiber.Ctx) error {
			start := time.Now()
			err := c.Next()
			route := ""
			if r := c.Route(); r != nil {
				route = r.Path
			}
			if route == "" {
				route = c.Path()
			}
			container.Observability.RecordHTTPRequest(c.UserContext(), c.Method(), route, c.Response().StatusCode(), time.Since(start))
			return err
		})
	}

	if container.Observability != nil && container.Observability.TracerProvider() != nil {
		tracer := otel.Tracer("parakeetd/http")
		fiberApp.Use(func(c *fiber.Ctx) error {
			spanCtx, span := tracer.Start(c.UserContext(), c.Method()+" "+c.Path())
			c.SetUserContext(spanCtx)
			err := c.Next()
			route := ""
			if r := c.Route(); r != nil {
				route = r.Path
			}
			span.SetAttributes(
				attribute.String("http.method", c.Method()),
				attribute.String("http.route", route),
				attribute.Int("http.status_code", c.Response().StatusCode()),
			)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else if status := c.Response().StatusCode(); status >= 500 {
				span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
			} else {
				span.SetStatus(codes.Ok, "OK")
			}
			span.End()
			return err
		})
	}

	if container.Observability != nil {
		if handler := container.Observability.PrometheusHandler(); handler != nil {
			fiberApp.Get("/metrics", adaptor.HTTPHandler(handler))
		}
	}

	registerRootRoutes(fiberApp, container)
	publicroutes.Register(fiberApp, container)

	return &Server{
		app:       fiberApp,
		cfg:       cfg,
		container: container,
	}, nil
}

// App exposes the underlying Fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen blocks until context cancellation or a fatal listen error occurs.
func (s *Server) Listen(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.cfg.Server.ListenAddr)
	}()

	select {
	case <-ctx.Done():
		timeout := s.cfg.Server.GracefulShutdownDelay
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := s.app.ShutdownWithContext(shutdownCtx)
		if err == nil {
			err = <-errCh
		}
		return err
	case err := <-errCh:
		return err
	}
}

// errorHandler keeps the OpenAI envelope shape for errors raised inside
// Fiber itself, such as the body-limit 413 on payloads too large to reach
// the handler's own size check.
func errorHandler(cfg *config.Config) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if errors.Is(err, fiber.ErrRequestEntityTooLarge) {
			maxMB := float64(cfg.Audio.MaxUploadBytes()) / (1024 * 1024)
			return httputil.WriteMessage(c, fiber.StatusRequestEntityTooLarge,
				"invalid_request_error",
				fmt.Sprintf("File too large. Maximum allowed: %.1fMB", maxMB),
				"file", "file_too_large")
		}
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return httputil.WriteMessage(c, fe.Code, "invalid_request_error", fe.Message, "", "")
		}
		return httputil.WriteError(c, err)
	}
}

func registerRootRoutes(fiberApp *fiber.App, container *app.Container) {
	fiberApp.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "parakeetd",
			"model":   container.Config.Model.Name,
			"status":  "running",
		})
	})

	fiberApp.Get("/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		overall := "ok"
		checks := make(map[string]fiber.Map)

		modelLoaded := container.Engine.IsLoaded()
		checks["model"] = fiber.Map{
			"status": container.Engine.State().String(),
			"loaded": modelLoaded,
		}
		if !modelLoaded {
			overall = "degraded"
		}

		if container.Redis != nil {
			start := time.Now()
			err := container.Redis.Ping(ctx).Err()
			check := fiber.Map{
				"status":     "ok",
				"latency_ms": time.Since(start).Milliseconds(),
			}
			if err != nil {
				check["status"] = "error"
				check["error"] = err.Error()
				overall = "degraded"
			}
			checks["redis"] = check
		}

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)

		status := fiber.StatusOK
		if !modelLoaded {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":         overall,
			"model_loaded":   modelLoaded,
			"uptime_seconds": int64(time.Since(container.StartedAt).Seconds()),
			"goroutines":     runtime.NumGoroutine(),
			"heap_alloc_mb":  float64(mem.HeapAlloc) / (1024 * 1024),
			"checks":         checks,
		})
	})
}
