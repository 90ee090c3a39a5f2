package public

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/openasr/parakeetd/internal/httpserver/httputil"
	"github.com/openasr/parakeetd/internal/limits"
	"github.com/openasr/parakeetd/internal/models"
	"github.com/openasr/parakeetd/internal/requestctx"
)

func (h *apiHandler) audioTranscriptions(c *fiber.Ctx) error {
	ctx := c.UserContext()

	clientKey := "anon"
	if rc, ok := requestctx.FromContext(ctx); ok && rc.ClientIP != "" {
		clientKey = rc.ClientIP
	}
	limitCfg := h.container.LimitConfig()
	if err := h.container.RateLimiter.Allow(ctx, clientKey, limitCfg); err != nil {
		if errors.Is(err, limits.ErrLimitExceeded) {
			return httputil.WriteMessage(c, fiber.StatusTooManyRequests, "rate_limit_error", "Rate limit exceeded", "", "rate_limit_exceeded")
		}
		return httputil.WriteMessage(c, fiber.StatusInternalServerError, "processing_error", "Rate limit check failed", "", "")
	}
	defer h.container.RateLimiter.Release(ctx, clientKey, limitCfg)

	form, err := c.MultipartForm()
	if err != nil {
		return httputil.WriteMessage(c, fiber.StatusBadRequest, "invalid_request_error", "multipart form required", "", "")
	}
	fileHeaders := form.File["file"]
	if len(fileHeaders) == 0 {
		return httputil.WriteMessage(c, fiber.StatusBadRequest, "invalid_request_error", "file is required", "file", "")
	}
	fh := fileHeaders[0]
	src, err := fh.Open()
	if err != nil {
		return httputil.WriteMessage(c, fiber.StatusBadRequest, "invalid_request_error", "failed to open file", "file", "")
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return httputil.WriteMessage(c, fiber.StatusBadRequest, "invalid_request_error", "failed to read file", "file", "")
	}

	input := models.ParamsInput{
		Model:            strings.TrimSpace(c.FormValue("model")),
		Language:         strings.TrimSpace(c.FormValue("language")),
		Prompt:           c.FormValue("prompt"),
		ResponseFormat:   strings.TrimSpace(c.FormValue("response_format")),
		ChunkingStrategy: strings.TrimSpace(c.FormValue("chunking_strategy")),
	}
	if val := strings.TrimSpace(c.FormValue("temperature")); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return httputil.WriteMessage(c, fiber.StatusBadRequest, "invalid_request_error", "temperature must be a number", "temperature", "")
		}
		input.Temperature = &parsed
	}
	if granularities, ok := form.Value["timestamp_granularities[]"]; ok {
		input.TimestampGranularities = granularities
	} else if granularities, ok := form.Value["timestamp_granularities"]; ok {
		input.TimestampGranularities = granularities
	}
	if val := strings.TrimSpace(c.FormValue("stream")); val != "" {
		input.Stream = val == "true" || val == "1"
	}
	if include, ok := form.Value["include[]"]; ok {
		input.Include = include
	}

	params, err := models.NewTranscriptionParams(input)
	if err != nil {
		return httputil.WriteError(c, err)
	}

	resp, err := h.container.Coordinator.Handle(ctx, data, fh.Filename, params)
	if err != nil {
		return httputil.WriteError(c, err)
	}
	return c.JSON(resp)
}
