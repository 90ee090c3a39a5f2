package apierrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestStatusCodeMapping(t *testing.T) {
	t.Parallel()

	tooLarge := Validation("File too large")
	tooLarge.Code = "file_too_large"

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("bad input"), fiber.StatusBadRequest},
		{"file too large", tooLarge, fiber.StatusRequestEntityTooLarge},
		{"unsupported parameter", UnsupportedParameter("language", "fr", "nope"), fiber.StatusBadRequest},
		{"not loaded", NotLoaded(), fiber.StatusServiceUnavailable},
		{"processing", Processing("disk full", errors.New("enospc")), fiber.StatusInternalServerError},
		{"model", Model("inference blew up", nil), fiber.StatusInternalServerError},
		{"untyped", errors.New("anything"), fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, StatusCode(tc.err))
		})
	}
}

func TestStatusCodeUnwrapsWrappedErrors(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("handling request: %w", NotLoaded())
	require.Equal(t, fiber.StatusServiceUnavailable, StatusCode(wrapped))
	require.True(t, IsKind(wrapped, KindModelNotLoaded))
}

func TestEnvelopeTypedError(t *testing.T) {
	t.Parallel()

	err := UnsupportedParameter("stream", true, "not here")
	body := Envelope(err, "req-123")

	detail, ok := body["error"].(fiber.Map)
	require.True(t, ok)
	require.Equal(t, "invalid_request_error", detail["type"])
	require.Equal(t, "stream", detail["param"])
	require.Equal(t, "unsupported_parameter", detail["code"])
	require.Equal(t, "req-123", detail["request_id"])
	require.Contains(t, detail["message"], "stream")
}

func TestEnvelopeHidesUntypedErrors(t *testing.T) {
	t.Parallel()

	body := Envelope(errors.New("pq: connection refused on 10.0.0.7"), "")
	detail, ok := body["error"].(fiber.Map)
	require.True(t, ok)
	require.Equal(t, "api_error", detail["type"])
	require.Equal(t, "internal_error", detail["code"])
	require.NotContains(t, detail["message"], "10.0.0.7")
	require.NotContains(t, detail, "request_id")
}

func TestErrorUnwrapAndDetails(t *testing.T) {
	t.Parallel()

	cause := errors.New("exit status 1")
	err := Processing("ffmpeg failed", cause).WithDetail("stderr", "boom")
	require.ErrorIs(t, err, cause)
	require.Equal(t, "boom", err.Details["stderr"])
	require.Contains(t, err.Error(), "ffmpeg failed")
	require.Contains(t, err.Error(), "exit status 1")
}
