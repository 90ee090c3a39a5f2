// Package httputil renders API errors in the OpenAI envelope shape.
package httputil

import (
	"github.com/gofiber/fiber/v2"

	"github.com/openasr/parakeetd/internal/apierrors"
	"github.com/openasr/parakeetd/internal/requestctx"
)

// WriteError maps err onto its HTTP status and writes the JSON error
// envelope, tagging it with the request id when one is attached.
func WriteError(c *fiber.Ctx, err error) error {
	requestID := requestctx.RequestID(c.UserContext())
	status := apierrors.StatusCode(err)
	return c.Status(status).JSON(apierrors.Envelope(err, requestID))
}

// WriteMessage writes a plain validation-style envelope for errors that
// originate in the HTTP layer itself.
func WriteMessage(c *fiber.Ctx, status int, errType, message, param, code string) error {
	requestID := requestctx.RequestID(c.UserContext())
	body := fiber.Map{
		"message": message,
		"type":    errType,
	}
	if param != "" {
		body["param"] = param
	}
	if code != "" {
		body["code"] = code
	}
	if requestID != "" {
		body["request_id"] = requestID
	}
	return c.Status(status).JSON(fiber.Map{"error": body})
}
