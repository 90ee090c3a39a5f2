// Package public exposes the OpenAI-compatible API surface.
package public

import (
	"github.com/gofiber/fiber/v2"

	"github.com/openasr/parakeetd/internal/app"
)

// Register wires up the OpenAI-compatible public API routes.
func Register(fiberApp *fiber.App, container *app.Container) {
	handler := &apiHandler{container: container}

	group := fiberApp.Group(container.Config.API.Prefix)
	if container.Config.API.APIKey != "" {
		group.Use(apiKeyAuth(container.Config.API.APIKey))
	}

	group.Get("/models", handler.listModels)
	group.Get("/models/:id", handler.getModel)
	group.Post("/audio/transcriptions", handler.audioTranscriptions)
}

type apiHandler struct {
	container *app.Container
}
