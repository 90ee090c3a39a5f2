package public

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/openasr/parakeetd/internal/httpserver/httputil"
	"github.com/openasr/parakeetd/internal/models"
)

func (h *apiHandler) listModels(c *fiber.Ctx) error {
	return c.JSON(models.ListModels())
}

func (h *apiHandler) getModel(c *fiber.Ctx) error {
	id := c.Params("id")
	info, ok := models.GetModel(id)
	if !ok {
		return httputil.WriteMessage(c, fiber.StatusNotFound, "invalid_request_error",
			fmt.Sprintf("Model '%s' not found", id), "model_id", "model_not_found")
	}
	return c.JSON(info)
}
