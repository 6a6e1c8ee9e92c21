package http

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
)

// HealthIndexAction reports service liveness
func HealthIndexAction(ctx *cartridge.Context) error {
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"status": "ok"})
}
