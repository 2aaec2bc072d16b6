package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cargolink/settlement/internal/escrow"
)

// RegisterEscrowRoutes wires escrow contract endpoints.
func RegisterEscrowRoutes(r fiber.Router, h *escrow.Handler, rateLimiter fiber.Handler) {
	r.Post("/escrows", rateLimiter, h.Create)
	r.Get("/escrows/:escrowId", h.Get)
	r.Get("/accounts/:publicKey/escrows", h.ListByAccount)
	r.Post("/escrows/:escrowId/release", rateLimiter, h.Release)
	r.Post("/escrows/:escrowId/cancel", rateLimiter, h.Cancel)
}
