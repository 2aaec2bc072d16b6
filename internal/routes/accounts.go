package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cargolink/settlement/internal/stellar"
)

// RegisterAccountRoutes wires settlement-network account endpoints.
func RegisterAccountRoutes(r fiber.Router, h *stellar.Handler) {
	r.Post("/accounts", h.Create)
	r.Get("/accounts/:publicKey/balance", h.Balance)
	r.Get("/accounts/:publicKey/transfers", h.Transfers)
}
