package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cargolink/settlement/internal/payment"
)

// RegisterPaymentRoutes wires payment endpoints. Webhooks hang off the app
// root, outside the versioned surface and its idempotency requirement, and
// carry the audit middleware since they mutate state without a caller we
// can attribute.
func RegisterPaymentRoutes(app *fiber.App, r fiber.Router, h *payment.Handler, rateLimiter, audit fiber.Handler) {
	r.Post("/payments", rateLimiter, h.Create)
	r.Get("/payments/:paymentId", h.Get)
	r.Post("/payments/:paymentId/cancel", h.Cancel)
	r.Post("/payments/:paymentId/refund", rateLimiter, h.Refund)

	app.Post("/webhooks/:provider", audit, h.Webhook)
}
