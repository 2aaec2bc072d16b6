package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cargolink/settlement/internal/wallet"
)

// RegisterWalletRoutes wires wallet ledger endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, rateLimiter fiber.Handler) {
	r.Post("/wallets", h.Provision)
	r.Get("/wallets/:walletId", h.Get)
	r.Get("/wallets/:walletId/balance", h.Balance)
	r.Get("/wallets/:walletId/transactions", h.Transactions)
	r.Post("/wallets/:walletId/deposit", rateLimiter, h.Deposit)
	r.Post("/wallets/:walletId/withdraw", rateLimiter, h.Withdraw)
}
