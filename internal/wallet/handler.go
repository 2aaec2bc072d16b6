package wallet

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/cargolink/settlement/internal/money"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type provisionRequest struct {
	OwnerID  string `json:"owner_id"`
	Currency string `json:"currency"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type walletResponse struct {
	ID       string `json:"id"`
	OwnerID  string `json:"owner_id"`
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
}

type transactionResponse struct {
	ID       string `json:"id"`
	WalletID string `json:"wallet_id"`
	Amount   string `json:"amount"`
	Kind     string `json:"kind"`
	Status   string `json:"status"`
}

// Provision creates a wallet for the given owner.
func (h *Handler) Provision(c *fiber.Ctx) error {
	var req provisionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	w, err := h.service.Provision(c.UserContext(), ProvisionInput{OwnerID: req.OwnerID, Currency: req.Currency})
	if err != nil {
		if errors.Is(err, ErrDuplicateWallet) {
			return fiber.NewError(http.StatusConflict, err.Error())
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(toWalletResponse(w))
}

// Get returns wallet metadata and balance.
func (h *Handler) Get(c *fiber.Ctx) error {
	w, err := h.service.Get(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toWalletResponse(w))
}

// Balance returns just the committed balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	w, err := h.service.Get(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id": w.ID,
		"balance":   w.Balance.String(),
		"currency":  w.Currency,
	})
}

// Deposit credits the wallet.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	return h.mutate(c, h.service.Deposit)
}

// Withdraw debits the wallet.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	return h.mutate(c, h.service.Withdraw)
}

// Transactions lists the wallet's ledger history, newest first.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	txns, err := h.service.ListTransactions(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	out := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, toTransactionResponse(t))
	}
	return c.Status(http.StatusOK).JSON(out)
}

func (h *Handler) mutate(c *fiber.Ctx, op func(context.Context, string, decimal.Decimal) (Transaction, error)) error {
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.ParsePositive(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	txn, err := op(c.UserContext(), c.Params("walletId"), amount)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrInsufficientFunds):
			return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
		default:
			return fiber.NewError(http.StatusBadGateway, err.Error())
		}
	}
	return c.Status(http.StatusCreated).JSON(toTransactionResponse(txn))
}

func toWalletResponse(w Wallet) walletResponse {
	return walletResponse{ID: w.ID, OwnerID: w.OwnerID, Balance: w.Balance.String(), Currency: w.Currency}
}

func toTransactionResponse(t Transaction) transactionResponse {
	return transactionResponse{ID: t.ID, WalletID: t.WalletID, Amount: t.Amount.String(), Kind: string(t.Kind), Status: string(t.Status)}
}
