package stellar

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes settlement-account HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a settlement-account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createAccountRequest struct {
	OwnerRef string `json:"owner_ref"`
}

type transferResponse struct {
	Ref         string `json:"ref"`
	Source      string `json:"source_account"`
	Destination string `json:"destination_account"`
	Amount      string `json:"amount"`
	Asset       string `json:"asset"`
	Status      string `json:"status"`
	Hash        string `json:"hash,omitempty"`
	Ledger      int64  `json:"ledger,omitempty"`
	ErrorDetail string `json:"error_detail,omitempty"`
}

// Create provisions a settlement-network account. The secret seed is
// returned exactly once and stored only sealed.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	created, err := h.service.CreateAccount(c.UserContext(), req.OwnerRef)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"public_key": created.PublicKey,
		"secret":     created.Secret,
	})
}

// Balance fetches the live balance for the account.
func (h *Handler) Balance(c *fiber.Ctx) error {
	asset := c.Query("asset", AssetNative)
	balance, err := h.service.AccountBalance(c.UserContext(), c.Params("publicKey"), asset)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusBadGateway, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"public_key": c.Params("publicKey"),
		"asset":      asset,
		"balance":    balance.String(),
	})
}

// Transfers lists receipts touching the account, newest first.
func (h *Handler) Transfers(c *fiber.Ctx) error {
	transfers, err := h.service.ListTransfersByAccount(c.UserContext(), c.Params("publicKey"))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]transferResponse, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, transferResponse{
			Ref:         t.Ref,
			Source:      t.SourceAccount,
			Destination: t.DestinationAccount,
			Amount:      t.Amount.String(),
			Asset:       t.Asset,
			Status:      string(t.Status),
			Hash:        t.Hash,
			Ledger:      t.Ledger,
			ErrorDetail: t.ErrorDetail,
		})
	}
	return c.Status(http.StatusOK).JSON(out)
}
