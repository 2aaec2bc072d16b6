package escrow

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// Handler exposes escrow HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an escrow HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	SourceSecret       string   `json:"source_secret"`
	DestinationAccount string   `json:"destination_account"`
	Amount             string   `json:"amount"`
	Asset              string   `json:"asset"`
	ReleaseConditions  []string `json:"release_conditions"`
	Memo               string   `json:"memo"`
	ExpiresAt          string   `json:"expires_at"`
}

type cancelRequest struct {
	SourceSecret string `json:"source_secret"`
}

type contractResponse struct {
	ID                 string   `json:"id"`
	SourceAccount      string   `json:"source_account"`
	DestinationAccount string   `json:"destination_account"`
	Amount             string   `json:"amount"`
	Asset              string   `json:"asset"`
	ReleaseConditions  []string `json:"release_conditions"`
	EscrowAccount      string   `json:"escrow_account"`
	FundingTransferRef string   `json:"funding_transfer_ref,omitempty"`
	ReleaseTransferRef string   `json:"release_transfer_ref,omitempty"`
	Memo               string   `json:"memo,omitempty"`
	ExpiresAt          string   `json:"expires_at,omitempty"`
	Status             string   `json:"status"`
}

// Create opens a new escrow contract.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid amount")
	}
	input := CreateInput{
		SourceSecret:       req.SourceSecret,
		DestinationAccount: req.DestinationAccount,
		Amount:             amount,
		Asset:              req.Asset,
		ReleaseConditions:  req.ReleaseConditions,
		Memo:               req.Memo,
	}
	if req.ExpiresAt != "" {
		expires, parseErr := time.Parse(time.RFC3339, req.ExpiresAt)
		if parseErr != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid expires_at, want RFC 3339")
		}
		input.ExpiresAt = &expires
	}
	contract, err := h.service.Create(c.UserContext(), input)
	if err != nil {
		if contract.ID != "" {
			// The contract exists but its funding did not complete; the
			// caller gets the pending record and reconciliation finishes
			// the rest.
			return c.Status(http.StatusAccepted).JSON(toContractResponse(contract))
		}
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toContractResponse(contract))
}

// Get returns one escrow contract.
func (h *Handler) Get(c *fiber.Ctx) error {
	contract, err := h.service.Get(c.UserContext(), c.Params("escrowId"))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toContractResponse(contract))
}

// ListByAccount returns the contracts touching a settlement account.
func (h *Handler) ListByAccount(c *fiber.Ctx) error {
	contracts, err := h.service.ListByAccount(c.UserContext(), c.Params("publicKey"))
	if err != nil {
		return mapError(err)
	}
	out := make([]contractResponse, 0, len(contracts))
	for _, contract := range contracts {
		out = append(out, toContractResponse(contract))
	}
	return c.Status(http.StatusOK).JSON(out)
}

// Release pays the escrowed funds to the destination.
func (h *Handler) Release(c *fiber.Ctx) error {
	contract, err := h.service.Release(c.UserContext(), c.Params("escrowId"))
	if err != nil {
		if errors.Is(err, ErrExternalUnavailable) && contract.ID != "" {
			return c.Status(http.StatusAccepted).JSON(toContractResponse(contract))
		}
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toContractResponse(contract))
}

// Cancel returns the escrowed funds to the source.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	var req cancelRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	contract, err := h.service.Cancel(c.UserContext(), c.Params("escrowId"), req.SourceSecret)
	if err != nil {
		if errors.Is(err, ErrExternalUnavailable) && contract.ID != "" {
			return c.Status(http.StatusAccepted).JSON(toContractResponse(contract))
		}
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toContractResponse(contract))
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidState):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnauthorized):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrExternalUnavailable):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	default:
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
}

func toContractResponse(contract Contract) contractResponse {
	resp := contractResponse{
		ID:                 contract.ID,
		SourceAccount:      contract.SourceAccount,
		DestinationAccount: contract.DestinationAccount,
		Amount:             contract.Amount.String(),
		Asset:              contract.Asset,
		ReleaseConditions:  contract.ReleaseConditions,
		EscrowAccount:      contract.EscrowAccount,
		FundingTransferRef: contract.FundingTransferRef,
		ReleaseTransferRef: contract.ReleaseTransferRef,
		Memo:               contract.Memo,
		Status:             string(contract.Status),
	}
	if contract.ExpiresAt != nil {
		resp.ExpiresAt = contract.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return resp
}
