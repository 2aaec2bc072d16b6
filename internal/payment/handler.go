package payment

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/cargolink/settlement/internal/money"
)

// Handler exposes the payment orchestration HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a payment HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Provider    string            `json:"provider"`
	Amount      string            `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
	CustomerID  string            `json:"customer_id"`
	ReturnURL   string            `json:"return_url"`
	Reference   string            `json:"reference"`
}

type refundRequest struct {
	Amount string `json:"amount"`
}

type paymentResponse struct {
	ID                string            `json:"id"`
	Provider          string            `json:"provider"`
	ProviderPaymentID string            `json:"provider_payment_id"`
	Amount            string            `json:"amount"`
	Currency          string            `json:"currency"`
	Status            string            `json:"status"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	ProviderData      map[string]string `json:"provider_data,omitempty"`
	RedirectURL       string            `json:"redirect_url,omitempty"`
}

// Create submits a payment intent to the named provider.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.ParsePositive(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	p, err := h.service.Create(c.UserContext(), req.Provider, Intent{
		Amount:      amount,
		Currency:    req.Currency,
		Description: req.Description,
		Metadata:    req.Metadata,
		CustomerID:  req.CustomerID,
		ReturnURL:   req.ReturnURL,
		Reference:   req.Reference,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(p))
}

// Get returns the reconciled payment.
func (h *Handler) Get(c *fiber.Ctx) error {
	p, err := h.service.Get(c.UserContext(), c.Params("paymentId"))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(p))
}

// Cancel cancels a pending or processing payment.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	p, err := h.service.Cancel(c.UserContext(), c.Params("paymentId"))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(p))
}

// Refund refunds a succeeded payment, fully or partially.
func (h *Handler) Refund(c *fiber.Ctx) error {
	var req refundRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	var amount *decimal.Decimal
	if req.Amount != "" {
		parsed, err := money.ParsePositive(req.Amount)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		amount = &parsed
	}
	p, err := h.service.Refund(c.UserContext(), c.Params("paymentId"), amount)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(p))
}

// Webhook receives gateway callback events.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	signature := c.Get("Stripe-Signature")
	if signature == "" {
		signature = c.Get("X-Webhook-Signature")
	}
	p, err := h.service.Webhook(c.UserContext(), c.Params("provider"), c.Body(), signature)
	if err != nil {
		return mapError(err)
	}
	if p == nil {
		// Unknown event type: acknowledged and ignored.
		return c.SendStatus(http.StatusOK)
	}
	return c.Status(http.StatusOK).JSON(toResponse(p))
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUnknownProvider):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrRefundExceedsAmount):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrExternalUnavailable):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	default:
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
}

func toResponse(p *Payment) paymentResponse {
	return paymentResponse{
		ID:                p.ID,
		Provider:          p.ProviderName,
		ProviderPaymentID: p.ProviderPaymentID,
		Amount:            p.Amount.String(),
		Currency:          p.Currency,
		Status:            string(p.Status),
		Metadata:          p.Metadata,
		ProviderData:      p.ProviderData,
		RedirectURL:       p.RedirectURL,
	}
}
