// Package handler exposes the delivery CRUD endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/delivery/models"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
	dErrors "github.com/xyo-geohacker/chaincheck-sub003/pkg/domain-errors"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/platform/httputil"
)

// Service defines the delivery operations the handler exposes.
type Service interface {
	Register(ctx context.Context, driverID domain.DriverID, dest models.Destination, payment models.PaymentState) (*models.Delivery, error)
	Get(ctx context.Context, id domain.DeliveryID) (*models.Delivery, error)
	ListByDriver(ctx context.Context, driverID domain.DriverID) ([]*models.Delivery, error)
	MarkInTransit(ctx context.Context, id domain.DeliveryID) (*models.Delivery, error)
}

// Handler handles delivery endpoints.
type Handler struct {
	logger     *slog.Logger
	deliveries Service
}

// New creates a delivery Handler.
func New(deliveries Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, deliveries: deliveries}
}

// Register registers the delivery routes with the chi router. Middleware is
// owned by the top-level router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/deliveries", h.handleCreate)
	r.Get("/deliveries/{deliveryID}", h.handleGet)
	r.Post("/deliveries/{deliveryID}/transit", h.handleTransit)
	r.Get("/drivers/{driverID}/deliveries", h.handleListByDriver)
}

type createRequest struct {
	DriverID    string             `json:"driverId"`
	Destination models.Destination `json:"destination"`
	Payment     *paymentTerms      `json:"payment,omitempty"`
}

type paymentTerms struct {
	Currency      string `json:"currency"`
	BuyerAddress  string `json:"buyerAddress"`
	SellerAddress string `json:"sellerAddress"`
	Amount        string `json:"amount"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	driverID, err := domain.ParseDriverID(req.DriverID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	payment, err := paymentState(req.Payment)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	delivery, err := h.deliveries.Register(ctx, driverID, req.Destination, payment)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, delivery)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	deliveryID, err := domain.ParseDeliveryID(chi.URLParam(r, "deliveryID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	delivery, err := h.deliveries.Get(r.Context(), deliveryID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, delivery)
}

func (h *Handler) handleTransit(w http.ResponseWriter, r *http.Request) {
	deliveryID, err := domain.ParseDeliveryID(chi.URLParam(r, "deliveryID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	delivery, err := h.deliveries.MarkInTransit(r.Context(), deliveryID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, delivery)
}

func (h *Handler) handleListByDriver(w http.ResponseWriter, r *http.Request) {
	driverID, err := domain.ParseDriverID(chi.URLParam(r, "driverID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	deliveries, err := h.deliveries.ListByDriver(r.Context(), driverID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if deliveries == nil {
		deliveries = []*models.Delivery{}
	}
	httputil.WriteJSON(w, http.StatusOK, deliveries)
}

// paymentState converts optional wire terms into the payment sub-state.
func paymentState(terms *paymentTerms) (models.PaymentState, error) {
	if terms == nil {
		return models.PaymentState{}, nil
	}
	buyer, err := domain.ParseAddress(terms.BuyerAddress)
	if err != nil {
		return models.PaymentState{}, err
	}
	seller, err := domain.ParseAddress(terms.SellerAddress)
	if err != nil {
		return models.PaymentState{}, err
	}
	amount, ok := new(big.Int).SetString(terms.Amount, 10)
	if !ok {
		return models.PaymentState{}, dErrors.New(dErrors.CodeValidation, "amount must be a decimal integer")
	}
	return models.PaymentState{
		RequiresPaymentOnDelivery: true,
		Currency:                  terms.Currency,
		BuyerAddress:              buyer,
		SellerAddress:             seller,
		Amount:                    amount,
	}, nil
}
