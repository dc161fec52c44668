// Package handler exposes the settlement endpoints: verify a delivery,
// inspect and drive its payment lifecycle.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	deliverymodels "github.com/xyo-geohacker/chaincheck-sub003/internal/delivery/models"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/escrow/backend"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/platform/middleware"
	proofmodels "github.com/xyo-geohacker/chaincheck-sub003/internal/proof/models"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/settlement/service"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
	dErrors "github.com/xyo-geohacker/chaincheck-sub003/pkg/domain-errors"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/platform/httputil"
)

// Settler is the orchestrator surface the handler invokes.
type Settler interface {
	VerifyAndSettle(ctx context.Context, req service.Request) (*service.Result, error)
}

// Coordinator drives the escrow lifecycle directly.
type Coordinator interface {
	Deposit(ctx context.Context, deliveryID domain.DeliveryID) (*backend.TxResult, error)
	Release(ctx context.Context, deliveryID domain.DeliveryID) (*backend.TxResult, error)
	Refund(ctx context.Context, deliveryID domain.DeliveryID) (*backend.TxResult, error)
	AutoRefund(ctx context.Context, deliveryID domain.DeliveryID) (*backend.TxResult, error)
}

// DeliveryReader looks up delivery records for status responses.
type DeliveryReader interface {
	Get(ctx context.Context, id domain.DeliveryID) (*deliverymodels.Delivery, error)
}

// Handler handles settlement endpoints.
type Handler struct {
	logger      *slog.Logger
	settler     Settler
	coordinator Coordinator
	deliveries  DeliveryReader
}

// New creates a settlement Handler. coordinator may be nil when escrow is
// not configured; the escrow routes then answer with a validation error.
func New(settler Settler, coordinator Coordinator, deliveries DeliveryReader, logger *slog.Logger) *Handler {
	return &Handler{
		logger:      logger,
		settler:     settler,
		coordinator: coordinator,
		deliveries:  deliveries,
	}
}

// Register registers the settlement routes with the chi router. Middleware is
// owned by the top-level router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/deliveries/{deliveryID}/verify", h.handleVerify)
	r.Get("/deliveries/{deliveryID}/payment", h.handlePaymentStatus)
	r.Post("/deliveries/{deliveryID}/escrow", h.escrowOp("deposit"))
	r.Post("/deliveries/{deliveryID}/release", h.escrowOp("release"))
	r.Post("/deliveries/{deliveryID}/refund", h.escrowOp("refund"))
	r.Post("/deliveries/{deliveryID}/auto-refund", h.escrowOp("auto-refund"))
}

type verifyRequest struct {
	ProofHash string                     `json:"proofHash,omitempty"`
	Payload   *proofmodels.ProofPayload  `json:"payload,omitempty"`
}

// handleVerify runs the verify-and-settle sequence for a delivery.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deliveryID, err := domain.ParseDeliveryID(chi.URLParam(r, "deliveryID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	result, err := h.settler.VerifyAndSettle(ctx, service.Request{
		DeliveryID: deliveryID,
		ProofHash:  req.ProofHash,
		Payload:    req.Payload,
	})
	if err != nil {
		h.logError(ctx, "verify and settle failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

type paymentStatusResponse struct {
	DeliveryID    string `json:"deliveryId"`
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
	TxHash        string `json:"transactionHash,omitempty"`
	BlockNumber   uint64 `json:"blockNumber,omitempty"`
	Error         string `json:"error,omitempty"`
}

func (h *Handler) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deliveryID, err := domain.ParseDeliveryID(chi.URLParam(r, "deliveryID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	delivery, err := h.deliveries.Get(ctx, deliveryID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, paymentStatusResponse{
		DeliveryID:    delivery.ID.String(),
		Status:        string(delivery.Status),
		PaymentStatus: string(delivery.Payment.Status),
		TxHash:        delivery.Payment.TxHash.String(),
		BlockNumber:   delivery.Payment.BlockNumber,
		Error:         delivery.Payment.Error,
	})
}

type txResponse struct {
	TransactionHash string `json:"transactionHash"`
	BlockNumber     uint64 `json:"blockNumber,omitempty"`
	Mocked          bool   `json:"mocked,omitempty"`
}

// escrowOp dispatches one coordinator operation.
func (h *Handler) escrowOp(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if h.coordinator == nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "escrow is not configured"))
			return
		}
		deliveryID, err := domain.ParseDeliveryID(chi.URLParam(r, "deliveryID"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}

		var result *backend.TxResult
		switch op {
		case "deposit":
			result, err = h.coordinator.Deposit(ctx, deliveryID)
		case "release":
			result, err = h.coordinator.Release(ctx, deliveryID)
		case "refund":
			result, err = h.coordinator.Refund(ctx, deliveryID)
		default:
			result, err = h.coordinator.AutoRefund(ctx, deliveryID)
		}
		if err != nil {
			h.logError(ctx, "escrow "+op+" failed", err)
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, txResponse{
			TransactionHash: result.TxHash.String(),
			BlockNumber:     result.BlockNumber,
			Mocked:          result.Mocked,
		})
	}
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	if h.logger == nil {
		return
	}
	h.logger.ErrorContext(ctx, msg,
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	)
}
