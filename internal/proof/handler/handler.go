// Package handler exposes the proof endpoints: create, verify, traverse and
// corroborate location proofs.
package handler

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/chain"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/proof/models"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
	dErrors "github.com/xyo-geohacker/chaincheck-sub003/pkg/domain-errors"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/platform/httputil"
)

const defaultChainDepth = 10

// Service defines the proof operations the handler exposes.
type Service interface {
	CreateLocationProof(ctx context.Context, payload models.ProofPayload) (*models.ProofResult, error)
	VerifyLocationProof(ctx context.Context, rawHash string) (*models.Verification, error)
	QueryLocationDiviner(ctx context.Context, lat, lon float64, ts time.Time) (*models.DivinerResult, error)
	BoundWitnessChain(ctx context.Context, startHash domain.Hash, maxDepth int, seed *chain.WitnessRecord) iter.Seq2[*chain.WitnessRecord, error]
}

// Handler handles proof endpoints.
type Handler struct {
	logger *slog.Logger
	proofs Service
}

// New creates a proof Handler.
func New(proofs Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, proofs: proofs}
}

// Register registers the proof routes with the chi router. Middleware is
// owned by the top-level router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/proofs", h.handleCreate)
	r.Get("/proofs/{hash}/verify", h.handleVerify)
	r.Get("/proofs/{hash}/chain", h.handleChain)
	r.Get("/diviner", h.handleDiviner)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload models.ProofPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	result, err := h.proofs.CreateLocationProof(r.Context(), payload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	verification, err := h.proofs.VerifyLocationProof(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verification)
}

// handleChain walks the witness chain starting at the given proof.
func (h *Handler) handleChain(w http.ResponseWriter, r *http.Request) {
	hash, err := domain.ParseHash(chi.URLParam(r, "hash"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	depth := defaultChainDepth
	if raw := r.URL.Query().Get("depth"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "depth must be between 1 and 1000"))
			return
		}
		depth = parsed
	}

	var records []*chain.WitnessRecord
	for record, err := range h.proofs.BoundWitnessChain(r.Context(), hash, depth, nil) {
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		records = append(records, record)
	}
	if records == nil {
		records = []*chain.WitnessRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, records)
}

func (h *Handler) handleDiviner(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	lat, err := strconv.ParseFloat(query.Get("lat"), 64)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "lat must be a number"))
		return
	}
	lon, err := strconv.ParseFloat(query.Get("lon"), 64)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "lon must be a number"))
		return
	}
	ts := time.Now()
	if raw := query.Get("timestamp"); raw != "" {
		millis, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "timestamp must be unix milliseconds"))
			return
		}
		ts = time.UnixMilli(millis)
	}

	result, err := h.proofs.QueryLocationDiviner(r.Context(), lat, lon, ts)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
