// Package service implements proof creation and verification with prioritized
// multi-source fallback over the ledger sources.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/chain"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/proof/cache"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/proof/diviner"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/proof/ledger"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/proof/metrics"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/proof/models"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
	dErrors "github.com/xyo-geohacker/chaincheck-sub003/pkg/domain-errors"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/platform/circuit"
)

// Service creates and verifies location proofs. Verification tries the direct
// ledger path first and the archival index second; the archival path is
// skipped entirely when administratively disabled.
type Service struct {
	reader    chain.Reader
	direct    ledger.Source
	archivist ledger.Source

	cache   *cache.PayloadCache
	diviner diviner.Client
	breaker *circuit.Breaker

	mockProofs        bool
	archivistDisabled bool
	divinerDisabled   bool

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithCache installs the Redis payload cache consulted before the archivist.
func WithCache(c *cache.PayloadCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithDiviner installs the real consensus client.
func WithDiviner(c diviner.Client) Option {
	return func(s *Service) { s.diviner = c }
}

// WithBreaker guards archivist calls with a circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Service) { s.breaker = b }
}

// WithMockProofs forces deterministic proof synthesis regardless of ledger
// availability. Selected once at construction, never per call.
func WithMockProofs(mock bool) Option {
	return func(s *Service) { s.mockProofs = mock }
}

// WithArchivistDisabled administratively disables the archival fallback.
func WithArchivistDisabled(disabled bool) Option {
	return func(s *Service) { s.archivistDisabled = disabled }
}

// WithDivinerDisabled administratively disables consensus queries.
func WithDivinerDisabled(disabled bool) Option {
	return func(s *Service) { s.divinerDisabled = disabled }
}

// New constructs the proof service. direct may be nil when no ledger
// connection is configured; creation then always synthesizes mock proofs.
func New(reader chain.Reader, direct, archivist ledger.Source, opts ...Option) *Service {
	s := &Service{reader: reader, direct: direct, archivist: archivist}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateLocationProof records the payload on the ledger and returns its proof
// reference. When mock mode is forced, no ledger is configured, or the ledger
// is unreachable, it deterministically synthesizes a proof instead; callers
// can only tell the difference by the Mocked flag.
func (s *Service) CreateLocationProof(ctx context.Context, payload models.ProofPayload) (*models.ProofResult, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	if s.mockProofs || s.direct == nil {
		result := s.mockProof(payload)
		s.metrics.RecordProofCreated(true)
		return result, nil
	}

	inserted, err := s.direct.Insert(ctx, payload)
	if err != nil {
		if !dErrors.Retryable(err) {
			return nil, err
		}
		if s.logger != nil {
			s.logger.WarnContext(ctx, "ledger unavailable, synthesizing mock proof",
				"delivery_id", payload.DeliveryID.String(),
				"error", err.Error(),
			)
		}
		result := s.mockProof(payload)
		s.metrics.RecordProofCreated(true)
		return result, nil
	}

	s.metrics.RecordProofCreated(false)
	return &models.ProofResult{
		ProofHash:   inserted.ProofHash,
		BlockNumber: inserted.BlockNumber,
		RawWitness:  inserted.Raw,
	}, nil
}

// mockProof derives a stable hash from the payload's identifying fields so
// repeated calls for the same payload return the same reference.
func (s *Service) mockProof(payload models.ProofPayload) *models.ProofResult {
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "%s|%s|%.6f|%.6f|%d",
		payload.DriverID, payload.DeliveryID,
		payload.Latitude, payload.Longitude,
		payload.Timestamp.UnixMilli(),
	)
	hash := domain.Hash(fmt.Sprintf("0x%x", h.Sum(nil)))

	encoded, _ := json.Marshal(payload)
	return &models.ProofResult{
		ProofHash: hash,
		Mocked:    true,
		RawWitness: &chain.WitnessRecord{
			Hash:      hash,
			Timestamp: payload.Timestamp.UnixMilli(),
			Payloads:  []json.RawMessage{encoded},
		},
	}
}

// VerifyLocationProof checks the proof against sources in strict priority
// order and returns on first success. A proof that cannot be found anywhere is
// a negative result, not an error; only malformed input errors.
func (s *Service) VerifyLocationProof(ctx context.Context, rawHash string) (*models.Verification, error) {
	hash, err := domain.ParseHash(rawHash)
	if err != nil {
		return nil, err
	}

	verification := &models.Verification{ProofHash: hash}

	if done := s.verifyDirect(ctx, hash, verification); done {
		return verification, nil
	}

	if s.archivistDisabled {
		verification.Errors = append(verification.Errors, "archival subsystem is disabled")
		s.metrics.RecordVerification("archivist", "disabled")
		return verification, nil
	}

	if payload, ok := s.cache.Get(ctx, hash); ok {
		verification.Valid = true
		verification.Source = "cache"
		verification.Payload = payload
		s.metrics.RecordVerification("cache", "valid")
		return verification, nil
	}

	s.verifyArchivist(ctx, hash, verification)
	return verification, nil
}

// verifyDirect attempts the authoritative ledger lookup. Returns true when
// the verification is settled (valid), false when fallback should proceed.
func (s *Service) verifyDirect(ctx context.Context, hash domain.Hash, verification *models.Verification) bool {
	record, err := s.reader.WitnessRecord(ctx, hash)
	if err != nil {
		if errors.Is(err, chain.ErrNotFound) {
			verification.Errors = append(verification.Errors, "ledger: record not found")
			s.metrics.RecordVerification("ledger", "not_found")
		} else {
			verification.Errors = append(verification.Errors, "ledger: "+err.Error())
			s.metrics.RecordVerification("ledger", "error")
		}
		return false
	}

	if record.PreviousHash == nil {
		// Upstream sometimes cannot resolve linkage; a nil link is a valid
		// terminal state we only surface as a metric.
		s.metrics.RecordMissingLink()
	}

	verification.Valid = true
	verification.Source = "ledger"
	verification.BlockNumber = record.BlockNumber
	if payload, err := json.Marshal(record.Payloads); err == nil {
		verification.Payload = payload
		s.cache.Set(ctx, hash, payload)
	}
	s.metrics.RecordVerification("ledger", "valid")
	return true
}

// verifyArchivist attempts the archival fallback, guarded by the breaker.
func (s *Service) verifyArchivist(ctx context.Context, hash domain.Hash, verification *models.Verification) {
	if s.archivist == nil {
		verification.Errors = append(verification.Errors, "archivist: not configured")
		return
	}
	if s.breaker != nil && s.breaker.IsOpen() {
		verification.Errors = append(verification.Errors, "archivist: circuit open")
		s.metrics.RecordVerification("archivist", "skipped")
		return
	}

	validation, err := s.archivist.Validate(ctx, hash)
	if err != nil {
		if errors.Is(err, chain.ErrNotFound) {
			verification.Errors = append(verification.Errors, "archivist: payload not found")
			s.metrics.RecordVerification("archivist", "not_found")
			if s.breaker != nil {
				s.breaker.RecordSuccess()
			}
			return
		}
		verification.Errors = append(verification.Errors, "archivist: "+err.Error())
		s.metrics.RecordVerification("archivist", "error")
		if s.breaker != nil {
			s.breaker.RecordFailure()
		}
		return
	}
	if s.breaker != nil {
		s.breaker.RecordSuccess()
	}

	if !validation.Valid {
		verification.Errors = append(verification.Errors, validation.Errors...)
		s.metrics.RecordVerification("archivist", "invalid")
		return
	}

	verification.Valid = true
	verification.Source = s.archivist.Name()
	if payload, err := s.archivist.Fetch(ctx, hash); err == nil {
		verification.Payload = payload
		s.cache.Set(ctx, hash, payload)
	}
	s.metrics.RecordVerification("archivist", "valid")
}

// QueryLocationDiviner corroborates a claimed location through the consensus
// network. With the subsystem disabled it returns a deterministic mock so
// downstream settlement logic never treats an unavailable diviner as an error.
func (s *Service) QueryLocationDiviner(ctx context.Context, lat, lon float64, ts time.Time) (*models.DivinerResult, error) {
	if lat < -90 || lat > 90 {
		return nil, dErrors.New(dErrors.CodeValidation, "latitude out of range")
	}
	if lon < -180 || lon > 180 {
		return nil, dErrors.New(dErrors.CodeValidation, "longitude out of range")
	}

	if s.divinerDisabled || s.diviner == nil {
		s.metrics.RecordDivinerQuery(true)
		return &models.DivinerResult{Consensus: 1.0, Mocked: true}, nil
	}

	result, err := s.diviner.Query(ctx, lat, lon, ts)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordDivinerQuery(false)
	return result, nil
}
