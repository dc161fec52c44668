package backend

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/escrow/models"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
	dErrors "github.com/xyo-geohacker/chaincheck-sub003/pkg/domain-errors"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/platform/sentinel"
)

// Mock implements the full escrow contract semantics in memory. Used when no
// authority key is configured and in tests. Transaction hashes are derived
// deterministically from the operation and key so repeated calls in a test
// are reproducible.
type Mock struct {
	mu           sync.Mutex
	escrows      map[domain.DeliveryKey]*models.Escrow
	deadline     time.Duration
	now          func() time.Time
	blockCounter uint64
}

// MockOption configures the mock backend.
type MockOption func(*Mock)

// WithDeadline overrides the auto-refund window.
func WithDeadline(d time.Duration) MockOption {
	return func(m *Mock) { m.deadline = d }
}

// WithClock injects a test clock.
func WithClock(now func() time.Time) MockOption {
	return func(m *Mock) { m.now = now }
}

func NewMock(opts ...MockOption) *Mock {
	m := &Mock{
		escrows:  make(map[domain.DeliveryKey]*models.Escrow),
		deadline: 30 * 24 * time.Hour,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Deposit(_ context.Context, key domain.DeliveryKey, buyer, seller domain.Address, amount *big.Int) (*TxResult, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "deposit amount must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.escrows[key]; exists {
		return nil, dErrors.Newf(dErrors.CodeInvariant, "escrow already exists for key %s", key)
	}
	now := m.now()
	m.escrows[key] = &models.Escrow{
		Key:             key,
		Buyer:           buyer,
		Seller:          seller,
		Amount:          new(big.Int).Set(amount),
		CreatedAt:       now,
		ReleaseDeadline: now.Add(m.deadline),
	}
	return m.result("deposit", key), nil
}

func (m *Mock) Release(_ context.Context, key domain.DeliveryKey) (*TxResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	escrow, err := m.openEscrow(key)
	if err != nil {
		return nil, err
	}
	escrow.Released = true
	return m.result("release", key), nil
}

func (m *Mock) Refund(_ context.Context, key domain.DeliveryKey) (*TxResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	escrow, err := m.openEscrow(key)
	if err != nil {
		return nil, err
	}
	escrow.Refunded = true
	return m.result("refund", key), nil
}

func (m *Mock) AutoRefund(_ context.Context, key domain.DeliveryKey) (*TxResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	escrow, err := m.openEscrow(key)
	if err != nil {
		return nil, err
	}
	if m.now().Before(escrow.ReleaseDeadline) {
		return nil, dErrors.Newf(dErrors.CodeConflict,
			"auto-refund deadline not reached for key %s", key)
	}
	escrow.Refunded = true
	return m.result("autoRefund", key), nil
}

func (m *Mock) Escrow(_ context.Context, key domain.DeliveryKey) (*models.Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	escrow, exists := m.escrows[key]
	if !exists {
		return nil, fmt.Errorf("escrow %s: %w", key, sentinel.ErrNotFound)
	}
	copied := *escrow
	copied.Amount = new(big.Int).Set(escrow.Amount)
	return &copied, nil
}

func (m *Mock) CanAutoRefund(_ context.Context, key domain.DeliveryKey, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	escrow, exists := m.escrows[key]
	if !exists {
		return false, fmt.Errorf("escrow %s: %w", key, sentinel.ErrNotFound)
	}
	return !escrow.Settled() && !now.Before(escrow.ReleaseDeadline), nil
}

// openEscrow returns the escrow when it exists and is not yet settled.
// Callers hold m.mu.
func (m *Mock) openEscrow(key domain.DeliveryKey) (*models.Escrow, error) {
	escrow, exists := m.escrows[key]
	if !exists {
		return nil, dErrors.Newf(dErrors.CodeInvariant, "no escrow exists for key %s", key)
	}
	if escrow.Settled() {
		return nil, dErrors.Newf(dErrors.CodeInvariant, "escrow %s is already settled", key)
	}
	return escrow, nil
}

// result mints a deterministic transaction hash. Callers hold m.mu.
func (m *Mock) result(op string, key domain.DeliveryKey) *TxResult {
	m.blockCounter++
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "%s|%s", op, key)
	return &TxResult{
		TxHash:      domain.Hash(fmt.Sprintf("0x%x", h.Sum(nil))),
		BlockNumber: m.blockCounter,
		Mocked:      true,
	}
}
