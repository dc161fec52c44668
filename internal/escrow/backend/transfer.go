package backend

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"golang.org/x/crypto/sha3"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/chain"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
	dErrors "github.com/xyo-geohacker/chaincheck-sub003/pkg/domain-errors"
)

// LiveTransfer pays a seller straight from the authority wallet. Used by
// deployments without an escrow contract.
type LiveTransfer struct {
	rpc       *chain.RPCClient
	authority string
	asset     string
}

func NewLiveTransfer(rpc *chain.RPCClient, authorityKey, assetSymbol string) *LiveTransfer {
	return &LiveTransfer{rpc: rpc, authority: authorityKey, asset: assetSymbol}
}

type transferRequest struct {
	Authority string `json:"authorityKey"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Asset     string `json:"asset"`
}

func (t *LiveTransfer) Transfer(ctx context.Context, to domain.Address, amount *big.Int) (*TxResult, error) {
	if to.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "transfer recipient is required")
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "transfer amount must be positive")
	}
	var rawHash string
	err := t.rpc.Call(ctx, "chain_transfer", []any{transferRequest{
		Authority: t.authority,
		To:        to.String(),
		Amount:    amount.String(),
		Asset:     t.asset,
	}}, &rawHash)
	if err != nil {
		return nil, err
	}
	txHash, err := domain.ParseHash(rawHash)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "ledger returned malformed transaction hash")
	}
	return &TxResult{TxHash: txHash}, nil
}

// MockTransfer succeeds instantly with a deterministic hash.
type MockTransfer struct {
	mu    sync.Mutex
	count uint64
}

func NewMockTransfer() *MockTransfer {
	return &MockTransfer{}
}

func (t *MockTransfer) Transfer(_ context.Context, to domain.Address, amount *big.Int) (*TxResult, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "transfer amount must be positive")
	}
	t.mu.Lock()
	t.count++
	n := t.count
	t.mu.Unlock()

	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "transfer|%s|%s|%d", to, amount, n)
	return &TxResult{
		TxHash:      domain.Hash(fmt.Sprintf("0x%x", h.Sum(nil))),
		BlockNumber: n,
		Mocked:      true,
	}, nil
}
