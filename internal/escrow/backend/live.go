package backend

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/chain"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/escrow/models"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
	dErrors "github.com/xyo-geohacker/chaincheck-sub003/pkg/domain-errors"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/platform/sentinel"
)

// Live talks to the escrow contract through the ledger node. Every
// state-changing call submits a transaction signed by the authority key and
// blocks until the receipt is confirmed or the confirmation window elapses,
// so a returned TxResult is always final.
type Live struct {
	rpc         *chain.RPCClient
	reader      chain.Reader
	contract    domain.Address
	authority   string
	confirmWait time.Duration
	pollEvery   time.Duration
}

// NewLive constructs the live backend. confirmWait bounds how long a call
// waits for receipt confirmation before reporting a transient error.
func NewLive(rpc *chain.RPCClient, reader chain.Reader, contract domain.Address, authorityKey string, confirmWait time.Duration) *Live {
	if confirmWait <= 0 {
		confirmWait = 30 * time.Second
	}
	return &Live{
		rpc:         rpc,
		reader:      reader,
		contract:    contract,
		authority:   authorityKey,
		confirmWait: confirmWait,
		pollEvery:   time.Second,
	}
}

func (l *Live) Name() string { return "ledger" }

type txRequest struct {
	Contract  string `json:"contract"`
	Authority string `json:"authorityKey"`
	Key       string `json:"key"`
	Buyer     string `json:"buyer,omitempty"`
	Seller    string `json:"seller,omitempty"`
	Amount    string `json:"amount,omitempty"`
}

type escrowSlot struct {
	Buyer           domain.Address `json:"buyer"`
	Seller          domain.Address `json:"seller"`
	Amount          string         `json:"amount"`
	Released        bool           `json:"released"`
	Refunded        bool           `json:"refunded"`
	CreatedAt       int64          `json:"createdAt"`
	ReleaseDeadline int64          `json:"releaseDeadline"`
}

func (l *Live) Deposit(ctx context.Context, key domain.DeliveryKey, buyer, seller domain.Address, amount *big.Int) (*TxResult, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "deposit amount must be positive")
	}
	return l.submit(ctx, "escrow_deposit", txRequest{
		Contract:  l.contract.String(),
		Authority: l.authority,
		Key:       key.Hex(),
		Buyer:     buyer.String(),
		Seller:    seller.String(),
		Amount:    amount.String(),
	})
}

func (l *Live) Release(ctx context.Context, key domain.DeliveryKey) (*TxResult, error) {
	return l.submit(ctx, "escrow_release", txRequest{
		Contract:  l.contract.String(),
		Authority: l.authority,
		Key:       key.Hex(),
	})
}

func (l *Live) Refund(ctx context.Context, key domain.DeliveryKey) (*TxResult, error) {
	return l.submit(ctx, "escrow_refund", txRequest{
		Contract:  l.contract.String(),
		Authority: l.authority,
		Key:       key.Hex(),
	})
}

func (l *Live) AutoRefund(ctx context.Context, key domain.DeliveryKey) (*TxResult, error) {
	return l.submit(ctx, "escrow_autoRefund", txRequest{
		Contract:  l.contract.String(),
		Authority: l.authority,
		Key:       key.Hex(),
	})
}

func (l *Live) Escrow(ctx context.Context, key domain.DeliveryKey) (*models.Escrow, error) {
	var slot escrowSlot
	err := l.rpc.Call(ctx, "escrow_getEscrow", []any{l.contract.String(), key.Hex()}, &slot)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, fmt.Errorf("escrow %s: %w", key, sentinel.ErrNotFound)
		}
		return nil, err
	}
	amount, ok := new(big.Int).SetString(slot.Amount, 10)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeInternal, "ledger returned malformed amount %q", slot.Amount)
	}
	return &models.Escrow{
		Key:             key,
		Buyer:           slot.Buyer,
		Seller:          slot.Seller,
		Amount:          amount,
		Released:        slot.Released,
		Refunded:        slot.Refunded,
		CreatedAt:       time.UnixMilli(slot.CreatedAt),
		ReleaseDeadline: time.UnixMilli(slot.ReleaseDeadline),
	}, nil
}

func (l *Live) CanAutoRefund(ctx context.Context, key domain.DeliveryKey, now time.Time) (bool, error) {
	escrow, err := l.Escrow(ctx, key)
	if err != nil {
		return false, err
	}
	return !escrow.Settled() && !now.Before(escrow.ReleaseDeadline), nil
}

// submit sends the transaction and waits for its confirmed receipt.
func (l *Live) submit(ctx context.Context, method string, req txRequest) (*TxResult, error) {
	var rawHash string
	if err := l.rpc.Call(ctx, method, []any{req}, &rawHash); err != nil {
		return nil, err
	}
	txHash, err := domain.ParseHash(rawHash)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "ledger returned malformed transaction hash")
	}
	return l.confirm(ctx, txHash)
}

// confirm polls for the receipt until the confirmation window elapses. A
// missing receipt at the deadline is transient: the transaction may still
// land, and reconciliation picks it up later.
func (l *Live) confirm(ctx context.Context, txHash domain.Hash) (*TxResult, error) {
	deadline := time.Now().Add(l.confirmWait)
	ticker := time.NewTicker(l.pollEvery)
	defer ticker.Stop()

	for {
		receipt, err := l.reader.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil && receipt.Success:
			return &TxResult{TxHash: txHash, BlockNumber: receipt.BlockNumber}, nil
		case err == nil:
			return nil, dErrors.Newf(dErrors.CodeInvariant, "transaction %s reverted", txHash)
		case !errors.Is(err, chain.ErrNotFound) && !dErrors.Retryable(err):
			return nil, err
		}

		if time.Now().After(deadline) {
			return nil, dErrors.Newf(dErrors.CodeTransient,
				"transaction %s not confirmed within %s", txHash, l.confirmWait)
		}
		select {
		case <-ctx.Done():
			return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTransient, "confirmation wait interrupted")
		case <-ticker.C:
		}
	}
}
