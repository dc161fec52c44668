// Package chain provides read-only access to the witness ledger: block and
// transaction lookups and raw bound-witness records. It carries no business
// logic; callers decide what a missing record means.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
	dErrors "github.com/xyo-geohacker/chaincheck-sub003/pkg/domain-errors"
)

// ErrNotFound is the normal negative result for a lookup. It is never a
// failure; transient upstream errors carry dErrors.CodeTransient instead.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "ledger record not found")

// Transaction is a ledger transaction as returned inside a block.
type Transaction struct {
	Hash        domain.Hash `json:"hash"`
	BlockNumber uint64      `json:"blockNumber"`
}

// Block is a ledger block with its transaction list.
type Block struct {
	Number       uint64        `json:"number"`
	Hash         domain.Hash   `json:"hash"`
	Timestamp    int64         `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
}

// WitnessRecord is a raw bound-witness entry from the ledger. PreviousHash is
// nil when the ledger exposes no linkage for this record; that is a valid
// terminal state, not an error.
type WitnessRecord struct {
	Hash         domain.Hash       `json:"hash"`
	PreviousHash *domain.Hash      `json:"previousHash"`
	BlockNumber  uint64            `json:"blockNumber"`
	Timestamp    int64             `json:"timestamp"`
	Payloads     []json.RawMessage `json:"payloads"`
}

// Receipt reports the inclusion outcome of a submitted transaction.
type Receipt struct {
	TxHash      domain.Hash `json:"transactionHash"`
	BlockNumber uint64      `json:"blockNumber"`
	Success     bool        `json:"success"`
}

// Reader is the read-only ledger surface consumed by the proof and escrow
// layers. Implementations must apply a bounded timeout per call and must
// distinguish not-found from upstream-unreachable.
type Reader interface {
	TransactionBlockNumber(ctx context.Context, txRef domain.Hash) (uint64, error)
	BlockByNumber(ctx context.Context, number uint64) (*Block, error)
	WitnessRecord(ctx context.Context, hash domain.Hash) (*WitnessRecord, error)
	TransactionReceipt(ctx context.Context, txHash domain.Hash) (*Receipt, error)
}

// RPCReader implements Reader over the ledger node's JSON-RPC surface.
type RPCReader struct {
	rpc *RPCClient
}

// NewRPCReader builds a reader against the given ledger RPC endpoint.
func NewRPCReader(url string, timeout time.Duration) *RPCReader {
	return &RPCReader{rpc: NewRPCClient(url, timeout)}
}

// NewRPCReaderWithClient is used by tests and by callers that share one RPC
// client across components.
func NewRPCReaderWithClient(rpc *RPCClient) *RPCReader {
	return &RPCReader{rpc: rpc}
}

// TransactionBlockNumber resolves the block a transaction landed in.
func (r *RPCReader) TransactionBlockNumber(ctx context.Context, txRef domain.Hash) (uint64, error) {
	var tx Transaction
	if err := r.rpc.Call(ctx, "chain_getTransactionByHash", []any{txRef.String()}, &tx); err != nil {
		if errors.Is(err, errNullResult) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return tx.BlockNumber, nil
}

// BlockByNumber fetches a block with its transactions.
func (r *RPCReader) BlockByNumber(ctx context.Context, number uint64) (*Block, error) {
	var block Block
	if err := r.rpc.Call(ctx, "chain_getBlockByNumber", []any{number, true}, &block); err != nil {
		if errors.Is(err, errNullResult) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &block, nil
}

// WitnessRecord fetches a raw bound-witness record by hash.
func (r *RPCReader) WitnessRecord(ctx context.Context, hash domain.Hash) (*WitnessRecord, error) {
	var record WitnessRecord
	if err := r.rpc.Call(ctx, "chain_getBoundWitness", []any{hash.String()}, &record); err != nil {
		if errors.Is(err, errNullResult) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// TransactionReceipt fetches the confirmation receipt for a submitted
// transaction. Not-found means the transaction is still pending.
func (r *RPCReader) TransactionReceipt(ctx context.Context, txHash domain.Hash) (*Receipt, error) {
	var receipt Receipt
	if err := r.rpc.Call(ctx, "chain_getTransactionReceipt", []any{txHash.String()}, &receipt); err != nil {
		if errors.Is(err, errNullResult) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &receipt, nil
}
