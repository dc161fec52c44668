package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/chain"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/proof/models"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
	dErrors "github.com/xyo-geohacker/chaincheck-sub003/pkg/domain-errors"
)

// DirectSource submits payloads straight to the ledger node and reads them
// back through the chain reader. It is the authoritative path for on-chain
// state.
type DirectSource struct {
	rpc    *chain.RPCClient
	reader chain.Reader
}

// NewDirectSource builds the direct ledger source.
func NewDirectSource(rpc *chain.RPCClient, reader chain.Reader) *DirectSource {
	return &DirectSource{rpc: rpc, reader: reader}
}

func (s *DirectSource) Name() string { return "ledger" }

type submitResult struct {
	Hash        domain.Hash `json:"hash"`
	BlockNumber uint64      `json:"blockNumber"`
}

// Insert submits the payload as a new bound witness and returns the resulting
// ledger reference.
func (s *DirectSource) Insert(ctx context.Context, payload models.ProofPayload) (*InsertResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode proof payload: %w", err)
	}

	var result submitResult
	if err := s.rpc.Call(ctx, "chain_submitBoundWitness", []any{json.RawMessage(body)}, &result); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransient, "submit bound witness")
	}

	raw, err := s.reader.WitnessRecord(ctx, result.Hash)
	if err != nil && !errors.Is(err, chain.ErrNotFound) {
		// Submission succeeded; the read-back is best effort.
		raw = nil
	}
	return &InsertResult{ProofHash: result.Hash, BlockNumber: result.BlockNumber, Raw: raw}, nil
}

// Fetch returns the payload set bound by the witness record.
func (s *DirectSource) Fetch(ctx context.Context, hash domain.Hash) (json.RawMessage, error) {
	record, err := s.reader.WitnessRecord(ctx, hash)
	if err != nil {
		return nil, err
	}
	payloads, err := json.Marshal(record.Payloads)
	if err != nil {
		return nil, fmt.Errorf("encode witness payloads: %w", err)
	}
	return payloads, nil
}

// Validate confirms the record exists on-chain under the claimed hash.
func (s *DirectSource) Validate(ctx context.Context, hash domain.Hash) (*Validation, error) {
	record, err := s.reader.WitnessRecord(ctx, hash)
	if err != nil {
		return nil, err
	}
	if record.Hash != hash {
		return &Validation{Valid: false, Errors: []string{"ledger record hash mismatch"}}, nil
	}
	return &Validation{Valid: true}, nil
}
