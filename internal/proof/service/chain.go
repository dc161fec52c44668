package service

import (
	"context"
	"errors"
	"iter"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/chain"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
)

// BoundWitnessChain lazily walks the driver-scoped witness chain starting at
// startHash, resolving each record's previous-hash reference. The traversal
// stops at maxDepth hops, on a missing or nil previous-hash link, or on a
// repeated hash. Cycle termination is mandatory: a malformed or adversarial
// chain must not hang the caller, so no hash is ever visited twice.
//
// seed, when non-nil, is used as the first record without a ledger lookup;
// proof creation already holds the freshly produced record in hand.
func (s *Service) BoundWitnessChain(ctx context.Context, startHash domain.Hash, maxDepth int, seed *chain.WitnessRecord) iter.Seq2[*chain.WitnessRecord, error] {
	return func(yield func(*chain.WitnessRecord, error) bool) {
		if maxDepth <= 0 {
			return
		}

		visited := make(map[domain.Hash]struct{}, maxDepth)
		next := startHash

		emit := func(record *chain.WitnessRecord) (domain.Hash, bool) {
			visited[record.Hash] = struct{}{}
			if !yield(record, nil) {
				return "", false
			}
			if record.PreviousHash == nil {
				// No linkage available: a valid terminal state (surfaced as a
				// metric), not an error.
				s.metrics.RecordMissingLink()
				return "", false
			}
			return *record.PreviousHash, true
		}

		depth := 0
		if seed != nil && seed.Hash == startHash {
			hash, ok := emit(seed)
			if !ok {
				return
			}
			next = hash
			depth++
		}

		for depth < maxDepth {
			if _, seen := visited[next]; seen {
				s.metrics.RecordCycle()
				return
			}

			record, err := s.reader.WitnessRecord(ctx, next)
			if err != nil {
				if errors.Is(err, chain.ErrNotFound) {
					// Dangling reference: chain ends here.
					return
				}
				yield(nil, err)
				return
			}

			hash, ok := emit(record)
			if !ok {
				return
			}
			next = hash
			depth++
		}
	}
}
