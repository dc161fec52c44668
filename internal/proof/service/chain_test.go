package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/chain"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
	dErrors "github.com/xyo-geohacker/chaincheck-sub003/pkg/domain-errors"
)

func link(hash domain.Hash, prev *domain.Hash) *chain.WitnessRecord {
	return &chain.WitnessRecord{Hash: hash, PreviousHash: prev}
}

func collect(t *testing.T, svc *Service, start domain.Hash, maxDepth int, seed *chain.WitnessRecord) ([]domain.Hash, error) {
	t.Helper()
	var hashes []domain.Hash
	for record, err := range svc.BoundWitnessChain(context.Background(), start, maxDepth, seed) {
		if err != nil {
			return hashes, err
		}
		hashes = append(hashes, record.Hash)
	}
	return hashes, nil
}

func TestBoundWitnessChain_LinearChain(t *testing.T) {
	a, b, c := testHash("aa"), testHash("bb"), testHash("cc")
	reader := &fakeReader{records: map[domain.Hash]*chain.WitnessRecord{
		a: link(a, &b),
		b: link(b, &c),
		c: link(c, nil), // nil link is a valid terminal state
	}}
	svc := New(reader, nil, nil)

	hashes, err := collect(t, svc, a, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.Hash{a, b, c}, hashes)
}

func TestBoundWitnessChain_StopsAtMaxDepth(t *testing.T) {
	a, b, c := testHash("aa"), testHash("bb"), testHash("cc")
	reader := &fakeReader{records: map[domain.Hash]*chain.WitnessRecord{
		a: link(a, &b),
		b: link(b, &c),
		c: link(c, nil),
	}}
	svc := New(reader, nil, nil)

	hashes, err := collect(t, svc, a, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.Hash{a, b}, hashes)
}

func TestBoundWitnessChain_CycleTerminates(t *testing.T) {
	a, b := testHash("aa"), testHash("bb")
	reader := &fakeReader{records: map[domain.Hash]*chain.WitnessRecord{
		a: link(a, &b),
		b: link(b, &a), // adversarial loop back to the start
	}}
	svc := New(reader, nil, nil)

	hashes, err := collect(t, svc, a, 100, nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.Hash{a, b}, hashes, "no hash may repeat in the output")
	assert.LessOrEqual(t, reader.calls, 100)
}

func TestBoundWitnessChain_SelfReferenceTerminates(t *testing.T) {
	a := testHash("aa")
	reader := &fakeReader{records: map[domain.Hash]*chain.WitnessRecord{
		a: link(a, &a),
	}}
	svc := New(reader, nil, nil)

	hashes, err := collect(t, svc, a, 50, nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.Hash{a}, hashes)
}

func TestBoundWitnessChain_DanglingReferenceEndsChain(t *testing.T) {
	a, missing := testHash("aa"), testHash("dd")
	reader := &fakeReader{records: map[domain.Hash]*chain.WitnessRecord{
		a: link(a, &missing),
	}}
	svc := New(reader, nil, nil)

	hashes, err := collect(t, svc, a, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.Hash{a}, hashes)
}

func TestBoundWitnessChain_TransientFailureSurfaces(t *testing.T) {
	reader := &fakeReader{failWith: dErrors.New(dErrors.CodeTransient, "rpc timeout")}
	svc := New(reader, nil, nil)

	hashes, err := collect(t, svc, testHash("aa"), 10, nil)
	require.Error(t, err)
	assert.True(t, dErrors.Retryable(err))
	assert.Empty(t, hashes)
}

func TestBoundWitnessChain_SeedSkipsFirstLookup(t *testing.T) {
	a, b := testHash("aa"), testHash("bb")
	reader := &fakeReader{records: map[domain.Hash]*chain.WitnessRecord{
		b: link(b, nil),
	}}
	svc := New(reader, nil, nil)

	hashes, err := collect(t, svc, a, 10, link(a, &b))
	require.NoError(t, err)
	assert.Equal(t, []domain.Hash{a, b}, hashes)
	assert.Equal(t, 1, reader.calls, "seed record must not be re-fetched")
}

func TestBoundWitnessChain_ZeroDepthYieldsNothing(t *testing.T) {
	svc := New(&fakeReader{}, nil, nil)

	hashes, err := collect(t, svc, testHash("aa"), 0, nil)
	require.NoError(t, err)
	assert.Empty(t, hashes)
}
