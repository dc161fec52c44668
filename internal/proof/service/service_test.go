package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/chain"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/proof/ledger"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/proof/models"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
	dErrors "github.com/xyo-geohacker/chaincheck-sub003/pkg/domain-errors"
)

// fakeReader serves witness records from a map. Unknown hashes are not-found;
// a non-nil failWith makes every call fail transiently.
type fakeReader struct {
	records  map[domain.Hash]*chain.WitnessRecord
	failWith error
	calls    int
}

func (f *fakeReader) WitnessRecord(_ context.Context, hash domain.Hash) (*chain.WitnessRecord, error) {
	f.calls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	record, ok := f.records[hash]
	if !ok {
		return nil, chain.ErrNotFound
	}
	return record, nil
}

func (f *fakeReader) TransactionBlockNumber(context.Context, domain.Hash) (uint64, error) {
	return 0, chain.ErrNotFound
}

func (f *fakeReader) BlockByNumber(context.Context, uint64) (*chain.Block, error) {
	return nil, chain.ErrNotFound
}

func (f *fakeReader) TransactionReceipt(context.Context, domain.Hash) (*chain.Receipt, error) {
	return nil, chain.ErrNotFound
}

// fakeSource is a scriptable ledger.Source that counts calls.
type fakeSource struct {
	name       string
	insertErr  error
	insert     *ledger.InsertResult
	validation *ledger.Validation
	verifyErr  error
	payload    json.RawMessage
	calls      int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Insert(context.Context, models.ProofPayload) (*ledger.InsertResult, error) {
	f.calls++
	return f.insert, f.insertErr
}

func (f *fakeSource) Fetch(context.Context, domain.Hash) (json.RawMessage, error) {
	f.calls++
	return f.payload, f.verifyErr
}

func (f *fakeSource) Validate(context.Context, domain.Hash) (*ledger.Validation, error) {
	f.calls++
	return f.validation, f.verifyErr
}

type fakeDiviner struct {
	result *models.DivinerResult
	calls  int
}

func (f *fakeDiviner) Query(context.Context, float64, float64, time.Time) (*models.DivinerResult, error) {
	f.calls++
	return f.result, nil
}

func validPayload() models.ProofPayload {
	return models.ProofPayload{
		DriverID:   domain.DriverID(mustUUID()),
		DeliveryID: domain.NewDeliveryID(),
		Latitude:   52.379,
		Longitude:  4.9,
		Timestamp:  time.Unix(1700000000, 0),
	}
}

func mustUUID() [16]byte {
	id := domain.NewDeliveryID()
	return [16]byte(id)
}

func testHash(seed string) domain.Hash {
	return domain.Hash("0x" + strings.Repeat(seed, 64/len(seed)))
}

func TestCreateLocationProof_MockMode(t *testing.T) {
	svc := New(&fakeReader{}, nil, nil, WithMockProofs(true))
	payload := validPayload()

	first, err := svc.CreateLocationProof(context.Background(), payload)
	require.NoError(t, err)
	second, err := svc.CreateLocationProof(context.Background(), payload)
	require.NoError(t, err)

	assert.True(t, first.Mocked)
	assert.Equal(t, first.ProofHash, second.ProofHash, "mock hashes must be deterministic")
	assert.True(t, strings.HasPrefix(first.ProofHash.String(), "0x"))
	require.NotNil(t, first.RawWitness, "mock results carry the same structure as real ones")
}

func TestCreateLocationProof_RejectsMalformedPayload(t *testing.T) {
	svc := New(&fakeReader{}, nil, nil, WithMockProofs(true))

	payload := validPayload()
	payload.Latitude = 91

	_, err := svc.CreateLocationProof(context.Background(), payload)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestCreateLocationProof_LiveInsert(t *testing.T) {
	direct := &fakeSource{
		name:   "ledger",
		insert: &ledger.InsertResult{ProofHash: testHash("ab"), BlockNumber: 12},
	}
	svc := New(&fakeReader{}, direct, nil)

	result, err := svc.CreateLocationProof(context.Background(), validPayload())
	require.NoError(t, err)
	assert.False(t, result.Mocked)
	assert.Equal(t, testHash("ab"), result.ProofHash)
	assert.Equal(t, uint64(12), result.BlockNumber)
}

func TestCreateLocationProof_FallsBackToMockWhenLedgerUnreachable(t *testing.T) {
	direct := &fakeSource{
		name:      "ledger",
		insertErr: dErrors.New(dErrors.CodeTransient, "connection refused"),
	}
	svc := New(&fakeReader{}, direct, nil)

	result, err := svc.CreateLocationProof(context.Background(), validPayload())
	require.NoError(t, err)
	assert.True(t, result.Mocked)
	assert.False(t, result.ProofHash.IsZero())
}

func TestVerifyLocationProof_DirectHit(t *testing.T) {
	hash := testHash("cd")
	reader := &fakeReader{records: map[domain.Hash]*chain.WitnessRecord{
		hash: {Hash: hash, BlockNumber: 5},
	}}
	archivist := &fakeSource{name: "archivist"}
	svc := New(reader, nil, archivist)

	verification, err := svc.VerifyLocationProof(context.Background(), hash.String())
	require.NoError(t, err)
	assert.True(t, verification.Valid)
	assert.Equal(t, "ledger", verification.Source)
	assert.Zero(t, archivist.calls, "archivist must not be consulted after a direct hit")
}

func TestVerifyLocationProof_ArchivistFallback(t *testing.T) {
	hash := testHash("ef")
	archivist := &fakeSource{
		name:       "archivist",
		validation: &ledger.Validation{Valid: true},
		payload:    json.RawMessage(`[{"schema":"location"}]`),
	}
	svc := New(&fakeReader{}, nil, archivist)

	verification, err := svc.VerifyLocationProof(context.Background(), hash.String())
	require.NoError(t, err)
	assert.True(t, verification.Valid)
	assert.Equal(t, "archivist", verification.Source)
	assert.NotEmpty(t, verification.Payload)
}

func TestVerifyLocationProof_ArchivistDisabled(t *testing.T) {
	hash := testHash("0a")
	archivist := &fakeSource{name: "archivist", validation: &ledger.Validation{Valid: true}}
	svc := New(&fakeReader{}, nil, archivist, WithArchivistDisabled(true))

	verification, err := svc.VerifyLocationProof(context.Background(), hash.String())
	require.NoError(t, err)
	assert.False(t, verification.Valid)
	assert.Zero(t, archivist.calls, "disabled archivist must never be called")

	found := false
	for _, msg := range verification.Errors {
		if strings.Contains(msg, "disabled") {
			found = true
		}
	}
	assert.True(t, found, "errors must mention the disabled subsystem: %v", verification.Errors)
}

func TestVerifyLocationProof_AllSourcesFail(t *testing.T) {
	hash := testHash("1b")
	archivist := &fakeSource{
		name:      "archivist",
		verifyErr: dErrors.New(dErrors.CodeTransient, "gateway timeout"),
	}
	svc := New(&fakeReader{}, nil, archivist)

	verification, err := svc.VerifyLocationProof(context.Background(), hash.String())
	require.NoError(t, err, "exhausted fallback is a negative result, not an error")
	assert.False(t, verification.Valid)
	assert.Len(t, verification.Errors, 2)
}

func TestVerifyLocationProof_MalformedHash(t *testing.T) {
	svc := New(&fakeReader{}, nil, nil)

	_, err := svc.VerifyLocationProof(context.Background(), "not-a-hash")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestQueryLocationDiviner_DisabledReturnsMockConsensus(t *testing.T) {
	real := &fakeDiviner{result: &models.DivinerResult{Consensus: 0.4}}
	svc := New(&fakeReader{}, nil, nil, WithDiviner(real), WithDivinerDisabled(true))

	result, err := svc.QueryLocationDiviner(context.Background(), 52.0, 4.9, time.Now())
	require.NoError(t, err)
	assert.True(t, result.Mocked)
	assert.Equal(t, 1.0, result.Consensus)
	assert.Zero(t, real.calls, "disabled diviner must never be called")
}

func TestQueryLocationDiviner_DelegatesWhenEnabled(t *testing.T) {
	real := &fakeDiviner{result: &models.DivinerResult{Consensus: 0.87, WitnessCount: 3}}
	svc := New(&fakeReader{}, nil, nil, WithDiviner(real))

	result, err := svc.QueryLocationDiviner(context.Background(), 52.0, 4.9, time.Now())
	require.NoError(t, err)
	assert.False(t, result.Mocked)
	assert.Equal(t, 0.87, result.Consensus)
	assert.Equal(t, 1, real.calls)
}

func TestQueryLocationDiviner_RejectsBadCoordinates(t *testing.T) {
	svc := New(&fakeReader{}, nil, nil, WithDivinerDisabled(true))

	_, err := svc.QueryLocationDiviner(context.Background(), -91, 0, time.Now())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
