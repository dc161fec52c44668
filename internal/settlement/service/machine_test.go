package service

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/delivery/models"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/delivery/store"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/escrow/backend"
	proofmodels "github.com/xyo-geohacker/chaincheck-sub003/internal/proof/models"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/settlement/service/mocks"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
	dErrors "github.com/xyo-geohacker/chaincheck-sub003/pkg/domain-errors"
)

func testHash(seed string) domain.Hash {
	return domain.Hash("0x" + strings.Repeat(seed, 32))
}

func seedDelivery(t *testing.T, deliveries *store.InMemory, requiresPayment bool) *models.Delivery {
	t.Helper()
	payment := models.PaymentState{}
	if requiresPayment {
		payment = models.PaymentState{
			RequiresPaymentOnDelivery: true,
			Currency:                  "XYO",
			BuyerAddress:              domain.Address("0x" + strings.Repeat("1", 40)),
			SellerAddress:             domain.Address("0x" + strings.Repeat("2", 40)),
			Amount:                    big.NewInt(5000),
		}
	}
	delivery, err := models.NewDelivery(
		domain.NewDeliveryID(),
		domain.DriverID(domain.NewDeliveryID()),
		models.Destination{Latitude: 52.37, Longitude: 4.89},
		payment,
		time.Now(),
	)
	require.NoError(t, err)
	require.NoError(t, deliveries.Create(context.Background(), delivery))
	return delivery
}

func mockedConsensus(proofs *mocks.MockProofService) {
	proofs.EXPECT().
		QueryLocationDiviner(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&proofmodels.DivinerResult{Consensus: 1.0, Mocked: true}, nil).
		AnyTimes()
}

func TestVerifyAndSettle_DeliveredWithoutPayment(t *testing.T) {
	ctrl := gomock.NewController(t)
	proofs := mocks.NewMockProofService(ctrl)
	deliveries := store.NewInMemory()
	delivery := seedDelivery(t, deliveries, false)
	hash := testHash("ab")

	mockedConsensus(proofs)
	proofs.EXPECT().
		VerifyLocationProof(gomock.Any(), hash.String()).
		Return(&proofmodels.Verification{ProofHash: hash, Valid: true, Source: "ledger", BlockNumber: 7}, nil)

	machine := NewMachine(proofs, deliveries)
	result, err := machine.VerifyAndSettle(context.Background(), Request{
		DeliveryID: delivery.ID,
		ProofHash:  hash.String(),
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, hash, result.ProofHash)
	assert.True(t, result.TxHash.IsZero(), "no payment must be attempted")

	stored, err := deliveries.FindByID(context.Background(), delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, stored.Status)
	require.NotNil(t, stored.ProofHash)
	assert.Equal(t, hash, *stored.ProofHash)
	require.NotNil(t, stored.BlockNumber, "the ledger block of the proof must be recorded")
	assert.Equal(t, uint64(7), *stored.BlockNumber)
}

func TestVerifyAndSettle_ReleasesEscrowExactlyOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	proofs := mocks.NewMockProofService(ctrl)
	escrow := mocks.NewMockEscrowCoordinator(ctrl)
	deliveries := store.NewInMemory()
	delivery := seedDelivery(t, deliveries, true)
	hash := testHash("cd")
	tx := testHash("ef")

	mockedConsensus(proofs)
	proofs.EXPECT().
		VerifyLocationProof(gomock.Any(), hash.String()).
		Return(&proofmodels.Verification{ProofHash: hash, Valid: true}, nil)
	escrow.EXPECT().
		Release(gomock.Any(), delivery.ID).
		DoAndReturn(func(ctx context.Context, id domain.DeliveryID) (*backend.TxResult, error) {
			// Mimic the coordinator recording the terminal state.
			stored, err := deliveries.FindByID(ctx, id)
			require.NoError(t, err)
			require.NoError(t, stored.AdvancePayment(models.PaymentEscrowed, time.Now()))
			require.NoError(t, stored.AdvancePayment(models.PaymentPaid, time.Now()))
			stored.Payment.TxHash = tx
			require.NoError(t, deliveries.Update(ctx, stored))
			return &backend.TxResult{TxHash: tx, BlockNumber: 9}, nil
		}).
		Times(1)

	machine := NewMachine(proofs, deliveries, WithEscrow(escrow))

	result, err := machine.VerifyAndSettle(context.Background(), Request{DeliveryID: delivery.ID, ProofHash: hash.String()})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, tx, result.TxHash)

	// Re-invocation is the principal idempotence guarantee: same tx hash,
	// no further proof or escrow calls.
	again, err := machine.VerifyAndSettle(context.Background(), Request{DeliveryID: delivery.ID, ProofHash: hash.String()})
	require.NoError(t, err)
	assert.True(t, again.Success)
	assert.True(t, again.AlreadySettled)
	assert.Equal(t, tx, again.TxHash)
}

func TestVerifyAndSettle_CreatesProofFromPayload(t *testing.T) {
	ctrl := gomock.NewController(t)
	proofs := mocks.NewMockProofService(ctrl)
	deliveries := store.NewInMemory()
	delivery := seedDelivery(t, deliveries, false)
	hash := testHash("0a")

	payload := &proofmodels.ProofPayload{
		DriverID:   delivery.DriverID,
		DeliveryID: delivery.ID,
		Latitude:   52.37,
		Longitude:  4.89,
		Timestamp:  time.Unix(1700000000, 0),
	}

	proofs.EXPECT().
		QueryLocationDiviner(gomock.Any(), payload.Latitude, payload.Longitude, payload.Timestamp).
		Return(&proofmodels.DivinerResult{Consensus: 0.9, WitnessCount: 4}, nil)
	proofs.EXPECT().
		CreateLocationProof(gomock.Any(), *payload).
		Return(&proofmodels.ProofResult{ProofHash: hash, BlockNumber: 3}, nil)

	machine := NewMachine(proofs, deliveries)
	result, err := machine.VerifyAndSettle(context.Background(), Request{DeliveryID: delivery.ID, Payload: payload})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, hash, result.ProofHash)
	assert.Equal(t, 0.9, result.Consensus)

	stored, err := deliveries.FindByID(context.Background(), delivery.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.BlockNumber)
	assert.Equal(t, uint64(3), *stored.BlockNumber)
}

func TestVerifyAndSettle_RejectedProofNeverPays(t *testing.T) {
	ctrl := gomock.NewController(t)
	proofs := mocks.NewMockProofService(ctrl)
	escrow := mocks.NewMockEscrowCoordinator(ctrl)
	deliveries := store.NewInMemory()
	delivery := seedDelivery(t, deliveries, true)
	hash := testHash("1b")

	mockedConsensus(proofs)
	proofs.EXPECT().
		VerifyLocationProof(gomock.Any(), hash.String()).
		Return(&proofmodels.Verification{ProofHash: hash, Errors: []string{"ledger: record not found"}}, nil)

	machine := NewMachine(proofs, deliveries, WithEscrow(escrow))
	result, err := machine.VerifyAndSettle(context.Background(), Request{DeliveryID: delivery.ID, ProofHash: hash.String()})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "record not found")

	stored, err := deliveries.FindByID(context.Background(), delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status, "a rejected proof must not mark the delivery delivered")
}

func TestVerifyAndSettle_PaymentFailureIsStructured(t *testing.T) {
	ctrl := gomock.NewController(t)
	proofs := mocks.NewMockProofService(ctrl)
	escrow := mocks.NewMockEscrowCoordinator(ctrl)
	deliveries := store.NewInMemory()
	delivery := seedDelivery(t, deliveries, true)
	hash := testHash("2c")

	mockedConsensus(proofs)
	proofs.EXPECT().
		VerifyLocationProof(gomock.Any(), hash.String()).
		Return(&proofmodels.Verification{ProofHash: hash, Valid: true}, nil)
	escrow.EXPECT().
		Release(gomock.Any(), delivery.ID).
		Return(nil, dErrors.New(dErrors.CodeInvariant, "no escrow exists"))

	machine := NewMachine(proofs, deliveries, WithEscrow(escrow))
	result, err := machine.VerifyAndSettle(context.Background(), Request{DeliveryID: delivery.ID, ProofHash: hash.String()})
	require.NoError(t, err, "payment failures are reported in the result, not as errors")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no escrow exists")
	assert.Equal(t, hash, result.ProofHash)
}

func TestVerifyAndSettle_DirectTransferWhenEscrowUnconfigured(t *testing.T) {
	ctrl := gomock.NewController(t)
	proofs := mocks.NewMockProofService(ctrl)
	direct := mocks.NewMockDirectTransferer(ctrl)
	deliveries := store.NewInMemory()
	delivery := seedDelivery(t, deliveries, true)
	hash := testHash("3d")
	tx := testHash("4e")

	mockedConsensus(proofs)
	proofs.EXPECT().
		VerifyLocationProof(gomock.Any(), hash.String()).
		Return(&proofmodels.Verification{ProofHash: hash, Valid: true}, nil)
	direct.EXPECT().
		Transfer(gomock.Any(), delivery.Payment.SellerAddress, delivery.Payment.Amount).
		Return(&backend.TxResult{TxHash: tx, BlockNumber: 12}, nil)

	machine := NewMachine(proofs, deliveries, WithDirectTransfer(direct))
	result, err := machine.VerifyAndSettle(context.Background(), Request{DeliveryID: delivery.ID, ProofHash: hash.String()})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, tx, result.TxHash)

	stored, err := deliveries.FindByID(context.Background(), delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, stored.Payment.Status)
	assert.Equal(t, tx, stored.Payment.TxHash)
	assert.Equal(t, uint64(12), stored.Payment.BlockNumber)
}

func TestVerifyAndSettle_ConcurrentDirectTransferPaysOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	proofs := mocks.NewMockProofService(ctrl)
	direct := mocks.NewMockDirectTransferer(ctrl)
	deliveries := store.NewInMemory()
	delivery := seedDelivery(t, deliveries, true)
	hash := testHash("6a")
	tx := testHash("7b")

	mockedConsensus(proofs)
	proofs.EXPECT().
		VerifyLocationProof(gomock.Any(), hash.String()).
		Return(&proofmodels.Verification{ProofHash: hash, Valid: true}, nil).
		AnyTimes()

	var transfers atomic.Int64
	direct.EXPECT().
		Transfer(gomock.Any(), delivery.Payment.SellerAddress, delivery.Payment.Amount).
		DoAndReturn(func(context.Context, domain.Address, *big.Int) (*backend.TxResult, error) {
			transfers.Add(1)
			time.Sleep(10 * time.Millisecond)
			return &backend.TxResult{TxHash: tx, BlockNumber: 12}, nil
		}).
		AnyTimes()

	machine := NewMachine(proofs, deliveries, WithDirectTransfer(direct))

	const callers = 8
	results := make([]*Result, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := machine.VerifyAndSettle(context.Background(), Request{
				DeliveryID: delivery.ID,
				ProofHash:  hash.String(),
			})
			require.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, transfers.Load(), "the seller must be paid exactly once")

	paid := 0
	for _, result := range results {
		if result.Success {
			paid++
			assert.Equal(t, tx, result.TxHash)
		} else {
			assert.Contains(t, result.Error, "already in flight")
		}
	}
	assert.GreaterOrEqual(t, paid, 1)

	stored, err := deliveries.FindByID(context.Background(), delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, stored.Payment.Status)
	assert.Equal(t, tx, stored.Payment.TxHash)
}

func TestVerifyAndSettle_DirectTransferInFlightBacksOff(t *testing.T) {
	ctrl := gomock.NewController(t)
	proofs := mocks.NewMockProofService(ctrl)
	direct := mocks.NewMockDirectTransferer(ctrl)
	deliveries := store.NewInMemory()
	delivery := seedDelivery(t, deliveries, true)
	hash := testHash("8c")
	tx := testHash("9d")

	mockedConsensus(proofs)
	proofs.EXPECT().
		VerifyLocationProof(gomock.Any(), hash.String()).
		Return(&proofmodels.Verification{ProofHash: hash, Valid: true}, nil).
		Times(2)

	entered := make(chan struct{})
	release := make(chan struct{})
	direct.EXPECT().
		Transfer(gomock.Any(), delivery.Payment.SellerAddress, delivery.Payment.Amount).
		DoAndReturn(func(context.Context, domain.Address, *big.Int) (*backend.TxResult, error) {
			close(entered)
			<-release
			return &backend.TxResult{TxHash: tx, BlockNumber: 12}, nil
		}).
		Times(1)

	machine := NewMachine(proofs, deliveries, WithDirectTransfer(direct))

	first := make(chan *Result, 1)
	go func() {
		result, err := machine.VerifyAndSettle(context.Background(), Request{
			DeliveryID: delivery.ID,
			ProofHash:  hash.String(),
		})
		require.NoError(t, err)
		first <- result
	}()
	<-entered

	// The transfer is on the wire; a second settler must observe the claim
	// and back off rather than pay the seller again.
	second, err := machine.VerifyAndSettle(context.Background(), Request{
		DeliveryID: delivery.ID,
		ProofHash:  hash.String(),
	})
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.Contains(t, second.Error, "already in flight")

	close(release)
	result := <-first
	assert.True(t, result.Success)
	assert.Equal(t, tx, result.TxHash)
}

func TestVerifyAndSettle_DirectTransferFailureIsRetryable(t *testing.T) {
	ctrl := gomock.NewController(t)
	proofs := mocks.NewMockProofService(ctrl)
	direct := mocks.NewMockDirectTransferer(ctrl)
	deliveries := store.NewInMemory()
	delivery := seedDelivery(t, deliveries, true)
	hash := testHash("0e")
	tx := testHash("1f")

	mockedConsensus(proofs)
	proofs.EXPECT().
		VerifyLocationProof(gomock.Any(), hash.String()).
		Return(&proofmodels.Verification{ProofHash: hash, Valid: true}, nil).
		Times(2)
	gomock.InOrder(
		direct.EXPECT().
			Transfer(gomock.Any(), delivery.Payment.SellerAddress, delivery.Payment.Amount).
			Return(nil, dErrors.New(dErrors.CodeTransient, "ledger unreachable")),
		direct.EXPECT().
			Transfer(gomock.Any(), delivery.Payment.SellerAddress, delivery.Payment.Amount).
			Return(&backend.TxResult{TxHash: tx, BlockNumber: 13}, nil),
	)

	machine := NewMachine(proofs, deliveries, WithDirectTransfer(direct))

	result, err := machine.VerifyAndSettle(context.Background(), Request{DeliveryID: delivery.ID, ProofHash: hash.String()})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "ledger unreachable")

	stored, err := deliveries.FindByID(context.Background(), delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, stored.Payment.Status)
	assert.Contains(t, stored.Payment.Error, "ledger unreachable")

	again, err := machine.VerifyAndSettle(context.Background(), Request{DeliveryID: delivery.ID, ProofHash: hash.String()})
	require.NoError(t, err)
	assert.True(t, again.Success)
	assert.Equal(t, tx, again.TxHash)

	stored, err = deliveries.FindByID(context.Background(), delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, stored.Payment.Status)
	assert.Empty(t, stored.Payment.Error)
}

func TestVerifyAndSettle_NoSettlementPathConfigured(t *testing.T) {
	ctrl := gomock.NewController(t)
	proofs := mocks.NewMockProofService(ctrl)
	deliveries := store.NewInMemory()
	delivery := seedDelivery(t, deliveries, true)
	hash := testHash("5f")

	mockedConsensus(proofs)
	proofs.EXPECT().
		VerifyLocationProof(gomock.Any(), hash.String()).
		Return(&proofmodels.Verification{ProofHash: hash, Valid: true}, nil)

	machine := NewMachine(proofs, deliveries)
	result, err := machine.VerifyAndSettle(context.Background(), Request{DeliveryID: delivery.ID, ProofHash: hash.String()})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no settlement path")
}

func TestVerifyAndSettle_RequestValidation(t *testing.T) {
	ctrl := gomock.NewController(t)
	proofs := mocks.NewMockProofService(ctrl)
	deliveries := store.NewInMemory()
	delivery := seedDelivery(t, deliveries, false)

	machine := NewMachine(proofs, deliveries)

	t.Run("neither proof hash nor payload", func(t *testing.T) {
		_, err := machine.VerifyAndSettle(context.Background(), Request{DeliveryID: delivery.ID})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("both proof hash and payload", func(t *testing.T) {
		_, err := machine.VerifyAndSettle(context.Background(), Request{
			DeliveryID: delivery.ID,
			ProofHash:  testHash("ab").String(),
			Payload:    &proofmodels.ProofPayload{},
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("unknown delivery", func(t *testing.T) {
		_, err := machine.VerifyAndSettle(context.Background(), Request{
			DeliveryID: domain.NewDeliveryID(),
			ProofHash:  testHash("ab").String(),
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
