package handler

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	deliverymodels "github.com/xyo-geohacker/chaincheck-sub003/internal/delivery/models"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/escrow/backend"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/settlement/service"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
	dErrors "github.com/xyo-geohacker/chaincheck-sub003/pkg/domain-errors"
)

type fakeSettler struct {
	result *service.Result
	err    error
	got    service.Request
}

func (f *fakeSettler) VerifyAndSettle(_ context.Context, req service.Request) (*service.Result, error) {
	f.got = req
	return f.result, f.err
}

type fakeCoordinator struct {
	result *backend.TxResult
	err    error
	calls  []string
}

func (f *fakeCoordinator) op(name string) (*backend.TxResult, error) {
	f.calls = append(f.calls, name)
	return f.result, f.err
}

func (f *fakeCoordinator) Deposit(context.Context, domain.DeliveryID) (*backend.TxResult, error) {
	return f.op("deposit")
}

func (f *fakeCoordinator) Release(context.Context, domain.DeliveryID) (*backend.TxResult, error) {
	return f.op("release")
}

func (f *fakeCoordinator) Refund(context.Context, domain.DeliveryID) (*backend.TxResult, error) {
	return f.op("refund")
}

func (f *fakeCoordinator) AutoRefund(context.Context, domain.DeliveryID) (*backend.TxResult, error) {
	return f.op("auto-refund")
}

type fakeReader struct {
	delivery *deliverymodels.Delivery
	err      error
}

func (f *fakeReader) Get(context.Context, domain.DeliveryID) (*deliverymodels.Delivery, error) {
	return f.delivery, f.err
}

func newRouter(settler *fakeSettler, coordinator Coordinator, reader DeliveryReader) chi.Router {
	r := chi.NewRouter()
	New(settler, coordinator, reader, nil).Register(r)
	return r
}

func testHash(seed string) domain.Hash {
	return domain.Hash("0x" + strings.Repeat(seed, 32))
}

func TestHandleVerify(t *testing.T) {
	deliveryID := domain.NewDeliveryID()
	hash := testHash("ab")
	settler := &fakeSettler{result: &service.Result{Success: true, ProofHash: hash, TxHash: testHash("cd")}}
	router := newRouter(settler, &fakeCoordinator{}, &fakeReader{})

	body := strings.NewReader(`{"proofHash":"` + hash.String() + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/deliveries/"+deliveryID.String()+"/verify", body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, deliveryID, settler.got.DeliveryID)
	assert.Equal(t, hash.String(), settler.got.ProofHash)

	var result service.Result
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.True(t, result.Success)
	assert.Equal(t, hash, result.ProofHash)
}

func TestHandleVerify_MalformedDeliveryID(t *testing.T) {
	router := newRouter(&fakeSettler{}, &fakeCoordinator{}, &fakeReader{})

	req := httptest.NewRequest(http.MethodPost, "/deliveries/not-a-uuid/verify", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlePaymentStatus(t *testing.T) {
	deliveryID := domain.NewDeliveryID()
	delivery := &deliverymodels.Delivery{
		ID:     deliveryID,
		Status: deliverymodels.StatusDelivered,
		Payment: deliverymodels.PaymentState{
			RequiresPaymentOnDelivery: true,
			Amount:                    big.NewInt(100),
			Status:                    deliverymodels.PaymentPaid,
			TxHash:                    testHash("ef"),
			BlockNumber:               7,
		},
		UpdatedAt: time.Now(),
	}
	router := newRouter(&fakeSettler{}, &fakeCoordinator{}, &fakeReader{delivery: delivery})

	req := httptest.NewRequest(http.MethodGet, "/deliveries/"+deliveryID.String()+"/payment", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "PAID", resp["paymentStatus"])
	assert.Equal(t, testHash("ef").String(), resp["transactionHash"])
}

func TestEscrowRoutes(t *testing.T) {
	deliveryID := domain.NewDeliveryID()
	coordinator := &fakeCoordinator{result: &backend.TxResult{TxHash: testHash("0a"), BlockNumber: 3}}
	router := newRouter(&fakeSettler{}, coordinator, &fakeReader{})

	for _, op := range []string{"escrow", "release", "refund", "auto-refund"} {
		req := httptest.NewRequest(http.MethodPost, "/deliveries/"+deliveryID.String()+"/"+op, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, "route %s", op)
	}
	assert.Equal(t, []string{"deposit", "release", "refund", "auto-refund"}, coordinator.calls)
}

func TestEscrowRoutes_InvariantViolationMapsToConflict(t *testing.T) {
	deliveryID := domain.NewDeliveryID()
	coordinator := &fakeCoordinator{err: dErrors.New(dErrors.CodeInvariant, "escrow already settled")}
	router := newRouter(&fakeSettler{}, coordinator, &fakeReader{})

	req := httptest.NewRequest(http.MethodPost, "/deliveries/"+deliveryID.String()+"/release", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestEscrowRoutes_Unconfigured(t *testing.T) {
	deliveryID := domain.NewDeliveryID()
	router := newRouter(&fakeSettler{}, nil, &fakeReader{})

	req := httptest.NewRequest(http.MethodPost, "/deliveries/"+deliveryID.String()+"/escrow", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
