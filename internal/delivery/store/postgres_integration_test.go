//go:build integration

package store_test

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/delivery/models"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/delivery/store"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/platform/sentinel"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.postgres.Pool)
	s.Require().NoError(s.store.Migrate(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.postgres.Pool.Exec(context.Background(), "TRUNCATE deliveries")
	s.Require().NoError(err)
}

func newTestDelivery(s *PostgresStoreSuite, driverID domain.DriverID) *models.Delivery {
	delivery, err := models.NewDelivery(
		domain.NewDeliveryID(),
		driverID,
		models.Destination{Latitude: 40.7, Longitude: -74.0, Address: "Broadway 1"},
		models.PaymentState{
			RequiresPaymentOnDelivery: true,
			Currency:                  "XYO",
			BuyerAddress:              domain.Address("0x" + strings.Repeat("3", 40)),
			SellerAddress:             domain.Address("0x" + strings.Repeat("4", 40)),
			Amount:                    new(big.Int).Lsh(big.NewInt(1), 100),
		},
		time.Now().UTC().Truncate(time.Microsecond),
	)
	s.Require().NoError(err)
	return delivery
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	delivery := newTestDelivery(s, domain.DriverID(domain.NewDeliveryID()))
	s.Require().NoError(s.store.Create(ctx, delivery))

	found, err := s.store.FindByID(ctx, delivery.ID)
	s.Require().NoError(err)
	s.Equal(delivery.DriverID, found.DriverID)
	s.Equal(delivery.Destination, found.Destination)
	s.Equal(models.PaymentPending, found.Payment.Status)
	s.Zero(delivery.Payment.Amount.Cmp(found.Payment.Amount), "256-bit amounts must survive the round trip")
	s.Nil(found.ProofHash)
}

func (s *PostgresStoreSuite) TestDuplicateCreateConflicts() {
	ctx := context.Background()
	delivery := newTestDelivery(s, domain.DriverID(domain.NewDeliveryID()))
	s.Require().NoError(s.store.Create(ctx, delivery))
	s.Require().ErrorIs(s.store.Create(ctx, delivery), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestFindUnknownIsNotFound() {
	_, err := s.store.FindByID(context.Background(), domain.NewDeliveryID())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdatePersistsDeliveredProof() {
	ctx := context.Background()
	delivery := newTestDelivery(s, domain.DriverID(domain.NewDeliveryID()))
	s.Require().NoError(s.store.Create(ctx, delivery))

	proofHash := domain.Hash("0x" + strings.Repeat("cd", 32))
	delivery.MarkDelivered(proofHash, 42, time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(delivery.AdvancePayment(models.PaymentEscrowed, delivery.UpdatedAt))
	delivery.Payment.TxHash = domain.Hash("0x" + strings.Repeat("ef", 32))
	delivery.Payment.BlockNumber = 43
	s.Require().NoError(s.store.Update(ctx, delivery))

	found, err := s.store.FindByID(ctx, delivery.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusDelivered, found.Status)
	s.Require().NotNil(found.ProofHash)
	s.Equal(proofHash, *found.ProofHash)
	s.Require().NotNil(found.BlockNumber)
	s.Equal(uint64(42), *found.BlockNumber)
	s.Equal(models.PaymentEscrowed, found.Payment.Status)
	s.Equal(uint64(43), found.Payment.BlockNumber)
}

func (s *PostgresStoreSuite) TestListByPaymentStatus() {
	ctx := context.Background()
	driver := domain.DriverID(domain.NewDeliveryID())
	first := newTestDelivery(s, driver)
	second := newTestDelivery(s, driver)
	s.Require().NoError(s.store.Create(ctx, first))
	s.Require().NoError(s.store.Create(ctx, second))

	s.Require().NoError(first.AdvancePayment(models.PaymentEscrowed, time.Now()))
	s.Require().NoError(s.store.Update(ctx, first))

	escrowed, err := s.store.ListByPaymentStatus(ctx, models.PaymentEscrowed)
	s.Require().NoError(err)
	s.Require().Len(escrowed, 1)
	s.Equal(first.ID, escrowed[0].ID)

	byDriver, err := s.store.ListByDriver(ctx, driver)
	s.Require().NoError(err)
	s.Len(byDriver, 2)
}
