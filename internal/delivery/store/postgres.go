package store

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/delivery/models"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/platform/sentinel"
)

// Postgres persists deliveries in PostgreSQL. Payment amounts are stored as
// text because they are 256-bit integers in the smallest currency unit.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the deliveries table. Called once at startup; the schema is
// small enough that a migration tool would be overkill.
func (s *Postgres) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS deliveries (
		id               UUID PRIMARY KEY,
		driver_id        UUID NOT NULL,
		status           TEXT NOT NULL,
		dest_latitude    DOUBLE PRECISION NOT NULL,
		dest_longitude   DOUBLE PRECISION NOT NULL,
		dest_address     TEXT NOT NULL DEFAULT '',
		proof_hash       TEXT,
		block_number     BIGINT,
		requires_payment BOOLEAN NOT NULL DEFAULT FALSE,
		currency         TEXT NOT NULL DEFAULT '',
		buyer_address    TEXT NOT NULL DEFAULT '',
		seller_address   TEXT NOT NULL DEFAULT '',
		amount           TEXT,
		payment_status   TEXT NOT NULL,
		tx_hash          TEXT NOT NULL DEFAULT '',
		payment_block    BIGINT NOT NULL DEFAULT 0,
		payment_error    TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS deliveries_driver_idx ON deliveries (driver_id);
	CREATE INDEX IF NOT EXISTS deliveries_payment_status_idx ON deliveries (payment_status)`)
	if err != nil {
		return fmt.Errorf("migrate deliveries: %w", err)
	}
	return nil
}

const deliveryColumns = `id, driver_id, status, dest_latitude, dest_longitude, dest_address,
	proof_hash, block_number, requires_payment, currency, buyer_address, seller_address,
	amount, payment_status, tx_hash, payment_block, payment_error, created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, delivery *models.Delivery) error {
	_, err := s.db.Exec(ctx, `INSERT INTO deliveries (`+deliveryColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		insertArgs(delivery)...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id domain.DeliveryID) (*models.Delivery, error) {
	row := s.db.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1`, id.String())
	delivery, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find delivery: %w", err)
	}
	return delivery, nil
}

func (s *Postgres) ListByDriver(ctx context.Context, driverID domain.DriverID) ([]*models.Delivery, error) {
	rows, err := s.db.Query(ctx, `SELECT `+deliveryColumns+` FROM deliveries
		WHERE driver_id = $1 ORDER BY created_at`, driverID.String())
	if err != nil {
		return nil, fmt.Errorf("list deliveries by driver: %w", err)
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

func (s *Postgres) ListByPaymentStatus(ctx context.Context, status models.PaymentStatus) ([]*models.Delivery, error) {
	rows, err := s.db.Query(ctx, `SELECT `+deliveryColumns+` FROM deliveries
		WHERE payment_status = $1 ORDER BY created_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list deliveries by payment status: %w", err)
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

func (s *Postgres) Update(ctx context.Context, delivery *models.Delivery) error {
	tag, err := s.db.Exec(ctx, `UPDATE deliveries SET
		status = $2, dest_latitude = $3, dest_longitude = $4, dest_address = $5,
		proof_hash = $6, block_number = $7, requires_payment = $8, currency = $9,
		buyer_address = $10, seller_address = $11, amount = $12, payment_status = $13,
		tx_hash = $14, payment_block = $15, payment_error = $16, updated_at = $17
		WHERE id = $1`,
		delivery.ID.String(), string(delivery.Status),
		delivery.Destination.Latitude, delivery.Destination.Longitude, delivery.Destination.Address,
		hashPtr(delivery.ProofHash), delivery.BlockNumber,
		delivery.Payment.RequiresPaymentOnDelivery, delivery.Payment.Currency,
		delivery.Payment.BuyerAddress.String(), delivery.Payment.SellerAddress.String(),
		amountText(delivery.Payment.Amount), string(delivery.Payment.Status),
		delivery.Payment.TxHash.String(), int64(delivery.Payment.BlockNumber), delivery.Payment.Error,
		delivery.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func insertArgs(delivery *models.Delivery) []any {
	return []any{
		delivery.ID.String(), delivery.DriverID.String(), string(delivery.Status),
		delivery.Destination.Latitude, delivery.Destination.Longitude, delivery.Destination.Address,
		hashPtr(delivery.ProofHash), delivery.BlockNumber,
		delivery.Payment.RequiresPaymentOnDelivery, delivery.Payment.Currency,
		delivery.Payment.BuyerAddress.String(), delivery.Payment.SellerAddress.String(),
		amountText(delivery.Payment.Amount), string(delivery.Payment.Status),
		delivery.Payment.TxHash.String(), int64(delivery.Payment.BlockNumber), delivery.Payment.Error,
		delivery.CreatedAt, delivery.UpdatedAt,
	}
}

func collectDeliveries(rows pgx.Rows) ([]*models.Delivery, error) {
	var out []*models.Delivery
	for rows.Next() {
		delivery, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, delivery)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return out, nil
}

func scanDelivery(row pgx.Row) (*models.Delivery, error) {
	var (
		delivery   models.Delivery
		rawID      string
		rawDriver  string
		status     string
		proofHash  *string
		blockNum   *int64
		buyer      string
		seller     string
		amount     *string
		payStatus  string
		txHash     string
		payBlock   int64
	)
	err := row.Scan(&rawID, &rawDriver, &status,
		&delivery.Destination.Latitude, &delivery.Destination.Longitude, &delivery.Destination.Address,
		&proofHash, &blockNum,
		&delivery.Payment.RequiresPaymentOnDelivery, &delivery.Payment.Currency,
		&buyer, &seller, &amount, &payStatus, &txHash, &payBlock, &delivery.Payment.Error,
		&delivery.CreatedAt, &delivery.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if delivery.ID, err = domain.ParseDeliveryID(rawID); err != nil {
		return nil, err
	}
	if delivery.DriverID, err = domain.ParseDriverID(rawDriver); err != nil {
		return nil, err
	}
	delivery.Status = models.Status(status)
	if proofHash != nil {
		h := domain.Hash(*proofHash)
		delivery.ProofHash = &h
	}
	if blockNum != nil {
		n := uint64(*blockNum)
		delivery.BlockNumber = &n
	}
	delivery.Payment.BuyerAddress = domain.Address(buyer)
	delivery.Payment.SellerAddress = domain.Address(seller)
	if amount != nil && *amount != "" {
		value, ok := new(big.Int).SetString(*amount, 10)
		if !ok {
			return nil, fmt.Errorf("malformed stored amount %q", *amount)
		}
		delivery.Payment.Amount = value
	}
	delivery.Payment.Status = models.PaymentStatus(payStatus)
	delivery.Payment.TxHash = domain.Hash(txHash)
	delivery.Payment.BlockNumber = uint64(payBlock)
	return &delivery, nil
}

func hashPtr(hash *domain.Hash) *string {
	if hash == nil {
		return nil
	}
	s := hash.String()
	return &s
}

func amountText(amount *big.Int) *string {
	if amount == nil {
		return nil
	}
	s := amount.String()
	return &s
}
