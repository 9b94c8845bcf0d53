package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	catalogrepo "github.com/smartpharmacy/smartpos-backend/internal/catalog/repository"
	"github.com/smartpharmacy/smartpos-backend/pkg/database"
	"github.com/smartpharmacy/smartpos-backend/pkg/errors"
)

// MedicineInfo is the catalog snapshot the allocator works from
type MedicineInfo struct {
	ID       string  `db:"id"`
	Name     string  `db:"name"`
	Price    float64 `db:"price"`
	Stock    int     `db:"stock"`
	Discount float64 `db:"discount"`
}

// Tx is the mutation surface available inside one billing transaction.
// Stock reads and decrements, sale inserts and receipt finalization all
// go through here so a failed finalize leaves no partial decrements.
type Tx interface {
	MedicineStock(ctx context.Context, medicineID string) (*MedicineInfo, error)
	BatchesFEFO(ctx context.Context, medicineID string) ([]*catalogrepo.StockBatch, error)
	InsertBatch(ctx context.Context, medicineID string, quantity int, mfg, exp time.Time) (*catalogrepo.StockBatch, error)
	TakeFromBatch(ctx context.Context, batchID string, quantity int) error
	ReduceStock(ctx context.Context, medicineID string, quantity int) error
	InsertSale(ctx context.Context, sale *Sale) error
	FinalizeReceipt(ctx context.Context, receiptID string, total float64) error
}

// Store runs billing mutations inside a database transaction
type Store interface {
	WithinTx(ctx context.Context, fn func(Tx) error) error
}

type pgStore struct {
	db *database.DB
}

// NewStore creates the PostgreSQL-backed billing store
func NewStore(db *database.DB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) WithinTx(ctx context.Context, fn func(Tx) error) error {
	return s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

type pgTx struct {
	tx *sqlx.Tx
}

func (t *pgTx) MedicineStock(ctx context.Context, medicineID string) (*MedicineInfo, error) {
	var info MedicineInfo
	query := `
		SELECT id, name, price, stock, COALESCE(discount, 0.0) AS discount
		FROM medicines WHERE id = $1
	`
	if err := t.tx.GetContext(ctx, &info, query, medicineID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("medicine")
		}
		return nil, err
	}
	return &info, nil
}

func (t *pgTx) BatchesFEFO(ctx context.Context, medicineID string) ([]*catalogrepo.StockBatch, error) {
	var batches []*catalogrepo.StockBatch
	query := `
		SELECT * FROM batches
		WHERE medicine_id = $1
		ORDER BY exp_date ASC NULLS LAST, id
	`
	if err := t.tx.SelectContext(ctx, &batches, query, medicineID); err != nil {
		return nil, err
	}
	return batches, nil
}

func (t *pgTx) InsertBatch(ctx context.Context, medicineID string, quantity int, mfg, exp time.Time) (*catalogrepo.StockBatch, error) {
	batch := &catalogrepo.StockBatch{
		ID:         uuid.New().String(),
		MedicineID: medicineID,
		Quantity:   quantity,
		MfgDate:    &mfg,
		ExpDate:    &exp,
	}

	query := `
		INSERT INTO batches (id, medicine_id, quantity, mfg_date, exp_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	err := t.tx.QueryRowxContext(ctx, query,
		batch.ID, batch.MedicineID, batch.Quantity, batch.MfgDate, batch.ExpDate,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		return nil, database.MapPQError(err, "batch")
	}
	return batch, nil
}

// TakeFromBatch decrements a batch, guarded so the quantity can never
// go negative even if another writer slipped in.
func (t *pgTx) TakeFromBatch(ctx context.Context, batchID string, quantity int) error {
	query := `
		UPDATE batches SET quantity = quantity - $2, updated_at = NOW()
		WHERE id = $1 AND quantity >= $2
	`
	result, err := t.tx.ExecContext(ctx, query, batchID, quantity)
	if err != nil {
		return database.MapPQError(err, "batch")
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.Conflict("batch stock changed during allocation")
	}
	return nil
}

func (t *pgTx) ReduceStock(ctx context.Context, medicineID string, quantity int) error {
	query := `
		UPDATE medicines SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
	`
	result, err := t.tx.ExecContext(ctx, query, medicineID, quantity)
	if err != nil {
		return database.MapPQError(err, "medicine")
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.Conflict("medicine stock changed during allocation")
	}
	return nil
}

func (t *pgTx) InsertSale(ctx context.Context, sale *Sale) error {
	if sale.ID == "" {
		sale.ID = uuid.New().String()
	}

	query := `
		INSERT INTO sales (
			id, medicine_id, medicine_name, receipt_id, batch_id,
			quantity, total_price, discount, mfg_date, exp_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
	err := t.tx.QueryRowxContext(ctx, query,
		sale.ID, sale.MedicineID, sale.MedicineName, sale.ReceiptID, sale.BatchID,
		sale.Quantity, sale.TotalPrice, sale.Discount, sale.MfgDate, sale.ExpDate,
	).Scan(&sale.CreatedAt)
	if err != nil {
		return database.MapPQError(err, "sale")
	}
	return nil
}

// FinalizeReceipt marks a draft finalized. The status guard makes a
// second finalize of the same receipt fail.
func (t *pgTx) FinalizeReceipt(ctx context.Context, receiptID string, total float64) error {
	query := `
		UPDATE receipts SET total = $2, status = $3, printed = true, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`
	result, err := t.tx.ExecContext(ctx, query, receiptID, total, ReceiptStatusFinalized, ReceiptStatusDraft)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.Conflict("receipt already finalized")
	}
	return nil
}
