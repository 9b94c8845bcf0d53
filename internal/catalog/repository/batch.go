package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/smartpharmacy/smartpos-backend/pkg/database"
	"github.com/smartpharmacy/smartpos-backend/pkg/errors"
)

// StockBatch represents one physical lot of a medicine
type StockBatch struct {
	ID         string     `db:"id" json:"id"`
	MedicineID string     `db:"medicine_id" json:"medicine_id"`
	BatchCode  *string    `db:"batch_code" json:"batch_code,omitempty"`
	Quantity   int        `db:"quantity" json:"quantity"`
	MfgDate    *time.Time `db:"mfg_date" json:"mfg_date,omitempty"`
	ExpDate    *time.Time `db:"exp_date" json:"exp_date,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// BatchRepository handles batch persistence
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create creates a new batch
func (r *BatchRepository) Create(ctx context.Context, batch *StockBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}

	query := `
		INSERT INTO batches (id, medicine_id, batch_code, quantity, mfg_date, exp_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		batch.ID, batch.MedicineID, batch.BatchCode, batch.Quantity,
		batch.MfgDate, batch.ExpDate,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		return database.MapPQError(err, "batch")
	}
	return nil
}

// CreateRaisingStock inserts a batch and raises the medicine's
// aggregate stock by its quantity in one transaction. The stock update
// is a delta, so an allocation committing in between is never
// overwritten. Returns the new aggregate figure.
func (r *BatchRepository) CreateRaisingStock(ctx context.Context, batch *StockBatch) (int, error) {
	var newStock int
	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if batch.ID == "" {
			batch.ID = uuid.New().String()
		}

		query := `
			INSERT INTO batches (id, medicine_id, batch_code, quantity, mfg_date, exp_date)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at, updated_at
		`
		if err := tx.QueryRowxContext(ctx, query,
			batch.ID, batch.MedicineID, batch.BatchCode, batch.Quantity,
			batch.MfgDate, batch.ExpDate,
		).Scan(&batch.CreatedAt, &batch.UpdatedAt); err != nil {
			return database.MapPQError(err, "batch")
		}

		query = `
			UPDATE medicines SET stock = stock + $2, updated_at = NOW()
			WHERE id = $1
			RETURNING stock
		`
		if err := tx.QueryRowxContext(ctx, query, batch.MedicineID, batch.Quantity).Scan(&newStock); err != nil {
			if err == sql.ErrNoRows {
				return errors.NotFound("medicine")
			}
			return database.MapPQError(err, "medicine")
		}
		return nil
	})
	return newStock, err
}

// GetByID gets a batch by ID
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*StockBatch, error) {
	var batch StockBatch
	query := `SELECT * FROM batches WHERE id = $1`
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &batch, nil
}

// ListByMedicine lists a medicine's batches in first-expiry-first-out
// order. Batches without an expiry date sort last and ties break on id
// so the walk order is stable.
func (r *BatchRepository) ListByMedicine(ctx context.Context, medicineID string) ([]*StockBatch, error) {
	var batches []*StockBatch
	query := `
		SELECT * FROM batches
		WHERE medicine_id = $1
		ORDER BY exp_date ASC NULLS LAST, id
	`
	if err := r.db.SelectContext(ctx, &batches, query, medicineID); err != nil {
		return nil, err
	}
	return batches, nil
}

// TotalStock sums the batch quantities for a medicine
func (r *BatchRepository) TotalStock(ctx context.Context, medicineID string) (int, error) {
	var total sql.NullInt64
	query := `SELECT SUM(quantity) FROM batches WHERE medicine_id = $1 AND quantity > 0`
	if err := r.db.GetContext(ctx, &total, query, medicineID); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}

// Update updates a batch
func (r *BatchRepository) Update(ctx context.Context, batch *StockBatch) error {
	query := `
		UPDATE batches SET
			batch_code = $2, quantity = $3, mfg_date = $4, exp_date = $5, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		batch.ID, batch.BatchCode, batch.Quantity, batch.MfgDate, batch.ExpDate,
	)
	if err != nil {
		return database.MapPQError(err, "batch")
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch")
	}

	return nil
}

// Delete deletes a batch
func (r *BatchRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM batches WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch")
	}

	return nil
}

// BatchReportRow is one line of the batch-level inventory report
type BatchReportRow struct {
	MedicineName string     `db:"medicine_name" json:"medicine_name"`
	Quantity     int        `db:"quantity" json:"quantity"`
	MfgDate      *time.Time `db:"mfg_date" json:"mfg_date,omitempty"`
	ExpDate      *time.Time `db:"exp_date" json:"exp_date,omitempty"`
	Discount     float64    `db:"discount" json:"discount"`
	BatchID      string     `db:"batch_id" json:"batch_id"`
}

// Report lists every batch joined with its medicine, ordered by
// medicine name then expiry.
func (r *BatchRepository) Report(ctx context.Context) ([]*BatchReportRow, error) {
	var rows []*BatchReportRow
	query := `
		SELECT m.name AS medicine_name, b.quantity, b.mfg_date, b.exp_date,
			COALESCE(m.discount, 0.0) AS discount, b.id AS batch_id
		FROM batches b
		JOIN medicines m ON m.id = b.medicine_id
		ORDER BY m.name, b.exp_date ASC NULLS LAST
	`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}
	return rows, nil
}
