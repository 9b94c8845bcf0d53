package repository

import (
	"context"
	"time"

	"github.com/smartpharmacy/smartpos-backend/pkg/database"
)

// Sale records one allocation chunk sold from a specific batch.
// ReceiptID is nil for direct scan-commit sales.
type Sale struct {
	ID           string     `db:"id" json:"id"`
	MedicineID   string     `db:"medicine_id" json:"medicine_id"`
	MedicineName string     `db:"medicine_name" json:"medicine_name"`
	ReceiptID    *string    `db:"receipt_id" json:"receipt_id,omitempty"`
	BatchID      *string    `db:"batch_id" json:"batch_id,omitempty"`
	Quantity     int        `db:"quantity" json:"quantity"`
	TotalPrice   float64    `db:"total_price" json:"total_price"`
	Discount     float64    `db:"discount" json:"discount"`
	MfgDate      *time.Time `db:"mfg_date" json:"mfg_date,omitempty"`
	ExpDate      *time.Time `db:"exp_date" json:"exp_date,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// SoldTotal is a per-medicine sold-quantity summary row
type SoldTotal struct {
	MedicineName string `db:"medicine_name" json:"medicine_name"`
	Quantity     int    `db:"quantity" json:"quantity"`
}

// SaleRepository handles sale record queries. Inserts happen inside
// allocation transactions, not here.
type SaleRepository struct {
	db *database.DB
}

// NewSaleRepository creates a new sale repository
func NewSaleRepository(db *database.DB) *SaleRepository {
	return &SaleRepository{db: db}
}

// Recent lists recent sales, newest first
func (r *SaleRepository) Recent(ctx context.Context, limit int) ([]*Sale, error) {
	if limit <= 0 {
		limit = 10
	}

	var sales []*Sale
	query := `SELECT * FROM sales ORDER BY created_at DESC LIMIT $1`
	if err := r.db.SelectContext(ctx, &sales, query, limit); err != nil {
		return nil, err
	}
	return sales, nil
}

// SoldTotals sums sold quantities per medicine name
func (r *SaleRepository) SoldTotals(ctx context.Context) ([]*SoldTotal, error) {
	var totals []*SoldTotal
	query := `
		SELECT medicine_name, SUM(quantity) AS quantity
		FROM sales
		GROUP BY medicine_name
	`
	if err := r.db.SelectContext(ctx, &totals, query); err != nil {
		return nil, err
	}
	return totals, nil
}
