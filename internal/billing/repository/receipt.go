package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/smartpharmacy/smartpos-backend/pkg/database"
	"github.com/smartpharmacy/smartpos-backend/pkg/errors"
)

// Receipt statuses
const (
	ReceiptStatusDraft     = "draft"
	ReceiptStatusFinalized = "finalized"
)

// Receipt is a bill accumulating priced line items. At most one draft
// exists per terminal at a time.
type Receipt struct {
	ID            string    `db:"id" json:"id"`
	TerminalID    string    `db:"terminal_id" json:"terminal_id"`
	Number        *string   `db:"number" json:"number,omitempty"`
	CustomerName  *string   `db:"customer_name" json:"customer_name,omitempty"`
	CustomerPhone *string   `db:"customer_phone" json:"customer_phone,omitempty"`
	PaymentMode   *string   `db:"payment_mode" json:"payment_mode,omitempty"`
	Total         float64   `db:"total" json:"total"`
	Status        string    `db:"status" json:"status"`
	Printed       bool      `db:"printed" json:"printed"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// ReceiptItem is one immutable line on a draft receipt. Unit price and
// discount are captured at add time.
type ReceiptItem struct {
	ID           string    `db:"id" json:"id"`
	ReceiptID    string    `db:"receipt_id" json:"receipt_id"`
	MedicineID   string    `db:"medicine_id" json:"medicine_id"`
	MedicineName string    `db:"medicine_name" json:"medicine_name"`
	Qty          int       `db:"qty" json:"qty"`
	UnitPrice    float64   `db:"unit_price" json:"unit_price"`
	Discount     float64   `db:"discount" json:"discount"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// ReceiptRepository handles receipt persistence
type ReceiptRepository struct {
	db *database.DB
}

// NewReceiptRepository creates a new receipt repository
func NewReceiptRepository(db *database.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

// CreateDraft opens a new draft receipt for a terminal
func (r *ReceiptRepository) CreateDraft(ctx context.Context, terminalID string) (*Receipt, error) {
	receipt := &Receipt{
		ID:         uuid.New().String(),
		TerminalID: terminalID,
		Status:     ReceiptStatusDraft,
	}

	query := `
		INSERT INTO receipts (id, terminal_id, total, status, printed)
		VALUES ($1, $2, 0.0, $3, false)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query, receipt.ID, receipt.TerminalID, receipt.Status).
		Scan(&receipt.CreatedAt, &receipt.UpdatedAt)
	if err != nil {
		return nil, database.MapPQError(err, "receipt")
	}
	return receipt, nil
}

// GetDraftByTerminal returns the terminal's current draft receipt
func (r *ReceiptRepository) GetDraftByTerminal(ctx context.Context, terminalID string) (*Receipt, error) {
	var receipt Receipt
	query := `
		SELECT * FROM receipts
		WHERE terminal_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	if err := r.db.GetContext(ctx, &receipt, query, terminalID, ReceiptStatusDraft); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("draft receipt")
		}
		return nil, err
	}
	return &receipt, nil
}

// GetByID gets a receipt by ID
func (r *ReceiptRepository) GetByID(ctx context.Context, id string) (*Receipt, error) {
	var receipt Receipt
	query := `SELECT * FROM receipts WHERE id = $1`
	if err := r.db.GetContext(ctx, &receipt, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("receipt")
		}
		return nil, err
	}
	return &receipt, nil
}

// UpdateMeta sets customer metadata on a receipt
func (r *ReceiptRepository) UpdateMeta(ctx context.Context, receipt *Receipt) error {
	query := `
		UPDATE receipts SET
			number = $2, customer_name = $3, customer_phone = $4,
			payment_mode = $5, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		receipt.ID, receipt.Number, receipt.CustomerName, receipt.CustomerPhone, receipt.PaymentMode,
	)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("receipt")
	}
	return nil
}

// AddItem appends a line item to a receipt
func (r *ReceiptRepository) AddItem(ctx context.Context, item *ReceiptItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	query := `
		INSERT INTO receipt_items (id, receipt_id, medicine_id, medicine_name, qty, unit_price, discount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		item.ID, item.ReceiptID, item.MedicineID, item.MedicineName,
		item.Qty, item.UnitPrice, item.Discount,
	).Scan(&item.CreatedAt)
	if err != nil {
		return database.MapPQError(err, "receipt item")
	}
	return nil
}

// Items lists a receipt's line items in insertion order
func (r *ReceiptRepository) Items(ctx context.Context, receiptID string) ([]*ReceiptItem, error) {
	var items []*ReceiptItem
	query := `SELECT * FROM receipt_items WHERE receipt_id = $1 ORDER BY created_at, id`
	if err := r.db.SelectContext(ctx, &items, query, receiptID); err != nil {
		return nil, err
	}
	return items, nil
}

// List lists recent receipts, newest first
func (r *ReceiptRepository) List(ctx context.Context, limit int) ([]*Receipt, error) {
	if limit <= 0 {
		limit = 20
	}

	var receipts []*Receipt
	query := `SELECT * FROM receipts ORDER BY created_at DESC LIMIT $1`
	if err := r.db.SelectContext(ctx, &receipts, query, limit); err != nil {
		return nil, err
	}
	return receipts, nil
}
