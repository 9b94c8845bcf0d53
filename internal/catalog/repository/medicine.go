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

// Medicine represents a catalog entry. Stock is the aggregate figure
// and must equal the sum of the medicine's batch quantities.
type Medicine struct {
	ID           string     `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	Manufacturer string     `db:"manufacturer" json:"manufacturer"`
	Dosage       string     `db:"dosage" json:"dosage"`
	Price        float64    `db:"price" json:"price"`
	Stock        int        `db:"stock" json:"stock"`
	Discount     float64    `db:"discount" json:"discount"`
	MfgDate      *time.Time `db:"mfg_date" json:"mfg_date,omitempty"`
	ExpDate      *time.Time `db:"exp_date" json:"exp_date,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// MedicineRepository handles medicine persistence
type MedicineRepository struct {
	db *database.DB
}

// NewMedicineRepository creates a new medicine repository
func NewMedicineRepository(db *database.DB) *MedicineRepository {
	return &MedicineRepository{db: db}
}

// Create creates a new medicine
func (r *MedicineRepository) Create(ctx context.Context, med *Medicine) error {
	if med.ID == "" {
		med.ID = uuid.New().String()
	}

	query := `
		INSERT INTO medicines (
			id, name, manufacturer, dosage, price, stock, discount, mfg_date, exp_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		med.ID, med.Name, med.Manufacturer, med.Dosage, med.Price,
		med.Stock, med.Discount, med.MfgDate, med.ExpDate,
	).Scan(&med.CreatedAt, &med.UpdatedAt)
	if err != nil {
		return database.MapPQError(err, "medicine")
	}
	return nil
}

// GetByID gets a medicine by ID
func (r *MedicineRepository) GetByID(ctx context.Context, id string) (*Medicine, error) {
	var med Medicine
	query := `SELECT * FROM medicines WHERE id = $1`
	if err := r.db.GetContext(ctx, &med, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("medicine")
		}
		return nil, err
	}
	return &med, nil
}

// GetByName finds a medicine by name, preferring an exact
// case-insensitive match over a partial one.
func (r *MedicineRepository) GetByName(ctx context.Context, name string) (*Medicine, error) {
	var med Medicine

	query := `SELECT * FROM medicines WHERE LOWER(name) = LOWER($1)`
	err := r.db.GetContext(ctx, &med, query, name)
	if err == nil {
		return &med, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	query = `SELECT * FROM medicines WHERE name ILIKE '%' || $1 || '%' ORDER BY name LIMIT 1`
	if err := r.db.GetContext(ctx, &med, query, name); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("medicine")
		}
		return nil, err
	}
	return &med, nil
}

// List lists all medicines ordered by name
func (r *MedicineRepository) List(ctx context.Context) ([]*Medicine, error) {
	var meds []*Medicine
	query := `SELECT * FROM medicines ORDER BY name`
	if err := r.db.SelectContext(ctx, &meds, query); err != nil {
		return nil, err
	}
	return meds, nil
}

// ListNames lists all medicine names. The matcher scores detected text
// against this list.
func (r *MedicineRepository) ListNames(ctx context.Context) ([]string, error) {
	var names []string
	query := `SELECT name FROM medicines ORDER BY name`
	if err := r.db.SelectContext(ctx, &names, query); err != nil {
		return nil, err
	}
	return names, nil
}

// Update updates a medicine's catalog fields
func (r *MedicineRepository) Update(ctx context.Context, med *Medicine) error {
	query := `
		UPDATE medicines SET
			name = $2, manufacturer = $3, dosage = $4, price = $5,
			stock = $6, discount = $7, mfg_date = $8, exp_date = $9,
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		med.ID, med.Name, med.Manufacturer, med.Dosage, med.Price,
		med.Stock, med.Discount, med.MfgDate, med.ExpDate,
	)
	if err != nil {
		return database.MapPQError(err, "medicine")
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("medicine")
	}

	return nil
}

// Upsert inserts or updates a medicine by name and keeps its single
// batch in sync with the aggregate stock. Used by CSV import.
func (r *MedicineRepository) Upsert(ctx context.Context, med *Medicine) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if med.ID == "" {
			med.ID = uuid.New().String()
		}

		query := `
			INSERT INTO medicines (
				id, name, manufacturer, dosage, price, stock, discount, mfg_date, exp_date
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (name) DO UPDATE SET
				manufacturer = EXCLUDED.manufacturer, dosage = EXCLUDED.dosage,
				price = EXCLUDED.price, stock = EXCLUDED.stock,
				discount = EXCLUDED.discount, mfg_date = EXCLUDED.mfg_date,
				exp_date = EXCLUDED.exp_date, updated_at = NOW()
			RETURNING id
		`
		if err := tx.QueryRowxContext(ctx, query,
			med.ID, med.Name, med.Manufacturer, med.Dosage, med.Price,
			med.Stock, med.Discount, med.MfgDate, med.ExpDate,
		).Scan(&med.ID); err != nil {
			return database.MapPQError(err, "medicine")
		}

		var batchID string
		err := tx.GetContext(ctx, &batchID,
			`SELECT id FROM batches WHERE medicine_id = $1 ORDER BY created_at LIMIT 1`, med.ID)
		switch err {
		case nil:
			_, err = tx.ExecContext(ctx,
				`UPDATE batches SET quantity = $2, mfg_date = $3, exp_date = $4, updated_at = NOW() WHERE id = $1`,
				batchID, med.Stock, med.MfgDate, med.ExpDate)
			return err
		case sql.ErrNoRows:
			_, err = tx.ExecContext(ctx,
				`INSERT INTO batches (id, medicine_id, quantity, mfg_date, exp_date) VALUES ($1, $2, $3, $4, $5)`,
				uuid.New().String(), med.ID, med.Stock, med.MfgDate, med.ExpDate)
			return err
		default:
			return err
		}
	})
}

// CreateWithBatch creates a medicine and an initial batch covering its
// stock in one transaction. Used by auto-provisioning.
func (r *MedicineRepository) CreateWithBatch(ctx context.Context, med *Medicine) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if med.ID == "" {
			med.ID = uuid.New().String()
		}

		query := `
			INSERT INTO medicines (
				id, name, manufacturer, dosage, price, stock, discount, mfg_date, exp_date
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING created_at, updated_at
		`
		if err := tx.QueryRowxContext(ctx, query,
			med.ID, med.Name, med.Manufacturer, med.Dosage, med.Price,
			med.Stock, med.Discount, med.MfgDate, med.ExpDate,
		).Scan(&med.CreatedAt, &med.UpdatedAt); err != nil {
			return database.MapPQError(err, "medicine")
		}

		if med.Stock <= 0 {
			return nil
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO batches (id, medicine_id, quantity, mfg_date, exp_date) VALUES ($1, $2, $3, $4, $5)`,
			uuid.New().String(), med.ID, med.Stock, med.MfgDate, med.ExpDate)
		return err
	})
}

// Delete removes a medicine and its batches
func (r *MedicineRepository) Delete(ctx context.Context, id string) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM batches WHERE medicine_id = $1`, id); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM medicines WHERE id = $1`, id)
		if err != nil {
			return err
		}
		affected, _ := result.RowsAffected()
		if affected == 0 {
			return errors.NotFound("medicine")
		}
		return nil
	})
}
