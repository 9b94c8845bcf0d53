package service

import (
	"context"
	"fmt"
	"time"

	"github.com/smartpharmacy/smartpos-backend/internal/billing/repository"
	"github.com/smartpharmacy/smartpos-backend/pkg/errors"
	"github.com/smartpharmacy/smartpos-backend/pkg/logger"
	"github.com/smartpharmacy/smartpos-backend/pkg/messaging"
)

// Default batch window for stock that predates batch tracking
const (
	defaultBatchAgeDays  = 180
	defaultBatchLifeDays = 720
)

// Allocation is one chunk taken from a single batch
type Allocation struct {
	BatchID   string     `json:"batch_id"`
	BatchCode string     `json:"batch_code"`
	Quantity  int        `json:"qty"`
	MfgDate   *time.Time `json:"mfg_date,omitempty"`
	ExpDate   *time.Time `json:"exp_date,omitempty"`
}

// AllocationResult reports what an allocation actually fulfilled.
// Short > 0 means partial fulfillment; callers must surface it.
type AllocationResult struct {
	MedicineID   string       `json:"medicine_id"`
	MedicineName string       `json:"medicine_name"`
	UnitPrice    float64      `json:"unit_price"`
	Discount     float64      `json:"discount"`
	Requested    int          `json:"requested"`
	Allocated    int          `json:"allocated"`
	Short        int          `json:"short"`
	Remaining    int          `json:"remaining"`
	Allocations  []Allocation `json:"allocations"`
}

// Partial reports whether the request could not be fully fulfilled
func (r *AllocationResult) Partial() bool {
	return r.Short > 0
}

// Allocator consumes stock first-expiry-first-out. All mutation runs
// under a per-medicine lock and a single transaction, so concurrent
// allocations against one medicine never over-sell.
type Allocator struct {
	store     repository.Store
	locks     *keyedMutex
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewAllocator creates a new FEFO allocator
func NewAllocator(store repository.Store, publisher *messaging.Publisher, log *logger.Logger) *Allocator {
	return &Allocator{
		store:     store,
		locks:     newKeyedMutex(),
		publisher: publisher,
		logger:    log,
	}
}

// LockMedicine serializes stock mutation for one medicine. Callers of
// AllocateInTx must hold this lock for the duration of the walk.
func (a *Allocator) LockMedicine(medicineID string) func() {
	return a.locks.Lock(medicineID)
}

// Allocate takes requested units from the medicine's batches in FEFO
// order within its own transaction.
func (a *Allocator) Allocate(ctx context.Context, medicineID string, requested int) (*AllocationResult, error) {
	unlock := a.LockMedicine(medicineID)
	defer unlock()

	var result *AllocationResult
	err := a.store.WithinTx(ctx, func(tx repository.Tx) error {
		r, err := a.AllocateInTx(ctx, tx, medicineID, requested)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.publishStockEvents(ctx, result)
	return result, nil
}

// Sell allocates and records one sale per allocation chunk, without a
// receipt. Used by scan commits. Returns the allocation outcome and
// the discounted total actually charged.
func (a *Allocator) Sell(ctx context.Context, medicineID string, requested int) (*AllocationResult, float64, error) {
	unlock := a.LockMedicine(medicineID)
	defer unlock()

	var result *AllocationResult
	var total float64
	err := a.store.WithinTx(ctx, func(tx repository.Tx) error {
		r, err := a.AllocateInTx(ctx, tx, medicineID, requested)
		if err != nil {
			return err
		}

		for i := range r.Allocations {
			alloc := &r.Allocations[i]
			partTotal := alloc.lineTotal(r.UnitPrice, r.Discount)
			total += partTotal

			sale := &repository.Sale{
				MedicineID:   r.MedicineID,
				MedicineName: r.MedicineName,
				BatchID:      &alloc.BatchID,
				Quantity:     alloc.Quantity,
				TotalPrice:   partTotal,
				Discount:     r.Discount,
				MfgDate:      alloc.MfgDate,
				ExpDate:      alloc.ExpDate,
			}
			if err := tx.InsertSale(ctx, sale); err != nil {
				return err
			}
		}

		result = r
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	a.publishStockEvents(ctx, result)
	return result, total, nil
}

// AllocateInTx walks the medicine's batches earliest-expiry-first and
// decrements each taken batch plus the aggregate stock figure. When a
// medicine has stock but no batches, one default batch covering that
// stock is materialized first.
func (a *Allocator) AllocateInTx(ctx context.Context, tx repository.Tx, medicineID string, requested int) (*AllocationResult, error) {
	if requested <= 0 {
		return nil, errors.BadRequest("requested quantity must be positive")
	}

	med, err := tx.MedicineStock(ctx, medicineID)
	if err != nil {
		return nil, err
	}

	batches, err := tx.BatchesFEFO(ctx, medicineID)
	if err != nil {
		return nil, err
	}

	if len(batches) == 0 && med.Stock > 0 {
		now := time.Now()
		batch, err := tx.InsertBatch(ctx, medicineID, med.Stock,
			now.AddDate(0, 0, -defaultBatchAgeDays),
			now.AddDate(0, 0, defaultBatchLifeDays))
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}

	result := &AllocationResult{
		MedicineID:   med.ID,
		MedicineName: med.Name,
		UnitPrice:    med.Price,
		Discount:     med.Discount,
		Requested:    requested,
	}

	remaining := requested
	for _, batch := range batches {
		if remaining <= 0 {
			break
		}
		if batch.Quantity <= 0 {
			continue
		}

		take := remaining
		if batch.Quantity < take {
			take = batch.Quantity
		}
		if err := tx.TakeFromBatch(ctx, batch.ID, take); err != nil {
			return nil, err
		}

		result.Allocations = append(result.Allocations, Allocation{
			BatchID:   batch.ID,
			BatchCode: batchCode(batch.BatchCode, batch.ID),
			Quantity:  take,
			MfgDate:   batch.MfgDate,
			ExpDate:   batch.ExpDate,
		})
		remaining -= take
	}

	result.Allocated = requested - remaining
	result.Short = remaining

	if result.Allocated > 0 {
		if err := tx.ReduceStock(ctx, medicineID, result.Allocated); err != nil {
			return nil, err
		}
	}
	result.Remaining = med.Stock - result.Allocated

	a.logger.Debug().
		Str("medicine_id", med.ID).
		Int("requested", requested).
		Int("allocated", result.Allocated).
		Int("short", result.Short).
		Msg("Stock allocated")

	return result, nil
}

func (a *Allocator) publishStockEvents(ctx context.Context, result *AllocationResult) {
	if result.Allocated == 0 {
		return
	}

	eventType := messaging.EventStockAdjusted
	if result.Remaining == 0 {
		eventType = messaging.EventStockDepleted
	}
	err := a.publisher.Publish(ctx, eventType, messaging.StockAdjustedData{
		MedicineID:   result.MedicineID,
		MedicineName: result.MedicineName,
		Delta:        -result.Allocated,
		Remaining:    result.Remaining,
	})
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to publish stock event")
	}
}

// lineTotal applies the percentage discount to one allocation chunk
func (al *Allocation) lineTotal(unitPrice, discount float64) float64 {
	return unitPrice * float64(al.Quantity) * (1 - discount/100.0)
}

func batchCode(code *string, id string) string {
	if code != nil && *code != "" {
		return *code
	}
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("B%s", short)
}
