package service

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/smartpharmacy/smartpos-backend/internal/billing/repository"
	catalogrepo "github.com/smartpharmacy/smartpos-backend/internal/catalog/repository"
	"github.com/smartpharmacy/smartpos-backend/pkg/errors"
	"github.com/smartpharmacy/smartpos-backend/pkg/logger"
	"github.com/smartpharmacy/smartpos-backend/pkg/messaging"
)

// Catalog is the catalog surface the receipt engine needs
type Catalog interface {
	Get(ctx context.Context, id string) (*catalogrepo.Medicine, error)
	EnsureByName(ctx context.Context, name string) (*catalogrepo.Medicine, bool, error)
	List(ctx context.Context) ([]*catalogrepo.Medicine, error)
}

// ReceiptStore is the draft receipt persistence surface
type ReceiptStore interface {
	CreateDraft(ctx context.Context, terminalID string) (*repository.Receipt, error)
	GetDraftByTerminal(ctx context.Context, terminalID string) (*repository.Receipt, error)
	UpdateMeta(ctx context.Context, receipt *repository.Receipt) error
	AddItem(ctx context.Context, item *repository.ReceiptItem) error
	Items(ctx context.Context, receiptID string) ([]*repository.ReceiptItem, error)
	List(ctx context.Context, limit int) ([]*repository.Receipt, error)
}

// SaleStore is the sale record query surface
type SaleStore interface {
	Recent(ctx context.Context, limit int) ([]*repository.Sale, error)
	SoldTotals(ctx context.Context) ([]*repository.SoldTotal, error)
}

// ReceiptService drives the draft-to-finalized receipt lifecycle.
// Drafts are scoped per terminal; each terminal has at most one.
type ReceiptService struct {
	receipts  ReceiptStore
	sales     SaleStore
	store     repository.Store
	allocator *Allocator
	catalog   Catalog
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewReceiptService creates a new receipt service
func NewReceiptService(
	receipts ReceiptStore,
	sales SaleStore,
	store repository.Store,
	allocator *Allocator,
	catalog Catalog,
	publisher *messaging.Publisher,
	log *logger.Logger,
) *ReceiptService {
	return &ReceiptService{
		receipts:  receipts,
		sales:     sales,
		store:     store,
		allocator: allocator,
		catalog:   catalog,
		publisher: publisher,
		logger:    log,
	}
}

// Qty is a bill quantity. Clients send it as a number or a string of
// digits; anything unparsable or non-positive coerces to 1.
type Qty int

// UnmarshalJSON accepts both `3` and `"3"`
func (q *Qty) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(strings.Trim(strings.TrimSpace(string(data)), `"`))
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		n = 1
	}
	*q = Qty(n)
	return nil
}

// ItemSpec identifies one medicine to bill. ID wins over Name; a spec
// with neither is rejected per-item.
type ItemSpec struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Qty  Qty    `json:"qty"`
}

// Quantity returns the spec quantity coerced to at least 1
func (s *ItemSpec) Quantity() int {
	if s.Qty <= 0 {
		return 1
	}
	return int(s.Qty)
}

// ItemError reports one rejected item spec
type ItemError struct {
	Index   int    `json:"index"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
}

// AddResult reports the outcome of an AddItems call
type AddResult struct {
	Receipt *repository.Receipt       `json:"receipt"`
	Added   []*repository.ReceiptItem `json:"added"`
	Errors  []ItemError               `json:"errors,omitempty"`
}

// AddItems appends items to the terminal's draft receipt, opening a new
// draft when none exists. Stock is not touched; price and discount are
// captured from the catalog at add time. Per-item failures are
// collected and the rest of the batch still processes.
func (s *ReceiptService) AddItems(ctx context.Context, terminalID string, specs []ItemSpec) (*AddResult, error) {
	if len(specs) == 0 {
		return nil, errors.BadRequest("no items to add")
	}

	draft, err := s.receipts.GetDraftByTerminal(ctx, terminalID)
	if errors.Is(err, errors.ErrNotFound) {
		draft, err = s.receipts.CreateDraft(ctx, terminalID)
	}
	if err != nil {
		return nil, err
	}

	result := &AddResult{Receipt: draft}
	for i, spec := range specs {
		med, err := s.resolveMedicine(ctx, &spec)
		if err != nil {
			result.Errors = append(result.Errors, ItemError{
				Index:   i,
				Name:    spec.Name,
				Message: errorMessage(err),
			})
			continue
		}

		item := &repository.ReceiptItem{
			ReceiptID:    draft.ID,
			MedicineID:   med.ID,
			MedicineName: med.Name,
			Qty:          spec.Quantity(),
			UnitPrice:    med.Price,
			Discount:     med.Discount,
		}
		if err := s.receipts.AddItem(ctx, item); err != nil {
			result.Errors = append(result.Errors, ItemError{Index: i, Name: med.Name, Message: errorMessage(err)})
			continue
		}
		result.Added = append(result.Added, item)
	}

	return result, nil
}

func (s *ReceiptService) resolveMedicine(ctx context.Context, spec *ItemSpec) (*catalogrepo.Medicine, error) {
	switch {
	case spec.ID != "":
		return s.catalog.Get(ctx, spec.ID)
	case spec.Name != "":
		med, _, err := s.catalog.EnsureByName(ctx, spec.Name)
		return med, err
	default:
		return nil, errors.BadRequest("item needs an id or a name")
	}
}

// FinalizeMeta carries customer metadata for a finalize call
type FinalizeMeta struct {
	Number        *string `json:"number"`
	CustomerName  *string `json:"customer_name"`
	CustomerPhone *string `json:"customer_phone"`
	PaymentMode   *string `json:"payment_mode"`
}

// FinalizeLine is one allocation chunk on the finalized bill
type FinalizeLine struct {
	Medicine  string  `json:"medicine"`
	Qty       int     `json:"qty"`
	UnitPrice float64 `json:"unit_price"`
	Discount  float64 `json:"discount"`
	Amount    float64 `json:"amount"`
	BatchID   string  `json:"batch_id"`
	BatchCode string  `json:"batch_code"`
}

// Shortfall reports an item that could not be fully allocated
type Shortfall struct {
	Medicine  string `json:"medicine"`
	Requested int    `json:"requested"`
	Allocated int    `json:"allocated"`
}

// FinalizeResult is the finalized bill breakdown. GrandTotal is
// Subtotal minus DiscountTotal.
type FinalizeResult struct {
	ReceiptID     string         `json:"receipt_id"`
	Subtotal      float64        `json:"subtotal"`
	DiscountTotal float64        `json:"discount_total"`
	GrandTotal    float64        `json:"grand_total"`
	Lines         []FinalizeLine `json:"lines"`
	Shortfalls    []Shortfall    `json:"shortfalls,omitempty"`
}

// Finalize allocates stock for every line of the terminal's draft,
// records one sale per allocation chunk and marks the receipt
// finalized, all in one transaction. With no draft, or a draft already
// finalized by a concurrent call, it fails with a conflict. Partially
// fulfillable items are allocated as far as stock allows and reported
// as shortfalls rather than aborting the bill.
func (s *ReceiptService) Finalize(ctx context.Context, terminalID string, meta *FinalizeMeta) (*FinalizeResult, error) {
	draft, err := s.receipts.GetDraftByTerminal(ctx, terminalID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.Conflict("nothing to finalize")
		}
		return nil, err
	}

	if meta != nil {
		draft.Number = meta.Number
		draft.CustomerName = meta.CustomerName
		draft.CustomerPhone = meta.CustomerPhone
		draft.PaymentMode = meta.PaymentMode
		if err := s.receipts.UpdateMeta(ctx, draft); err != nil {
			return nil, err
		}
	}

	items, err := s.receipts.Items(ctx, draft.ID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errors.Conflict("nothing to finalize")
	}

	// Every medicine on the bill stays locked until the transaction
	// commits; a lock released mid-transaction would let a concurrent
	// allocator read batch state that may still roll back. Sorted
	// acquisition keeps concurrent finalizes deadlock-free.
	for _, id := range medicineIDs(items) {
		unlock := s.allocator.LockMedicine(id)
		defer unlock()
	}

	result := &FinalizeResult{ReceiptID: draft.ID}
	var stockResults []*AllocationResult
	var recorded []*repository.Sale

	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		total := 0.0
		for _, item := range items {
			res, err := s.allocator.AllocateInTx(ctx, tx, item.MedicineID, item.Qty)
			if err != nil {
				return err
			}
			stockResults = append(stockResults, res)

			for i := range res.Allocations {
				alloc := &res.Allocations[i]
				gross := item.UnitPrice * float64(alloc.Quantity)
				discountAmount := gross * item.Discount / 100.0
				amount := gross - discountAmount
				total += amount
				result.Subtotal += gross
				result.DiscountTotal += discountAmount

				sale := &repository.Sale{
					MedicineID:   item.MedicineID,
					MedicineName: item.MedicineName,
					ReceiptID:    &draft.ID,
					BatchID:      &alloc.BatchID,
					Quantity:     alloc.Quantity,
					TotalPrice:   amount,
					Discount:     item.Discount,
					MfgDate:      alloc.MfgDate,
					ExpDate:      alloc.ExpDate,
				}
				if err := tx.InsertSale(ctx, sale); err != nil {
					return err
				}
				recorded = append(recorded, sale)

				result.Lines = append(result.Lines, FinalizeLine{
					Medicine:  item.MedicineName,
					Qty:       alloc.Quantity,
					UnitPrice: item.UnitPrice,
					Discount:  item.Discount,
					Amount:    amount,
					BatchID:   alloc.BatchID,
					BatchCode: alloc.BatchCode,
				})
			}

			if res.Partial() {
				result.Shortfalls = append(result.Shortfalls, Shortfall{
					Medicine:  item.MedicineName,
					Requested: res.Requested,
					Allocated: res.Allocated,
				})
			}
		}

		result.GrandTotal = total
		return tx.FinalizeReceipt(ctx, draft.ID, total)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("receipt_id", draft.ID).
		Str("terminal_id", terminalID).
		Float64("grand_total", result.GrandTotal).
		Int("lines", len(result.Lines)).
		Msg("Receipt finalized")

	s.publishFinalized(ctx, draft, terminalID, result, stockResults, recorded)
	return result, nil
}

// medicineIDs returns the distinct medicine ids on a bill, sorted
func medicineIDs(items []*repository.ReceiptItem) []string {
	seen := make(map[string]bool, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if !seen[item.MedicineID] {
			seen[item.MedicineID] = true
			ids = append(ids, item.MedicineID)
		}
	}
	sort.Strings(ids)
	return ids
}

func (s *ReceiptService) publishFinalized(
	ctx context.Context,
	draft *repository.Receipt,
	terminalID string,
	result *FinalizeResult,
	stockResults []*AllocationResult,
	recorded []*repository.Sale,
) {
	for _, res := range stockResults {
		s.allocator.publishStockEvents(ctx, res)
	}

	for _, sale := range recorded {
		err := s.publisher.Publish(ctx, messaging.EventSaleRecorded, messaging.SaleRecordedData{
			SaleID:       sale.ID,
			ReceiptID:    draft.ID,
			MedicineID:   sale.MedicineID,
			MedicineName: sale.MedicineName,
			BatchID:      deref(sale.BatchID),
			Quantity:     sale.Quantity,
			Discount:     sale.Discount,
			Total:        sale.TotalPrice,
		})
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to publish sale.recorded event")
		}
	}

	err := s.publisher.Publish(ctx, messaging.EventReceiptFinalized, messaging.ReceiptFinalizedData{
		ReceiptID:  draft.ID,
		TerminalID: terminalID,
		ItemCount:  len(result.Lines),
		GrandTotal: result.GrandTotal,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to publish receipt.finalized event")
	}
}

// Current returns the terminal's draft receipt with its items
func (s *ReceiptService) Current(ctx context.Context, terminalID string) (*repository.Receipt, []*repository.ReceiptItem, error) {
	draft, err := s.receipts.GetDraftByTerminal(ctx, terminalID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.receipts.Items(ctx, draft.ID)
	if err != nil {
		return nil, nil, err
	}
	return draft, items, nil
}

// History lists recent receipts
func (s *ReceiptService) History(ctx context.Context, limit int) ([]*repository.Receipt, error) {
	return s.receipts.List(ctx, limit)
}

// RecentSales lists recent sale records
func (s *ReceiptService) RecentSales(ctx context.Context, limit int) ([]*repository.Sale, error) {
	return s.sales.Recent(ctx, limit)
}

// ReportLine is one line of the stock-versus-sold inventory report
type ReportLine struct {
	Name  string `json:"name"`
	Stock int    `json:"stock"`
	Sold  int    `json:"sold"`
}

// InventoryReport lists every medicine with its current stock and
// total quantity sold.
func (s *ReceiptService) InventoryReport(ctx context.Context) ([]ReportLine, error) {
	meds, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	totals, err := s.sales.SoldTotals(ctx)
	if err != nil {
		return nil, err
	}

	sold := make(map[string]int, len(totals))
	for _, t := range totals {
		sold[t.MedicineName] = t.Quantity
	}

	report := make([]ReportLine, 0, len(meds))
	for _, med := range meds {
		report = append(report, ReportLine{
			Name:  med.Name,
			Stock: med.Stock,
			Sold:  sold[med.Name],
		})
	}
	return report, nil
}

func errorMessage(err error) string {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
