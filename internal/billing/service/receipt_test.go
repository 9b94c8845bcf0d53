package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartpharmacy/smartpos-backend/internal/billing/repository"
	catalogrepo "github.com/smartpharmacy/smartpos-backend/internal/catalog/repository"
	"github.com/smartpharmacy/smartpos-backend/pkg/errors"
)

type fakeReceiptStore struct {
	s      *fakeStore
	drafts map[string]*repository.Receipt
	items  map[string][]*repository.ReceiptItem
	seq    int
}

func newFakeReceiptStore(s *fakeStore) *fakeReceiptStore {
	return &fakeReceiptStore{
		s:      s,
		drafts: make(map[string]*repository.Receipt),
		items:  make(map[string][]*repository.ReceiptItem),
	}
}

func (r *fakeReceiptStore) CreateDraft(ctx context.Context, terminalID string) (*repository.Receipt, error) {
	r.seq++
	receipt := &repository.Receipt{
		ID:         fmt.Sprintf("r-%d", r.seq),
		TerminalID: terminalID,
		Status:     repository.ReceiptStatusDraft,
	}
	r.drafts[terminalID] = receipt
	r.s.receipts[receipt.ID] = repository.ReceiptStatusDraft
	return receipt, nil
}

func (r *fakeReceiptStore) GetDraftByTerminal(ctx context.Context, terminalID string) (*repository.Receipt, error) {
	receipt, ok := r.drafts[terminalID]
	if !ok || r.s.receipts[receipt.ID] != repository.ReceiptStatusDraft {
		return nil, errors.NotFound("draft receipt")
	}
	return receipt, nil
}

func (r *fakeReceiptStore) UpdateMeta(ctx context.Context, receipt *repository.Receipt) error {
	return nil
}

func (r *fakeReceiptStore) AddItem(ctx context.Context, item *repository.ReceiptItem) error {
	r.seq++
	item.ID = fmt.Sprintf("ri-%d", r.seq)
	r.items[item.ReceiptID] = append(r.items[item.ReceiptID], item)
	return nil
}

func (r *fakeReceiptStore) Items(ctx context.Context, receiptID string) ([]*repository.ReceiptItem, error) {
	return r.items[receiptID], nil
}

func (r *fakeReceiptStore) List(ctx context.Context, limit int) ([]*repository.Receipt, error) {
	var out []*repository.Receipt
	for _, receipt := range r.drafts {
		out = append(out, receipt)
	}
	return out, nil
}

type fakeSaleStore struct {
	s *fakeStore
}

func (f *fakeSaleStore) Recent(ctx context.Context, limit int) ([]*repository.Sale, error) {
	return f.s.sales, nil
}

func (f *fakeSaleStore) SoldTotals(ctx context.Context) ([]*repository.SoldTotal, error) {
	byName := make(map[string]int)
	var order []string
	for _, sale := range f.s.sales {
		if _, ok := byName[sale.MedicineName]; !ok {
			order = append(order, sale.MedicineName)
		}
		byName[sale.MedicineName] += sale.Quantity
	}
	var out []*repository.SoldTotal
	for _, name := range order {
		out = append(out, &repository.SoldTotal{MedicineName: name, Quantity: byName[name]})
	}
	return out, nil
}

type fakeCatalog struct {
	byID      map[string]*catalogrepo.Medicine
	byName    map[string]*catalogrepo.Medicine
	provision bool
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		byID:   make(map[string]*catalogrepo.Medicine),
		byName: make(map[string]*catalogrepo.Medicine),
	}
}

func (c *fakeCatalog) add(med *catalogrepo.Medicine) {
	c.byID[med.ID] = med
	c.byName[med.Name] = med
}

func (c *fakeCatalog) Get(ctx context.Context, id string) (*catalogrepo.Medicine, error) {
	med, ok := c.byID[id]
	if !ok {
		return nil, errors.NotFound("medicine")
	}
	return med, nil
}

func (c *fakeCatalog) EnsureByName(ctx context.Context, name string) (*catalogrepo.Medicine, bool, error) {
	if med, ok := c.byName[name]; ok {
		return med, false, nil
	}
	if !c.provision {
		return nil, false, errors.NotFound("medicine")
	}
	med := &catalogrepo.Medicine{
		ID:    fmt.Sprintf("auto-%s", name),
		Name:  name,
		Price: 10.0, Stock: 100, Discount: 10.0,
	}
	c.add(med)
	return med, true, nil
}

func (c *fakeCatalog) List(ctx context.Context) ([]*catalogrepo.Medicine, error) {
	var out []*catalogrepo.Medicine
	for _, med := range c.byID {
		out = append(out, med)
	}
	return out, nil
}

func qty(v string) Qty {
	var q Qty
	_ = q.UnmarshalJSON([]byte(`"` + v + `"`))
	return q
}

func newReceiptService(store *fakeStore, catalog *fakeCatalog) (*ReceiptService, *fakeReceiptStore) {
	receipts := newFakeReceiptStore(store)
	alloc := NewAllocator(store, nil, testLogger())
	svc := NewReceiptService(receipts, &fakeSaleStore{s: store}, store, alloc, catalog, nil, testLogger())
	return svc, receipts
}

func TestItemSpec_QuantityCoercion(t *testing.T) {
	// numeric and string-typed quantities both decode; garbage and
	// non-positive values coerce to 1
	tests := []struct {
		raw  string
		want int
	}{
		{`3`, 3},
		{`"3"`, 3},
		{`1`, 1},
		{`0`, 1},
		{`-2`, 1},
		{`"abc"`, 1},
		{`""`, 1},
		{`2.7`, 1},
		{`null`, 1},
	}

	for _, tt := range tests {
		var spec ItemSpec
		require.NoError(t, json.Unmarshal([]byte(`{"qty":`+tt.raw+`}`), &spec), "qty %s", tt.raw)
		assert.Equal(t, tt.want, spec.Quantity(), "qty %s", tt.raw)
	}

	// absent quantity defaults to 1
	var spec ItemSpec
	require.NoError(t, json.Unmarshal([]byte(`{"id":"m1"}`), &spec))
	assert.Equal(t, 1, spec.Quantity())
}

func TestReceiptService_AddItems(t *testing.T) {
	store := newFakeStore()
	store.addMedicine("m1", "Dolo 650", 2.0, 50, 5.0)

	catalog := newFakeCatalog()
	catalog.add(&catalogrepo.Medicine{ID: "m1", Name: "Dolo 650", Price: 2.0, Stock: 50, Discount: 5.0})
	catalog.provision = true

	svc, receipts := newReceiptService(store, catalog)

	result, err := svc.AddItems(context.Background(), "till-1", []ItemSpec{
		{ID: "m1", Qty: qty("2")},
		{Name: "Benadryl", Qty: qty("abc")}, // auto-provisioned, qty coerces to 1
		{Qty: qty("1")},                     // neither id nor name
	})
	require.NoError(t, err)

	require.Len(t, result.Added, 2)
	assert.Equal(t, "Dolo 650", result.Added[0].MedicineName)
	assert.Equal(t, 2, result.Added[0].Qty)
	assert.Equal(t, 2.0, result.Added[0].UnitPrice)
	assert.Equal(t, 5.0, result.Added[0].Discount)
	assert.Equal(t, "Benadryl", result.Added[1].MedicineName)
	assert.Equal(t, 1, result.Added[1].Qty)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, 2, result.Errors[0].Index)

	// both items landed on the same draft
	items, _ := receipts.Items(context.Background(), result.Receipt.ID)
	assert.Len(t, items, 2)
}

func TestReceiptService_AddItemsReusesDraft(t *testing.T) {
	store := newFakeStore()
	store.addMedicine("m1", "Dolo 650", 2.0, 50, 0)

	catalog := newFakeCatalog()
	catalog.add(&catalogrepo.Medicine{ID: "m1", Name: "Dolo 650", Price: 2.0, Stock: 50})

	svc, _ := newReceiptService(store, catalog)

	first, err := svc.AddItems(context.Background(), "till-1", []ItemSpec{{ID: "m1", Qty: qty("1")}})
	require.NoError(t, err)
	second, err := svc.AddItems(context.Background(), "till-1", []ItemSpec{{ID: "m1", Qty: qty("1")}})
	require.NoError(t, err)

	assert.Equal(t, first.Receipt.ID, second.Receipt.ID)

	// separate terminals get separate drafts
	other, err := svc.AddItems(context.Background(), "till-2", []ItemSpec{{ID: "m1", Qty: qty("1")}})
	require.NoError(t, err)
	assert.NotEqual(t, first.Receipt.ID, other.Receipt.ID)
}

func TestReceiptService_FinalizeGrandTotal(t *testing.T) {
	store := newFakeStore()
	store.addMedicine("m1", "Dolo 650", 2.0, 50, 5.0)
	store.addMedicine("m2", "Crocin Advance", 20.0, 10, 0.0)
	store.addBatch("b1", "m1", 50, date("2026-01-01"))
	store.addBatch("b2", "m2", 10, date("2026-06-01"))

	catalog := newFakeCatalog()
	catalog.add(&catalogrepo.Medicine{ID: "m1", Name: "Dolo 650", Price: 2.0, Stock: 50, Discount: 5.0})
	catalog.add(&catalogrepo.Medicine{ID: "m2", Name: "Crocin Advance", Price: 20.0, Stock: 10})

	svc, _ := newReceiptService(store, catalog)

	_, err := svc.AddItems(context.Background(), "till-1", []ItemSpec{
		{ID: "m1", Qty: qty("4")},
		{ID: "m2", Qty: qty("2")},
	})
	require.NoError(t, err)

	result, err := svc.Finalize(context.Background(), "till-1", nil)
	require.NoError(t, err)

	// subtotal 2.0*4 + 20.0*2, discount 5% on the first line only
	assert.InDelta(t, 48.0, result.Subtotal, 1e-9)
	assert.InDelta(t, 0.4, result.DiscountTotal, 1e-9)
	assert.InDelta(t, 7.6+40.0, result.GrandTotal, 1e-9)
	assert.InDelta(t, result.Subtotal-result.DiscountTotal, result.GrandTotal, 1e-9)
	assert.Len(t, result.Lines, 2)
	assert.Empty(t, result.Shortfalls)

	// stock decremented and sales recorded per allocation chunk
	assert.Equal(t, 46, store.meds["m1"].Stock)
	assert.Equal(t, 8, store.meds["m2"].Stock)
	assert.Len(t, store.sales, 2)
	for _, sale := range store.sales {
		require.NotNil(t, sale.ReceiptID)
		assert.Equal(t, result.ReceiptID, *sale.ReceiptID)
	}
}

func TestReceiptService_FinalizeSpansBatches(t *testing.T) {
	store := newFakeStore()
	store.addMedicine("m1", "Dolo 650", 2.0, 8, 0)
	store.addBatch("b-early", "m1", 3, date("2025-01-01"))
	store.addBatch("b-late", "m1", 5, date("2025-06-01"))

	catalog := newFakeCatalog()
	catalog.add(&catalogrepo.Medicine{ID: "m1", Name: "Dolo 650", Price: 2.0, Stock: 8})

	svc, _ := newReceiptService(store, catalog)

	_, err := svc.AddItems(context.Background(), "till-1", []ItemSpec{{ID: "m1", Qty: qty("4")}})
	require.NoError(t, err)

	result, err := svc.Finalize(context.Background(), "till-1", nil)
	require.NoError(t, err)

	// one sale and one line per allocation chunk
	require.Len(t, result.Lines, 2)
	assert.Equal(t, 3, result.Lines[0].Qty)
	assert.Equal(t, 1, result.Lines[1].Qty)
	assert.Len(t, store.sales, 2)
	assert.InDelta(t, 8.0, result.GrandTotal, 1e-9)
}

func TestReceiptService_FinalizeReportsShortfall(t *testing.T) {
	store := newFakeStore()
	store.addMedicine("m1", "Dolo 650", 2.0, 2, 0)
	store.addBatch("b1", "m1", 2, date("2025-01-01"))

	catalog := newFakeCatalog()
	catalog.add(&catalogrepo.Medicine{ID: "m1", Name: "Dolo 650", Price: 2.0, Stock: 2})

	svc, _ := newReceiptService(store, catalog)

	_, err := svc.AddItems(context.Background(), "till-1", []ItemSpec{{ID: "m1", Qty: qty("5")}})
	require.NoError(t, err)

	result, err := svc.Finalize(context.Background(), "till-1", nil)
	require.NoError(t, err)

	require.Len(t, result.Shortfalls, 1)
	assert.Equal(t, 5, result.Shortfalls[0].Requested)
	assert.Equal(t, 2, result.Shortfalls[0].Allocated)
	assert.InDelta(t, 4.0, result.GrandTotal, 1e-9)
}

func TestReceiptService_DoubleFinalizeFails(t *testing.T) {
	store := newFakeStore()
	store.addMedicine("m1", "Dolo 650", 2.0, 50, 0)
	store.addBatch("b1", "m1", 50, date("2026-01-01"))

	catalog := newFakeCatalog()
	catalog.add(&catalogrepo.Medicine{ID: "m1", Name: "Dolo 650", Price: 2.0, Stock: 50})

	svc, _ := newReceiptService(store, catalog)

	_, err := svc.AddItems(context.Background(), "till-1", []ItemSpec{{ID: "m1", Qty: qty("1")}})
	require.NoError(t, err)

	_, err = svc.Finalize(context.Background(), "till-1", nil)
	require.NoError(t, err)

	_, err = svc.Finalize(context.Background(), "till-1", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestReceiptService_FinalizeWithoutDraft(t *testing.T) {
	svc, _ := newReceiptService(newFakeStore(), newFakeCatalog())

	_, err := svc.Finalize(context.Background(), "till-1", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestReceiptService_FinalizeEmptyDraft(t *testing.T) {
	store := newFakeStore()
	catalog := newFakeCatalog()
	svc, receipts := newReceiptService(store, catalog)

	_, err := receipts.CreateDraft(context.Background(), "till-1")
	require.NoError(t, err)

	_, err = svc.Finalize(context.Background(), "till-1", nil)
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestReceiptService_InventoryReport(t *testing.T) {
	store := newFakeStore()
	store.addMedicine("m1", "Dolo 650", 2.0, 50, 0)
	store.addBatch("b1", "m1", 50, date("2026-01-01"))

	catalog := newFakeCatalog()
	catalog.add(&catalogrepo.Medicine{ID: "m1", Name: "Dolo 650", Price: 2.0, Stock: 50})

	svc, _ := newReceiptService(store, catalog)

	_, err := svc.AddItems(context.Background(), "till-1", []ItemSpec{{ID: "m1", Qty: qty("6")}})
	require.NoError(t, err)
	_, err = svc.Finalize(context.Background(), "till-1", nil)
	require.NoError(t, err)

	report, err := svc.InventoryReport(context.Background())
	require.NoError(t, err)

	require.Len(t, report, 1)
	assert.Equal(t, "Dolo 650", report[0].Name)
	assert.Equal(t, 6, report[0].Sold)
}

// gatedStore keeps the transaction open after the callback runs so a
// test can observe what concurrent callers see before commit.
type gatedStore struct {
	*fakeStore
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) WithinTx(ctx context.Context, fn func(repository.Tx) error) error {
	return g.fakeStore.WithinTx(ctx, func(tx repository.Tx) error {
		err := fn(tx)
		close(g.entered)
		<-g.release
		return err
	})
}

func TestReceiptService_FinalizeHoldsLockUntilCommit(t *testing.T) {
	inner := newFakeStore()
	inner.addMedicine("m1", "Dolo 650", 2.0, 10, 0)
	inner.addBatch("b1", "m1", 10, date("2026-01-01"))

	store := &gatedStore{
		fakeStore: inner,
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}

	catalog := newFakeCatalog()
	catalog.add(&catalogrepo.Medicine{ID: "m1", Name: "Dolo 650", Price: 2.0, Stock: 10})

	receipts := newFakeReceiptStore(inner)
	alloc := NewAllocator(store, nil, testLogger())
	svc := NewReceiptService(receipts, &fakeSaleStore{s: inner}, store, alloc, catalog, nil, testLogger())

	_, err := svc.AddItems(context.Background(), "till-1", []ItemSpec{{ID: "m1", Qty: qty("4")}})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Finalize(context.Background(), "till-1", nil)
		done <- err
	}()

	<-store.entered

	acquired := make(chan struct{})
	go func() {
		unlock := alloc.LockMedicine("m1")
		unlock()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("medicine lock acquired while the finalize transaction was still open")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	require.NoError(t, <-done)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("medicine lock still held after finalize returned")
	}
}
