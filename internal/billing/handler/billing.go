package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/smartpharmacy/smartpos-backend/internal/billing/service"
	"github.com/smartpharmacy/smartpos-backend/pkg/httputil"
	"github.com/smartpharmacy/smartpos-backend/pkg/logger"
)

// BillingHandler handles receipt and sales endpoints
type BillingHandler struct {
	receipts *service.ReceiptService
	logger   *logger.Logger
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(receipts *service.ReceiptService, log *logger.Logger) *BillingHandler {
	return &BillingHandler{
		receipts: receipts,
		logger:   log,
	}
}

// Routes mounts the billing routes
func (h *BillingHandler) Routes(r chi.Router) {
	r.Post("/bill/items", h.AddItems)
	r.Get("/bill/current", h.Current)
	r.Post("/bill/finalize", h.Finalize)
	r.Get("/receipts", h.History)
	r.Get("/sales", h.RecentSales)
	r.Get("/report", h.InventoryReport)
}

type addItemsRequest struct {
	Items []service.ItemSpec `json:"items"`
}

// AddItems adds items to the terminal's draft receipt
func (h *BillingHandler) AddItems(w http.ResponseWriter, r *http.Request) {
	var req addItemsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.receipts.AddItems(r.Context(), httputil.GetTerminalID(r.Context()), req.Items)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// Current returns the terminal's draft receipt with items
func (h *BillingHandler) Current(w http.ResponseWriter, r *http.Request) {
	receipt, items, err := h.receipts.Current(r.Context(), httputil.GetTerminalID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"receipt": receipt,
		"items":   items,
	})
}

// Finalize closes the terminal's draft receipt and allocates stock
func (h *BillingHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	// customer metadata is optional; an empty body finalizes without it
	var meta service.FinalizeMeta
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r, &meta); err != nil {
			httputil.Error(w, err)
			return
		}
	}

	result, err := h.receipts.Finalize(r.Context(), httputil.GetTerminalID(r.Context()), &meta)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// History lists recent receipts
func (h *BillingHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	receipts, err := h.receipts.History(r.Context(), limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, receipts)
}

// RecentSales lists recent sale records
func (h *BillingHandler) RecentSales(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	sales, err := h.receipts.RecentSales(r.Context(), limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, sales)
}

// InventoryReport lists stock versus sold per medicine
func (h *BillingHandler) InventoryReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.receipts.InventoryReport(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, report)
}
