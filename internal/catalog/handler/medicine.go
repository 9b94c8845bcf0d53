package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/smartpharmacy/smartpos-backend/internal/catalog/repository"
	"github.com/smartpharmacy/smartpos-backend/internal/catalog/service"
	"github.com/smartpharmacy/smartpos-backend/pkg/errors"
	"github.com/smartpharmacy/smartpos-backend/pkg/httputil"
	"github.com/smartpharmacy/smartpos-backend/pkg/logger"
)

// MedicineHandler handles catalog endpoints
type MedicineHandler struct {
	service *service.Service
	logger  *logger.Logger
}

// NewMedicineHandler creates a new medicine handler
func NewMedicineHandler(svc *service.Service, log *logger.Logger) *MedicineHandler {
	return &MedicineHandler{
		service: svc,
		logger:  log,
	}
}

// Routes mounts the catalog routes
func (h *MedicineHandler) Routes(r chi.Router) {
	r.Get("/medicines", h.List)
	r.Post("/medicines", h.Create)
	r.Get("/medicines/{id}", h.Get)
	r.Put("/medicines/{id}", h.Update)
	r.Delete("/medicines/{id}", h.Delete)
	r.Post("/medicines/import", h.ImportCSV)
	r.Get("/batches/report", h.BatchReport)
	r.Post("/batches", h.AddBatch)
}

// List lists all medicines
func (h *MedicineHandler) List(w http.ResponseWriter, r *http.Request) {
	meds, err := h.service.List(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, meds)
}

// Get gets a medicine by ID
func (h *MedicineHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	med, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, med)
}

// Create creates a new medicine
func (h *MedicineHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.CreateMedicineInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&input); err != nil {
		httputil.Error(w, err)
		return
	}

	med, err := h.service.Create(r.Context(), &input)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, med)
}

// Update updates a medicine
func (h *MedicineHandler) Update(w http.ResponseWriter, r *http.Request) {
	var med repository.Medicine
	if err := httputil.DecodeJSON(r, &med); err != nil {
		httputil.Error(w, err)
		return
	}
	med.ID = chi.URLParam(r, "id")

	if err := h.service.Update(r.Context(), &med); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, med)
}

// Delete removes a medicine and its batches
func (h *MedicineHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

// ImportCSV bulk-imports medicines from a CSV request body
func (h *MedicineHandler) ImportCSV(w http.ResponseWriter, r *http.Request) {
	imported, skipped, err := h.service.ImportCSV(r.Context(), r.Body)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]int{
		"imported": imported,
		"skipped":  skipped,
	})
}

// BatchReport lists every batch with its medicine
func (h *MedicineHandler) BatchReport(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.BatchReport(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, rows)
}

// AddBatch registers a new stock lot
func (h *MedicineHandler) AddBatch(w http.ResponseWriter, r *http.Request) {
	var batch repository.StockBatch
	if err := httputil.DecodeJSON(r, &batch); err != nil {
		httputil.Error(w, err)
		return
	}
	if batch.MedicineID == "" || batch.Quantity <= 0 {
		httputil.Error(w, errors.BadRequest("medicine_id and a positive quantity are required"))
		return
	}

	if err := h.service.AddBatch(r.Context(), &batch); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, batch)
}
