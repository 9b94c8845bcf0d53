package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/smartpharmacy/smartpos-backend/internal/scan/service"
	"github.com/smartpharmacy/smartpos-backend/pkg/errors"
	"github.com/smartpharmacy/smartpos-backend/pkg/httputil"
	"github.com/smartpharmacy/smartpos-backend/pkg/logger"
)

// ScanHandler handles scan endpoints
type ScanHandler struct {
	service *service.Service
	logger  *logger.Logger
}

// NewScanHandler creates a new scan handler
func NewScanHandler(svc *service.Service, log *logger.Logger) *ScanHandler {
	return &ScanHandler{
		service: svc,
		logger:  log,
	}
}

// Routes mounts the scan routes
func (h *ScanHandler) Routes(r chi.Router) {
	r.Post("/scan", h.Scan)
	r.Post("/scan/prescription", h.ScanPrescription)
}

type scanRequest struct {
	Image   []byte `json:"image"`
	Preview bool   `json:"preview"`
}

// Scan recognizes medicines in a frame and previews or commits them
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	mode := service.ModeCommit
	if req.Preview {
		mode = service.ModePreview
	}

	result, err := h.service.Scan(r.Context(), req.Image, mode)
	if err != nil {
		if errors.Is(err, errors.ErrNoDetection) {
			httputil.Warning(w, "No text detected")
			return
		}
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// ScanPrescription matches a prescription image against the catalog
func (h *ScanHandler) ScanPrescription(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	items, err := h.service.ScanPrescription(r.Context(), req.Image)
	if err != nil {
		if errors.Is(err, errors.ErrNoDetection) {
			httputil.Warning(w, "No medicines recognized in prescription")
			return
		}
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, items)
}
