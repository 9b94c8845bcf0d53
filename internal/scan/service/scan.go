package service

import (
	"context"
	"regexp"
	"strings"

	billingservice "github.com/smartpharmacy/smartpos-backend/internal/billing/service"
	catalogrepo "github.com/smartpharmacy/smartpos-backend/internal/catalog/repository"
	"github.com/smartpharmacy/smartpos-backend/internal/recognition"
	"github.com/smartpharmacy/smartpos-backend/internal/scan/client"
	"github.com/smartpharmacy/smartpos-backend/pkg/config"
	"github.com/smartpharmacy/smartpos-backend/pkg/errors"
	"github.com/smartpharmacy/smartpos-backend/pkg/logger"
)

// Scan modes
const (
	ModePreview = "preview"
	ModeCommit  = "commit"
)

// Catalog is the catalog surface the scan pipeline needs
type Catalog interface {
	Names(ctx context.Context) ([]string, error)
	EnsureByName(ctx context.Context, name string) (*catalogrepo.Medicine, bool, error)
}

// Seller sells aggregated scan lines through the FEFO allocator
type Seller interface {
	Sell(ctx context.Context, medicineID string, qty int) (*billingservice.AllocationResult, float64, error)
}

// Service runs the recognition pipeline: detect regions, extract text,
// normalize, match, aggregate, then preview or commit.
type Service struct {
	extractor  client.TextExtractor
	detector   client.RegionDetector
	catalog    Catalog
	seller     Seller
	normalizer *recognition.Normalizer
	matcher    *recognition.Matcher
	cfg        config.RecognitionConfig
	logger     *logger.Logger
}

// NewService creates a new scan service
func NewService(
	extractor client.TextExtractor,
	detector client.RegionDetector,
	catalog Catalog,
	seller Seller,
	cfg config.RecognitionConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		extractor:  extractor,
		detector:   detector,
		catalog:    catalog,
		seller:     seller,
		normalizer: recognition.NewNormalizer(recognition.DefaultNoiseWords, cfg.MinLength),
		matcher:    recognition.NewMatcher(cfg.TokenSetThreshold, cfg.WordThreshold),
		cfg:        cfg,
		logger:     log,
	}
}

// PreviewItem is one aggregated line before committing
type PreviewItem struct {
	ID           string  `json:"id"`
	Medicine     string  `json:"medicine"`
	Price        float64 `json:"price"`
	Available    int     `json:"available"`
	SuggestedQty int     `json:"suggested_qty"`
}

// ResultLine is one committed (or failed) scan line
type ResultLine struct {
	Status   string  `json:"status"`
	Medicine string  `json:"medicine"`
	Qty      int     `json:"qty,omitempty"`
	Price    float64 `json:"price,omitempty"`
	Total    float64 `json:"total,omitempty"`
	Message  string  `json:"message"`
	RawText  string  `json:"debug_text,omitempty"`
}

// ScanResult is the scan response for either mode
type ScanResult struct {
	Preview bool          `json:"preview"`
	Matches []PreviewItem `json:"matches,omitempty"`
	Results []ResultLine  `json:"results,omitempty"`
}

// Scan recognizes medicines in a frame. Detected package regions are
// OCR'd individually; when that yields nothing the whole frame is
// tried, and finally full-frame text extraction. Preview mode only
// reports the aggregation; commit mode allocates stock and records
// sales.
func (s *Service) Scan(ctx context.Context, image []byte, mode string) (*ScanResult, error) {
	if len(image) == 0 {
		return nil, errors.BadRequest("no image to scan")
	}

	names, err := s.catalog.Names(ctx)
	if err != nil {
		return nil, err
	}

	agg := recognition.NewAggregator()

	regions, err := s.detector.DetectRegions(ctx, image)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Region detection failed, falling back to full frame")
		regions = nil
	}

	for _, region := range regions {
		segments, err := s.extractor.ExtractSegments(ctx, region.Image)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Crop OCR failed")
			continue
		}
		names = s.observeSegments(ctx, agg, segments, names, s.cfg.CropMaxWords)
	}

	if agg.Empty() {
		segments, err := s.extractor.ExtractSegments(ctx, image)
		if err != nil {
			return nil, err
		}
		if len(segments) == 0 {
			text, err := s.extractor.ExtractFullText(ctx, image)
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(text) != "" {
				segments = []client.TextSegment{{Text: text}}
			}
		}
		names = s.observeSegments(ctx, agg, segments, names, s.cfg.FrameMaxWords)
	}

	if agg.Empty() {
		return nil, errors.NoDetection("No text detected")
	}

	if mode == ModePreview {
		return s.preview(agg), nil
	}
	return s.commit(ctx, agg)
}

// observeSegments normalizes and matches each segment, resolving the
// match (or soft-creating an unknown medicine) against the catalog.
// Returns the name list, extended with any newly provisioned entries.
func (s *Service) observeSegments(
	ctx context.Context,
	agg *recognition.Aggregator,
	segments []client.TextSegment,
	names []string,
	maxWords int,
) []string {
	for _, seg := range segments {
		cleaned, ok := s.normalizer.Normalize(seg.Text, maxWords)
		if !ok {
			continue
		}

		lookup := recognition.TitleCase(cleaned)
		if name, matched := s.matcher.Match(cleaned, names); matched {
			lookup = name
		}

		med, created, err := s.catalog.EnsureByName(ctx, lookup)
		if err != nil {
			if !errors.Is(err, errors.ErrNotFound) {
				s.logger.Warn().Err(err).Str("text", cleaned).Msg("Catalog lookup failed")
			}
			continue
		}
		if created {
			names = append(names, med.Name)
		}

		agg.Observe(recognition.Observation{
			MedicineID: med.ID,
			Name:       med.Name,
			Price:      med.Price,
			Discount:   med.Discount,
			Stock:      med.Stock,
			RawText:    seg.Text,
		})
	}
	return names
}

func (s *Service) preview(agg *recognition.Aggregator) *ScanResult {
	result := &ScanResult{Preview: true}
	for _, line := range agg.Lines() {
		result.Matches = append(result.Matches, PreviewItem{
			ID:           line.MedicineID,
			Medicine:     line.Name,
			Price:        line.Price,
			Available:    line.Stock,
			SuggestedQty: line.Count,
		})
	}
	for _, oos := range agg.OutOfStock() {
		result.Results = append(result.Results, ResultLine{
			Status:   "error",
			Medicine: oos.Name,
			Message:  "Out of stock",
			RawText:  oos.RawText,
		})
	}
	return result
}

func (s *Service) commit(ctx context.Context, agg *recognition.Aggregator) (*ScanResult, error) {
	result := &ScanResult{}
	for _, oos := range agg.OutOfStock() {
		result.Results = append(result.Results, ResultLine{
			Status:   "error",
			Medicine: oos.Name,
			Message:  "Out of stock",
			RawText:  oos.RawText,
		})
	}

	for _, line := range agg.Lines() {
		alloc, total, err := s.seller.Sell(ctx, line.MedicineID, line.Count)
		if err != nil {
			result.Results = append(result.Results, ResultLine{
				Status:   "error",
				Medicine: line.Name,
				Message:  errorMessage(err),
			})
			continue
		}

		status := "success"
		message := "Added to bill"
		if alloc.Partial() {
			status = "partial"
			message = "Partially fulfilled, stock short"
		}
		result.Results = append(result.Results, ResultLine{
			Status:   status,
			Medicine: line.Name,
			Qty:      alloc.Allocated,
			Price:    line.Price,
			Total:    total,
			Message:  message,
		})
	}
	return result, nil
}

// PrescriptionItem is one medicine recognized on a prescription
type PrescriptionItem struct {
	Name         string  `json:"name"`
	Manufacturer string  `json:"manufacturer"`
	Dosage       string  `json:"dosage"`
	Price        float64 `json:"price"`
	Stock        int     `json:"stock"`
}

var prescriptionSplit = regexp.MustCompile(`[\r\n,]+`)

// ScanPrescription matches a prescription image against the catalog.
// Unknown names are never provisioned here; each medicine appears once.
// When segment OCR yields fewer than two matches, full-frame text split
// on lines and commas is tried as well.
func (s *Service) ScanPrescription(ctx context.Context, image []byte) ([]PrescriptionItem, error) {
	if len(image) == 0 {
		return nil, errors.BadRequest("no image to scan")
	}

	names, err := s.catalog.Names(ctx)
	if err != nil {
		return nil, err
	}

	var items []PrescriptionItem
	seen := make(map[string]bool)

	matchAndAdd := func(text string) {
		cleaned, ok := s.normalizer.Normalize(text, 0)
		if !ok {
			return
		}
		name, matched := s.matcher.Match(cleaned, names)
		if !matched || seen[name] {
			return
		}
		seen[name] = true

		med, _, err := s.catalog.EnsureByName(ctx, name)
		if err != nil {
			return
		}
		items = append(items, PrescriptionItem{
			Name:         med.Name,
			Manufacturer: med.Manufacturer,
			Dosage:       med.Dosage,
			Price:        med.Price,
			Stock:        med.Stock,
		})
	}

	segments, err := s.extractor.ExtractSegments(ctx, image)
	if err != nil {
		return nil, err
	}
	for _, seg := range segments {
		matchAndAdd(seg.Text)
	}

	if len(items) < 2 {
		text, err := s.extractor.ExtractFullText(ctx, image)
		if err == nil && text != "" {
			for _, part := range prescriptionSplit.Split(text, -1) {
				matchAndAdd(part)
			}
		}
	}

	if len(items) == 0 {
		return nil, errors.NoDetection("No medicines recognized in prescription")
	}
	return items, nil
}

func errorMessage(err error) string {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
