package service

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/smartpharmacy/smartpos-backend/internal/catalog/repository"
	"github.com/smartpharmacy/smartpos-backend/pkg/config"
	"github.com/smartpharmacy/smartpos-backend/pkg/errors"
	"github.com/smartpharmacy/smartpos-backend/pkg/logger"
	"github.com/smartpharmacy/smartpos-backend/pkg/messaging"
)

// Placeholder defaults for auto-provisioned medicines
const (
	defaultManufacturer = "Unknown"
	defaultBatchAgeDays = 180
	defaultBatchLife    = 720
)

// Service implements catalog operations
type Service struct {
	medicines *repository.MedicineRepository
	batches   *repository.BatchRepository
	publisher *messaging.Publisher
	cfg       config.CatalogConfig
	logger    *logger.Logger
}

// NewService creates a new catalog service
func NewService(
	medicines *repository.MedicineRepository,
	batches *repository.BatchRepository,
	publisher *messaging.Publisher,
	cfg config.CatalogConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		medicines: medicines,
		batches:   batches,
		publisher: publisher,
		cfg:       cfg,
		logger:    log,
	}
}

// CreateMedicineInput carries the fields for creating a medicine
type CreateMedicineInput struct {
	Name         string     `json:"name" validate:"required,min=1"`
	Manufacturer string     `json:"manufacturer"`
	Dosage       string     `json:"dosage"`
	Price        float64    `json:"price" validate:"gte=0"`
	Stock        int        `json:"stock" validate:"gte=0"`
	Discount     float64    `json:"discount" validate:"gte=0,lte=100"`
	MfgDate      *time.Time `json:"mfg_date"`
	ExpDate      *time.Time `json:"exp_date"`
}

// Create creates a medicine along with an initial batch covering its stock
func (s *Service) Create(ctx context.Context, input *CreateMedicineInput) (*repository.Medicine, error) {
	if input.Manufacturer == "" {
		input.Manufacturer = defaultManufacturer
	}

	med := &repository.Medicine{
		Name:         input.Name,
		Manufacturer: input.Manufacturer,
		Dosage:       input.Dosage,
		Price:        input.Price,
		Stock:        input.Stock,
		Discount:     input.Discount,
		MfgDate:      input.MfgDate,
		ExpDate:      input.ExpDate,
	}
	if err := s.medicines.CreateWithBatch(ctx, med); err != nil {
		return nil, err
	}

	s.logger.Info().Str("medicine_id", med.ID).Str("name", med.Name).Msg("Medicine created")
	return med, nil
}

// Get gets a medicine by ID
func (s *Service) Get(ctx context.Context, id string) (*repository.Medicine, error) {
	return s.medicines.GetByID(ctx, id)
}

// List lists all medicines
func (s *Service) List(ctx context.Context) ([]*repository.Medicine, error) {
	return s.medicines.List(ctx)
}

// Names lists all catalog names for the matcher
func (s *Service) Names(ctx context.Context) ([]string, error) {
	return s.medicines.ListNames(ctx)
}

// Update updates a medicine's catalog fields
func (s *Service) Update(ctx context.Context, med *repository.Medicine) error {
	return s.medicines.Update(ctx, med)
}

// Delete removes a medicine and its batches
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.medicines.Delete(ctx, id)
}

// EnsureByName resolves a name to a medicine, auto-provisioning a
// placeholder entry when the catalog has no match and provisioning is
// enabled. The placeholder gets a default batch covering its stock so
// it is immediately sellable.
func (s *Service) EnsureByName(ctx context.Context, name string) (*repository.Medicine, bool, error) {
	med, err := s.medicines.GetByName(ctx, name)
	if err == nil {
		return med, false, nil
	}
	if !errors.Is(err, errors.ErrNotFound) {
		return nil, false, err
	}
	if !s.cfg.AutoProvision {
		return nil, false, err
	}

	now := time.Now()
	mfg := now.AddDate(0, 0, -defaultBatchAgeDays)
	exp := now.AddDate(0, 0, defaultBatchLife)

	med = &repository.Medicine{
		Name:         name,
		Manufacturer: defaultManufacturer,
		Price:        s.cfg.DefaultPrice,
		Stock:        s.cfg.DefaultStock,
		Discount:     s.cfg.DefaultDiscount,
		MfgDate:      &mfg,
		ExpDate:      &exp,
	}
	if err := s.medicines.CreateWithBatch(ctx, med); err != nil {
		return nil, false, err
	}

	s.logger.Info().Str("medicine_id", med.ID).Str("name", med.Name).Msg("Medicine auto-provisioned")

	if err := s.publisher.Publish(ctx, messaging.EventMedicineProvisioned, messaging.MedicineProvisionedData{
		MedicineID: med.ID,
		Name:       med.Name,
		SourceText: name,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to publish medicine.provisioned event")
	}

	return med, true, nil
}

// BatchReport lists every batch joined with its medicine
func (s *Service) BatchReport(ctx context.Context) ([]*repository.BatchReportRow, error) {
	return s.batches.Report(ctx)
}

// AddBatch registers a new stock lot and raises the aggregate figure.
// Insert and stock update commit together.
func (s *Service) AddBatch(ctx context.Context, batch *repository.StockBatch) error {
	med, err := s.medicines.GetByID(ctx, batch.MedicineID)
	if err != nil {
		return err
	}

	newStock, err := s.batches.CreateRaisingStock(ctx, batch)
	if err != nil {
		return err
	}

	if err := s.publisher.Publish(ctx, messaging.EventStockAdjusted, messaging.StockAdjustedData{
		MedicineID:   med.ID,
		MedicineName: med.Name,
		Delta:        batch.Quantity,
		Remaining:    newStock,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to publish stock.adjusted event")
	}
	return nil
}

// csv header aliases accepted by ImportCSV
var csvAliases = map[string]string{
	"name":             "name",
	"manufacturer":     "manufacturer",
	"dosage":           "dosage",
	"price":            "price",
	"stock":            "stock",
	"discount":         "discount",
	"mfg_date":         "mfg_date",
	"mfg":              "mfg_date",
	"manufacture_date": "mfg_date",
	"exp_date":         "exp_date",
	"exp":              "exp_date",
	"expiry_date":      "exp_date",
}

// ImportCSV upserts medicines from CSV data. Rows without a name are
// skipped. Returns the number of rows imported and skipped.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader) (int, int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return 0, 0, errors.BadRequest("CSV data is empty or malformed")
	}

	cols := make(map[string]int)
	for i, h := range header {
		if canonical, ok := csvAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			if _, seen := cols[canonical]; !seen {
				cols[canonical] = i
			}
		}
	}
	if _, ok := cols["name"]; !ok {
		return 0, 0, errors.BadRequest("CSV data has no name column")
	}

	imported, skipped := 0, 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		field := func(name string) string {
			idx, ok := cols[name]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		name := field("name")
		if name == "" {
			skipped++
			continue
		}

		manufacturer := field("manufacturer")
		if manufacturer == "" {
			manufacturer = defaultManufacturer
		}
		price, _ := strconv.ParseFloat(field("price"), 64)
		stock, _ := strconv.Atoi(field("stock"))
		discount, _ := strconv.ParseFloat(field("discount"), 64)

		med := &repository.Medicine{
			Name:         name,
			Manufacturer: manufacturer,
			Dosage:       field("dosage"),
			Price:        price,
			Stock:        stock,
			Discount:     discount,
			MfgDate:      parseDate(field("mfg_date")),
			ExpDate:      parseDate(field("exp_date")),
		}
		if err := s.medicines.Upsert(ctx, med); err != nil {
			s.logger.Warn().Err(err).Str("name", name).Msg("CSV row import failed")
			skipped++
			continue
		}
		imported++
	}

	s.logger.Info().Int("imported", imported).Int("skipped", skipped).Msg("Catalog CSV import finished")

	if err := s.publisher.Publish(ctx, messaging.EventCatalogImported, messaging.CatalogImportedData{
		Imported: imported,
		Skipped:  skipped,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to publish catalog.imported event")
	}

	return imported, skipped, nil
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", "2006-01", "01/2006", "02/01/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
