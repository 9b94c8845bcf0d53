package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Exchange used by the POS service
const (
	ExchangePOS = "smartpos.events"
)

// Event types published by the POS service
const (
	EventSaleRecorded        = "sale.recorded"
	EventReceiptFinalized    = "receipt.finalized"
	EventStockAdjusted       = "stock.adjusted"
	EventStockDepleted       = "stock.depleted"
	EventMedicineProvisioned = "medicine.provisioned"
	EventCatalogImported     = "catalog.imported"
)

// Event is the envelope for all published messages
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates an event envelope with a generated ID and timestamp
func NewEvent(eventType, source string, data interface{}) (*Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	}, nil
}

// SaleRecordedData is the payload for sale.recorded events
type SaleRecordedData struct {
	SaleID       string  `json:"sale_id"`
	ReceiptID    string  `json:"receipt_id"`
	MedicineID   string  `json:"medicine_id"`
	MedicineName string  `json:"medicine_name"`
	BatchID      string  `json:"batch_id,omitempty"`
	Quantity     int     `json:"quantity"`
	Discount     float64 `json:"discount"`
	Total        float64 `json:"total"`
}

// ReceiptFinalizedData is the payload for receipt.finalized events
type ReceiptFinalizedData struct {
	ReceiptID  string  `json:"receipt_id"`
	TerminalID string  `json:"terminal_id"`
	ItemCount  int     `json:"item_count"`
	GrandTotal float64 `json:"grand_total"`
}

// StockAdjustedData is the payload for stock.adjusted and stock.depleted events
type StockAdjustedData struct {
	MedicineID   string `json:"medicine_id"`
	MedicineName string `json:"medicine_name"`
	Delta        int    `json:"delta"`
	Remaining    int    `json:"remaining"`
}

// MedicineProvisionedData is the payload for medicine.provisioned events
type MedicineProvisionedData struct {
	MedicineID string `json:"medicine_id"`
	Name       string `json:"name"`
	SourceText string `json:"source_text"`
}

// CatalogImportedData is the payload for catalog.imported events
type CatalogImportedData struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}
