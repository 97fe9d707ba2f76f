package extraction

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/btw-tracker/internal/tax"
)

var (
	// ErrStructuredParse means the model response held no usable record; the heuristic takes over
	ErrStructuredParse = errors.New("structured parse failure")

	// ErrInvalidCategory means the model answered with a label outside the category list
	ErrInvalidCategory = errors.New("invalid category")
)

// Record sources
const (
	SourceLLM       = "llm"
	SourceHeuristic = "heuristic"
)

// Defaults applied during post-validation
const (
	DefaultConfidence = 0.8
	DefaultCurrency   = "EUR"

	// MaxHeuristicConfidence caps records built without the model
	MaxHeuristicConfidence = 0.5
)

// Item is one line on a receipt
type Item struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	VATRate     int             `json:"vat_rate"`
}

// Structured is a transaction record read from receipt text
type Structured struct {
	VendorName       string           `json:"vendor_name"`
	VendorAddress    string           `json:"vendor_address,omitempty"`
	Date             *time.Time       `json:"date"`
	InvoiceNumber    string           `json:"invoice_number,omitempty"`
	Items            []Item           `json:"items"`
	Subtotal         decimal.Decimal  `json:"subtotal"`
	VATBreakdown     tax.VATBreakdown `json:"vat_breakdown"`
	TotalVAT         decimal.Decimal  `json:"total_vat"`
	TotalAmount      decimal.Decimal  `json:"total_amount"`
	Currency         string           `json:"currency"`
	PaymentMethod    string           `json:"payment_method,omitempty"`
	Confidence       float64          `json:"confidence"`
	DetectedLanguage string           `json:"detected_language,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	Source           string           `json:"source"`
}
