package receipt

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/btw-tracker/internal/extraction"
	"github.com/zombor/btw-tracker/internal/tax"
)

var (
	// ErrNotFound is returned for unknown or soft-deleted receipts
	ErrNotFound = errors.New("receipt not found")

	// ErrInvalidTransition is returned when a status change is not allowed
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Status is the processing state of a receipt
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// SourceManual marks extracted data entered by hand during review
const SourceManual = "manual"

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusFailed:     {StatusPending},
	StatusCompleted:  {StatusPending},
}

// CanTransition reports whether a receipt may move from one status to another
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Receipt represents an uploaded receipt file and its processing state
type Receipt struct {
	ID               string    `json:"id"`
	OriginalFilename string    `json:"original_filename"`
	StoredFilename   string    `json:"stored_filename"`
	FileSize         int64     `json:"file_size"`
	ContentType      string    `json:"content_type"`
	UploadedAt       time.Time `json:"uploaded_at"`
	ProcessingStatus Status    `json:"processing_status"`
	ProcessingError  string    `json:"processing_error,omitempty"`
	IsValidated      bool      `json:"is_validated"`
	IsDeleted        bool      `json:"is_deleted"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ExtractedData is the tax record derived from a receipt
type ExtractedData struct {
	ReceiptID        string       `json:"receipt_id"`
	TransactionDate  *time.Time   `json:"transaction_date"`
	VendorName       string       `json:"vendor_name"`
	VendorAddress    string       `json:"vendor_address,omitempty"`
	InvoiceNumber    string       `json:"invoice_number,omitempty"`
	DetectedLanguage string       `json:"detected_language,omitempty"`
	ExpenseCategory  tax.Category `json:"expense_category"`

	AmountExclVAT   decimal.Decimal  `json:"amount_excl_vat"`
	VATAmountByRate tax.VATBreakdown `json:"vat_amount_by_rate"`
	TotalInclVAT    decimal.Decimal  `json:"total_incl_vat"`

	OriginalCurrency    string          `json:"original_currency"`
	OriginalTotalAmount decimal.Decimal `json:"original_total_amount"`
	ExchangeRate        decimal.Decimal `json:"exchange_rate"`
	ExchangeRateDate    *time.Time      `json:"exchange_rate_date,omitempty"`
	ExchangeRateSource  string          `json:"exchange_rate_source"`

	VATDeductiblePercentage float64         `json:"vat_deductible_percentage"`
	IBDeductiblePercentage  float64         `json:"ib_deductible_percentage"`
	VATRefundAmount         decimal.Decimal `json:"vat_refund_amount"`
	RemainderAfterVAT       decimal.Decimal `json:"remainder_after_vat"`
	ProfitDeduction         decimal.Decimal `json:"profit_deduction"`

	ConfidenceScore       float64 `json:"confidence_score"`
	ManualReviewRequired  bool    `json:"manual_review_required"`
	ManualReviewCompleted bool    `json:"manual_review_completed"`

	RawText          string            `json:"raw_text"`
	StructuredJSON   json.RawMessage   `json:"structured_json,omitempty"`
	Items            []extraction.Item `json:"items"`
	PaymentMethod    string            `json:"payment_method,omitempty"`
	Notes            string            `json:"notes,omitempty"`
	ExtractionSource string            `json:"extraction_source"`
	ExtractedAt      time.Time         `json:"extracted_at"`
}

// VATAmount returns the VAT paid across all rates
func (d *ExtractedData) VATAmount() decimal.Decimal {
	return d.VATAmountByRate.Total()
}
