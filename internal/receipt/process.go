package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/btw-tracker/internal/currency"
	"github.com/zombor/btw-tracker/internal/extraction"
	"github.com/zombor/btw-tracker/internal/tax"
)

// baseCurrency is the currency every ledger amount is kept in
const baseCurrency = "EUR"

// Result is the outcome of processing one receipt
type Result struct {
	ReceiptID string         `json:"receipt_id"`
	Status    Status         `json:"status"`
	Data      *ExtractedData `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// ManualEntry is a reviewer's correction of an extracted record
type ManualEntry struct {
	TransactionDate *time.Time       `json:"transaction_date"`
	VendorName      string           `json:"vendor_name" validate:"required,max=200"`
	VendorAddress   string           `json:"vendor_address" validate:"max=500"`
	InvoiceNumber   string           `json:"invoice_number" validate:"max=100"`
	ExpenseCategory string           `json:"expense_category" validate:"required"`
	TotalInclVAT    decimal.Decimal  `json:"total_incl_vat"`
	VATAmountByRate tax.VATBreakdown `json:"vat_amount_by_rate"`
	Currency        string           `json:"currency" validate:"omitempty,len=3,alpha"`
	Notes           string           `json:"notes" validate:"max=2000"`
}

// Process runs a pending receipt through extraction, categorisation, tax rules and currency
// conversion. It never returns an error: failures are recorded on the receipt and in the Result.
func (s *Service) Process(ctx context.Context, id string) *Result {
	receipt, err := s.db.UpdateReceipt(id, func(r *Receipt) error {
		if r.IsDeleted {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return s.transition(r, StatusProcessing)
	})
	if err != nil {
		slog.Warn("receipt not processed", "receipt_id", id, "error", err)
		res := &Result{ReceiptID: id, Error: err.Error()}
		if current, getErr := s.db.GetReceipt(id); getErr == nil {
			res.Status = current.ProcessingStatus
		}
		return res
	}

	slog.Info("processing receipt", "receipt_id", id, "content_type", receipt.ContentType)
	data, err := s.extract(ctx, receipt)
	if err != nil {
		return s.fail(receipt, err)
	}

	if err := s.transition(receipt, StatusCompleted); err != nil {
		return s.fail(receipt, err)
	}
	receipt.ProcessingError = ""
	if err := s.db.CompleteReceipt(receipt, data); err != nil {
		return s.fail(receipt, fmt.Errorf("saving extracted data: %w", err))
	}

	slog.Info("receipt processed",
		"receipt_id", id,
		"vendor", data.VendorName,
		"category", data.ExpenseCategory,
		"total", data.TotalInclVAT.StringFixed(2),
		"confidence", data.ConfidenceScore,
		"manual_review_required", data.ManualReviewRequired,
	)
	return &Result{ReceiptID: id, Status: StatusCompleted, Data: data}
}

// Reprocess sends a completed or failed receipt back through the whole pipeline
func (s *Service) Reprocess(ctx context.Context, id string) (*Result, error) {
	_, err := s.db.UpdateReceipt(id, func(r *Receipt) error {
		if r.IsDeleted {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := s.transition(r, StatusPending); err != nil {
			return err
		}
		r.ProcessingError = ""
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reprocessing receipt: %w", err)
	}
	return s.Process(ctx, id), nil
}

// ProcessBatch processes receipts one after another, pacing each start with the pipeline limiter
func (s *Service) ProcessBatch(ctx context.Context, ids []string) []*Result {
	results := make([]*Result, 0, len(ids))
	for i, id := range ids {
		if s.pipeline.Limiter != nil {
			if err := s.pipeline.Limiter.Wait(ctx); err != nil {
				slog.Warn("batch interrupted", "processed", i, "remaining", len(ids)-i, "error", err)
				for _, rest := range ids[i:] {
					results = append(results, &Result{ReceiptID: rest, Status: StatusPending, Error: err.Error()})
				}
				return results
			}
		}
		results = append(results, s.Process(ctx, id))
	}
	return results
}

// SubmitManualEntry replaces the extracted data with a reviewer's values and recomputes
// the tax amounts. The receipt ends up completed and validated.
func (s *Service) SubmitManualEntry(ctx context.Context, id string, entry ManualEntry) (*ExtractedData, error) {
	if err := s.validate.Struct(entry); err != nil {
		return nil, fmt.Errorf("%w: %w", tax.ErrValidation, err)
	}
	category, ok := tax.ParseCategory(entry.ExpenseCategory)
	if !ok {
		return nil, fmt.Errorf("%w: unknown category %q", tax.ErrValidation, entry.ExpenseCategory)
	}
	if entry.TotalInclVAT.IsNegative() {
		return nil, fmt.Errorf("%w: total must not be negative", tax.ErrValidation)
	}
	for _, r := range tax.VATRates {
		if entry.VATAmountByRate.Get(r).IsNegative() {
			return nil, fmt.Errorf("%w: VAT at %d%% must not be negative", tax.ErrValidation, r)
		}
	}

	receipt, err := s.GetReceipt(id)
	if err != nil {
		return nil, err
	}
	if receipt.ProcessingStatus == StatusProcessing {
		return nil, fmt.Errorf("%w: receipt %s is being processed", ErrInvalidTransition, id)
	}

	data, err := s.db.GetExtractedData(id)
	if errors.Is(err, ErrNotFound) {
		data = &ExtractedData{ReceiptID: id, Items: []extraction.Item{}}
	} else if err != nil {
		return nil, fmt.Errorf("getting extracted data: %w", err)
	}
	wasFlagged := data.ManualReviewRequired

	rule, err := s.pipeline.Rules.Resolve(category)
	if err != nil {
		return nil, fmt.Errorf("resolving tax rule: %w", err)
	}

	data.TransactionDate = entry.TransactionDate
	data.VendorName = strings.TrimSpace(entry.VendorName)
	data.VendorAddress = entry.VendorAddress
	data.InvoiceNumber = entry.InvoiceNumber
	data.ExpenseCategory = category
	data.Notes = entry.Notes
	if err := s.price(ctx, data, entry.TotalInclVAT, entry.VATAmountByRate, entry.Currency, rule); err != nil {
		return nil, err
	}
	data.ConfidenceScore = 1
	data.ManualReviewRequired = wasFlagged
	data.ManualReviewCompleted = true
	data.ExtractionSource = SourceManual
	now := s.timeSource.Now()
	data.ExtractedAt = now

	receipt.ProcessingStatus = StatusCompleted
	receipt.ProcessingError = ""
	receipt.IsValidated = true
	receipt.UpdatedAt = now
	if err := s.db.CompleteReceipt(receipt, data); err != nil {
		return nil, fmt.Errorf("saving manual entry: %w", err)
	}

	slog.Info("manual review saved", "receipt_id", id, "category", category, "total", data.TotalInclVAT.StringFixed(2))
	return data, nil
}

// errInterrupted is recorded on receipts left in processing by a previous run
var errInterrupted = errors.New("processing was interrupted, reprocess the receipt")

// FailInterrupted marks receipts stuck in processing as failed so they can be reprocessed.
// It must run before any receipt is processed.
func (s *Service) FailInterrupted() (int, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return 0, fmt.Errorf("listing receipts: %w", err)
	}

	n := 0
	for _, r := range receipts {
		if r.ProcessingStatus != StatusProcessing {
			continue
		}
		_, err := s.db.UpdateReceipt(r.ID, func(r *Receipt) error {
			if err := s.transition(r, StatusFailed); err != nil {
				return err
			}
			r.ProcessingError = errInterrupted.Error()
			return nil
		})
		if errors.Is(err, ErrInvalidTransition) {
			continue
		}
		if err != nil {
			return n, fmt.Errorf("failing receipt %s: %w", r.ID, err)
		}
		slog.Warn("receipt was left in processing", "receipt_id", r.ID)
		n++
	}
	return n, nil
}

func (s *Service) transition(r *Receipt, to Status) error {
	if !CanTransition(r.ProcessingStatus, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.ProcessingStatus, to)
	}
	r.ProcessingStatus = to
	r.UpdatedAt = s.timeSource.Now()
	return nil
}

func (s *Service) fail(receipt *Receipt, cause error) *Result {
	slog.Error("Failed to process receipt", "receipt_id", receipt.ID, "error", cause)

	receipt.ProcessingStatus = StatusFailed
	receipt.ProcessingError = cause.Error()
	receipt.UpdatedAt = s.timeSource.Now()
	if err := s.db.SaveReceipt(receipt); err != nil {
		slog.Error("Failed to record processing failure", "receipt_id", receipt.ID, "error", err)
	}
	return &Result{ReceiptID: receipt.ID, Status: StatusFailed, Error: cause.Error()}
}

// extract runs every pipeline step for one receipt
func (s *Service) extract(ctx context.Context, receipt *Receipt) (*ExtractedData, error) {
	file, err := s.storage.Get(receipt.StoredFilename)
	if err != nil {
		return nil, fmt.Errorf("reading receipt file: %w", err)
	}

	raw, err := s.pipeline.Text.Extract(ctx, file, receipt.ContentType)
	if err != nil {
		return nil, fmt.Errorf("extracting text: %w", err)
	}

	structured := s.pipeline.Structurer.Extract(ctx, raw)
	category := s.pipeline.Categorizer.Categorize(ctx, structured)

	rule, err := s.pipeline.Rules.Resolve(category)
	if err != nil {
		return nil, fmt.Errorf("resolving tax rule: %w", err)
	}

	structuredJSON, err := json.Marshal(structured)
	if err != nil {
		return nil, fmt.Errorf("marshaling structured data: %w", err)
	}

	data := &ExtractedData{
		ReceiptID:        receipt.ID,
		TransactionDate:  structured.Date,
		VendorName:       structured.VendorName,
		VendorAddress:    structured.VendorAddress,
		InvoiceNumber:    structured.InvoiceNumber,
		DetectedLanguage: structured.DetectedLanguage,
		ExpenseCategory:  category,
		ConfidenceScore:  structured.Confidence,
		RawText:          raw,
		StructuredJSON:   structuredJSON,
		Items:            structured.Items,
		PaymentMethod:    structured.PaymentMethod,
		Notes:            structured.Notes,
		ExtractionSource: structured.Source,
		ExtractedAt:      s.timeSource.Now(),
	}
	if data.Items == nil {
		data.Items = []extraction.Item{}
	}

	if err := s.price(ctx, data, structured.TotalAmount, structured.VATBreakdown, structured.Currency, rule); err != nil {
		return nil, err
	}

	data.ManualReviewRequired = data.ConfidenceScore < s.pipeline.ReviewThreshold ||
		data.TotalInclVAT.IsZero() ||
		data.AmountExclVAT.IsNegative()
	return data, nil
}

// price converts the amounts to EUR when needed and fills in every derived amount
func (s *Service) price(ctx context.Context, data *ExtractedData, total decimal.Decimal, vat tax.VATBreakdown, ccy string, rule tax.Rule) error {
	ccy = strings.ToUpper(strings.TrimSpace(ccy))
	if ccy == "" {
		ccy = baseCurrency
	}

	data.OriginalCurrency = ccy
	data.OriginalTotalAmount = tax.Round(total)
	data.ExchangeRate = decimal.NewFromInt(1)
	data.ExchangeRateDate = nil
	data.ExchangeRateSource = currency.SourceNoConversion

	if ccy != baseCurrency {
		if s.pipeline.Rates == nil {
			return fmt.Errorf("converting %s: no exchange rate source configured", ccy)
		}
		var date time.Time
		if data.TransactionDate != nil {
			date = *data.TransactionDate
		}
		rate, err := s.pipeline.Rates.GetRate(ctx, ccy, baseCurrency, date)
		if err != nil {
			return fmt.Errorf("converting %s: %w", ccy, err)
		}
		rateDate := rate.Date
		data.ExchangeRate = rate.Rate
		data.ExchangeRateDate = &rateDate
		data.ExchangeRateSource = rate.Source
		total = total.Mul(rate.Rate)
		vat = vat.Map(func(d decimal.Decimal) decimal.Decimal { return d.Mul(rate.Rate) })
	}

	data.TotalInclVAT = tax.Round(total)
	data.VATAmountByRate = vat.Map(tax.Round)
	data.AmountExclVAT = data.TotalInclVAT.Sub(data.VATAmountByRate.Total())

	amounts := tax.ComputeAmounts(data.AmountExclVAT, data.VATAmount(), rule)
	data.VATDeductiblePercentage = rule.VATDeductiblePercentage
	data.IBDeductiblePercentage = rule.IBDeductiblePercentage
	data.VATRefundAmount = amounts.VATDeductible
	data.RemainderAfterVAT = amounts.RemainderAfterVAT
	data.ProfitDeduction = amounts.ProfitDeduction
	return nil
}
