package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/zombor/btw-tracker/internal/scanning"
)

// StructuredExtractor turns raw receipt text into a Structured record
type StructuredExtractor struct {
	gen scanning.Generator
}

// NewStructuredExtractor creates a StructuredExtractor. A nil generator means
// every record comes from the heuristic.
func NewStructuredExtractor(gen scanning.Generator) *StructuredExtractor {
	return &StructuredExtractor{gen: gen}
}

// Extract never fails: when the model is unavailable or answers with something
// unusable, the heuristic record is returned instead.
func (e *StructuredExtractor) Extract(ctx context.Context, raw string) *Structured {
	if e.gen == nil {
		return Heuristic(raw)
	}

	resp, err := e.gen.Generate(ctx, structuredPrompt(raw))
	if err != nil {
		slog.Warn("structured extraction call failed, using heuristic", "error", fmt.Errorf("%w: %w", ErrStructuredParse, err))
		return Heuristic(raw)
	}

	s, err := ParseResponse(resp)
	if err != nil {
		slog.Warn("structured extraction response unusable, using heuristic", "error", err)
		return Heuristic(raw)
	}
	return s
}

// ParseResponse reads the first JSON object in a model response and validates it
func ParseResponse(resp string) (*Structured, error) {
	obj, ok := firstJSONObject(resp)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrStructuredParse)
	}

	dec := json.NewDecoder(bytes.NewReader(obj))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStructuredParse, err)
	}
	if err := compiledResponseSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStructuredParse, err)
	}

	var r llmResponse
	if err := json.Unmarshal(obj, &r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStructuredParse, err)
	}
	return r.normalize(), nil
}

// firstJSONObject returns the first well-formed JSON object embedded in text,
// ignoring markdown fences and surrounding prose
func firstJSONObject(s string) ([]byte, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(s[i:]))
		var m map[string]json.RawMessage
		if err := dec.Decode(&m); err == nil {
			return []byte(s[i : i+int(dec.InputOffset())]), true
		}
	}
	return nil, false
}

// flexText accepts JSON strings, numbers, and null
type flexText string

func (t *flexText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case string(data) == "null":
		*t = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = flexText(strings.TrimSpace(s))
	default:
		*t = flexText(data)
	}
	return nil
}

type llmItem struct {
	Description flexText `json:"description"`
	Quantity    amount   `json:"quantity"`
	UnitPrice   amount   `json:"unit_price"`
	TotalPrice  amount   `json:"total_price"`
	VATRate     amount   `json:"vat_rate"`
}

type llmResponse struct {
	VendorName       flexText          `json:"vendor_name"`
	VendorAddress    flexText          `json:"vendor_address"`
	Date             flexText          `json:"date"`
	InvoiceNumber    flexText          `json:"invoice_number"`
	Items            []llmItem         `json:"items"`
	Subtotal         amount            `json:"subtotal"`
	VATBreakdown     map[string]amount `json:"vat_breakdown"`
	TotalVAT         amount            `json:"total_vat"`
	TotalAmount      amount            `json:"total_amount"`
	Currency         flexText          `json:"currency"`
	PaymentMethod    flexText          `json:"payment_method"`
	Confidence       *amount           `json:"confidence"`
	DetectedLanguage flexText          `json:"detected_language"`
	Notes            flexText          `json:"notes"`
}

func (r llmResponse) normalize() *Structured {
	s := &Structured{
		VendorName:       string(r.VendorName),
		VendorAddress:    string(r.VendorAddress),
		Date:             parseDate(string(r.Date)),
		InvoiceNumber:    string(r.InvoiceNumber),
		Subtotal:         r.Subtotal.Decimal,
		TotalAmount:      r.TotalAmount.Decimal,
		Currency:         normalizeCurrency(string(r.Currency)),
		PaymentMethod:    string(r.PaymentMethod),
		Confidence:       DefaultConfidence,
		DetectedLanguage: string(r.DetectedLanguage),
		Notes:            string(r.Notes),
		Source:           SourceLLM,
		Items:            []Item{},
	}
	if r.Date != "" && s.Date == nil {
		slog.Debug("dropping unparseable date", "date", string(r.Date))
	}

	for key, v := range r.VATBreakdown {
		rate, err := strconv.Atoi(strings.Trim(key, "% btwvatBTWVAT_ "))
		if err != nil || !s.VATBreakdown.Set(rate, v.Decimal) {
			slog.Debug("ignoring unknown VAT bucket", "key", key)
		}
	}
	s.TotalVAT = s.VATBreakdown.Total()
	if s.TotalVAT.IsZero() && r.TotalVAT.IsPositive() {
		s.Notes = strings.TrimSpace(s.Notes + " VAT total " + r.TotalVAT.StringFixed(2) + " reported without a rate breakdown.")
	}

	for _, it := range r.Items {
		s.Items = append(s.Items, Item{
			Description: string(it.Description),
			Quantity:    it.Quantity.Decimal,
			UnitPrice:   it.UnitPrice.Decimal,
			TotalPrice:  it.TotalPrice.Decimal,
			VATRate:     int(it.VATRate.IntPart()),
		})
	}

	if r.Confidence != nil {
		c, _ := r.Confidence.Float64()
		s.Confidence = clamp(c)
	}
	return s
}

func normalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	switch code {
	case "", "€":
		return DefaultCurrency
	case "$":
		return "USD"
	case "£":
		return "GBP"
	}
	return code
}

func clamp(c float64) float64 {
	if math.IsNaN(c) {
		return 0
	}
	return math.Max(0, math.Min(1, c))
}
