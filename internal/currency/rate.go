package currency

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Rate sources
const (
	SourceNoConversion  = "no_conversion"
	SourceFrankfurter   = "frankfurter"
	SourceCacheFallback = "cache_fallback"
)

// FallbackWindowDays is how far back GetRate looks for a cached rate when the lookup fails
const FallbackWindowDays = 30

var (
	// ErrRateLookup is returned by a RateClient when the external lookup fails
	ErrRateLookup = errors.New("rate lookup failed")

	// ErrConversionFailed is returned when neither the lookup nor the cache fallback produced a rate
	ErrConversionFailed = errors.New("conversion failed")
)

// Rate is a resolved exchange rate
type Rate struct {
	From          string          `json:"from_currency"`
	To            string          `json:"to_currency"`
	Rate          decimal.Decimal `json:"rate"`
	Date          time.Time       `json:"date"`           // date the rate is valid for
	RequestedDate time.Time       `json:"requested_date"` // date the caller asked for
	Source        string          `json:"source"`
}

// Conversion is the result of converting an amount
type Conversion struct {
	OriginalAmount  decimal.Decimal `json:"original_amount"`
	OriginalCcy     string          `json:"original_currency"`
	ConvertedAmount decimal.Decimal `json:"converted_amount"`
	ConvertedCcy    string          `json:"converted_currency"`
	ExchangeRate    decimal.Decimal `json:"exchange_rate"`
	RateDate        time.Time       `json:"exchange_rate_date"`
	Source          string          `json:"source"`
}

// Entry is the persisted form of a cached rate
type Entry struct {
	From          string          `json:"from_currency"`
	To            string          `json:"to_currency"`
	Rate          decimal.Decimal `json:"rate"`
	Date          string          `json:"date"`
	RequestedDate string          `json:"requested_date"`
	Source        string          `json:"source"`
	RawResponse   json.RawMessage `json:"raw_response,omitempty"`
}

// Key builds the cache key for a currency pair on a day, e.g. "USD_EUR_2025-01-15"
func Key(from, to string, day time.Time) string {
	return fmt.Sprintf("%s_%s_%s", from, to, day.Format(dateLayout))
}

func (e Entry) toRate() (Rate, error) {
	date, err := time.Parse(dateLayout, e.Date)
	if err != nil {
		return Rate{}, fmt.Errorf("parsing cached rate date %q: %w", e.Date, err)
	}
	requested := date
	if e.RequestedDate != "" {
		if r, err := time.Parse(dateLayout, e.RequestedDate); err == nil {
			requested = r
		}
	}
	return Rate{
		From:          e.From,
		To:            e.To,
		Rate:          e.Rate,
		Date:          date,
		RequestedDate: requested,
		Source:        e.Source,
	}, nil
}

// normalizeCode upper-cases and trims an ISO 4217 code
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// day truncates t to midnight UTC of its calendar date
func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
