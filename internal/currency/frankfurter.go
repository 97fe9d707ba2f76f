package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultFrankfurterURL is the public Frankfurter API
const DefaultFrankfurterURL = "https://api.frankfurter.app"

// Quote is a rate returned by a RateClient
type Quote struct {
	Rate decimal.Decimal
	Date time.Time // date the provider says the rate is valid for
	Raw  json.RawMessage
}

// RateClient looks up exchange rates from an external provider
type RateClient interface {
	// Fetch returns the rate from->to on date, or the latest rate when latest is set.
	// Failures wrap ErrRateLookup.
	Fetch(ctx context.Context, from, to string, date time.Time, latest bool) (Quote, error)
}

// Frankfurter implements RateClient against the Frankfurter API
type Frankfurter struct {
	baseURL string
	client  *http.Client
}

// NewFrankfurter creates a Frankfurter client
func NewFrankfurter(baseURL string, timeout time.Duration) *Frankfurter {
	if baseURL == "" {
		baseURL = DefaultFrankfurterURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Frankfurter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type frankfurterResponse struct {
	Amount float64                    `json:"amount"`
	Base   string                     `json:"base"`
	Date   string                     `json:"date"`
	Rates  map[string]decimal.Decimal `json:"rates"`
}

// Fetch retrieves a rate from Frankfurter
func (f *Frankfurter) Fetch(ctx context.Context, from, to string, date time.Time, latest bool) (Quote, error) {
	path := "latest"
	if !latest {
		path = date.Format(dateLayout)
	}
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	endpoint := fmt.Sprintf("%s/%s?%s", f.baseURL, path, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: creating request: %w", ErrRateLookup, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: calling frankfurter: %w", ErrRateLookup, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: reading response: %w", ErrRateLookup, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("%w: frankfurter error (status %d): %s", ErrRateLookup, resp.StatusCode, string(body))
	}

	var fr frankfurterResponse
	if err := json.Unmarshal(body, &fr); err != nil {
		return Quote{}, fmt.Errorf("%w: decoding response: %w", ErrRateLookup, err)
	}

	rate, ok := fr.Rates[to]
	if !ok || !rate.IsPositive() {
		return Quote{}, fmt.Errorf("%w: no %s rate in response", ErrRateLookup, to)
	}

	effective := date
	if fr.Date != "" {
		if d, err := time.Parse(dateLayout, fr.Date); err == nil {
			effective = d
		}
	}

	return Quote{Rate: rate, Date: effective, Raw: body}, nil
}
