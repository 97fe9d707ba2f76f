package currency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// Converter resolves exchange rates through a write-through cache
type Converter struct {
	cache  Cache
	client RateClient
	now    func() time.Time
	group  singleflight.Group
}

// NewConverter creates a Converter using the wall clock
func NewConverter(cache Cache, client RateClient) *Converter {
	return NewConverterWithClock(cache, client, time.Now)
}

// NewConverterWithClock creates a Converter with a custom clock (useful for testing)
func NewConverterWithClock(cache Cache, client RateClient, now func() time.Time) *Converter {
	return &Converter{
		cache:  cache,
		client: client,
		now:    now,
	}
}

// GetRate returns the rate from->to on date. A zero date means today.
func (c *Converter) GetRate(ctx context.Context, from, to string, date time.Time) (Rate, error) {
	from, to = normalizeCode(from), normalizeCode(to)
	today := day(c.now())
	requested := today
	if !date.IsZero() {
		requested = day(date)
	}

	if from == to {
		return Rate{
			From:          from,
			To:            to,
			Rate:          decimal.NewFromInt(1),
			Date:          requested,
			RequestedDate: requested,
			Source:        SourceNoConversion,
		}, nil
	}

	key := Key(from, to, requested)
	if rate, ok := c.cached(key); ok {
		return rate, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if rate, ok := c.cached(key); ok {
			return rate, nil
		}
		return c.fetch(ctx, from, to, requested, !requested.Before(today))
	})
	if err != nil {
		return Rate{}, err
	}
	return v.(Rate), nil
}

// Convert converts amount from->to at the rate for date. The result is not rounded.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to string, date time.Time) (Conversion, error) {
	rate, err := c.GetRate(ctx, from, to, date)
	if err != nil {
		return Conversion{}, err
	}
	return Conversion{
		OriginalAmount:  amount,
		OriginalCcy:     rate.From,
		ConvertedAmount: amount.Mul(rate.Rate),
		ConvertedCcy:    rate.To,
		ExchangeRate:    rate.Rate,
		RateDate:        rate.Date,
		Source:          rate.Source,
	}, nil
}

// EvictOlderThan removes cached rates whose date is more than days before today
func (c *Converter) EvictOlderThan(days int) (int, error) {
	cutoff := day(c.now()).AddDate(0, 0, -days)
	n, err := c.cache.EvictBefore(cutoff)
	if err != nil {
		return 0, err
	}
	slog.Info("evicted cached exchange rates", "count", n, "cutoff", cutoff.Format(dateLayout))
	return n, nil
}

func (c *Converter) cached(key string) (Rate, bool) {
	entry, ok, err := c.cache.Get(key)
	if err != nil {
		slog.Warn("reading rate cache", "key", key, "error", err)
		return Rate{}, false
	}
	if !ok {
		return Rate{}, false
	}
	rate, err := entry.toRate()
	if err != nil {
		slog.Warn("decoding cached rate", "key", key, "error", err)
		return Rate{}, false
	}
	return rate, true
}

func (c *Converter) fetch(ctx context.Context, from, to string, requested time.Time, latest bool) (Rate, error) {
	quote, err := c.client.Fetch(ctx, from, to, requested, latest)
	if err != nil {
		slog.Warn("exchange rate lookup failed, trying cache fallback", "from", from, "to", to, "date", requested.Format(dateLayout), "error", err)
		if rate, ok := c.fallback(from, to, requested); ok {
			return rate, nil
		}
		if !errors.Is(err, ErrRateLookup) {
			err = fmt.Errorf("%w: %w", ErrRateLookup, err)
		}
		return Rate{}, fmt.Errorf("%w: %s to %s on %s: %w", ErrConversionFailed, from, to, requested.Format(dateLayout), err)
	}

	entry := Entry{
		From:          from,
		To:            to,
		Rate:          quote.Rate,
		Date:          day(quote.Date).Format(dateLayout),
		RequestedDate: requested.Format(dateLayout),
		Source:        SourceFrankfurter,
		RawResponse:   quote.Raw,
	}
	if err := c.cache.Put(entry); err != nil {
		slog.Warn("writing rate cache", "key", Key(from, to, requested), "error", err)
	}

	return Rate{
		From:          from,
		To:            to,
		Rate:          quote.Rate,
		Date:          day(quote.Date),
		RequestedDate: requested,
		Source:        SourceFrankfurter,
	}, nil
}

// fallback looks for the most recent cached rate within FallbackWindowDays before requested
func (c *Converter) fallback(from, to string, requested time.Time) (Rate, bool) {
	for i := 1; i <= FallbackWindowDays; i++ {
		rate, ok := c.cached(Key(from, to, requested.AddDate(0, 0, -i)))
		if !ok {
			continue
		}
		rate.RequestedDate = requested
		rate.Source = SourceCacheFallback
		slog.Info("using cached fallback rate", "from", from, "to", to, "requested", requested.Format(dateLayout), "rate_date", rate.Date.Format(dateLayout))
		return rate, true
	}
	return Rate{}, false
}
