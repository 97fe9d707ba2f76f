package currency

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

// memoryCache is an in-memory Cache
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]Entry)}
}

func (m *memoryCache) Get(key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *memoryCache) Put(e Entry) error {
	key, err := entryKey(e)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok {
		m.entries[key] = e
	}
	return nil
}

func (m *memoryCache) EvictBefore(cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.entries {
		d, _ := time.Parse(dateLayout, e.Date)
		if d.Before(cutoff) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func (m *memoryCache) Close() error { return nil }

// mockRateClient is a mock implementation of RateClient
type mockRateClient struct {
	mu         sync.Mutex
	rate       decimal.Decimal
	err        error
	calls      int
	lastLatest bool
}

func (m *mockRateClient) Fetch(_ context.Context, _, _ string, date time.Time, latest bool) (Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastLatest = latest
	if m.err != nil {
		return Quote{}, m.err
	}
	return Quote{Rate: m.rate, Date: date}, nil
}

var _ = ginkgo.Describe("Converter", func() {
	var (
		cache     *memoryCache
		client    *mockRateClient
		converter *Converter
		today     time.Time
		ctx       context.Context
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		today = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
		cache = newMemoryCache()
		client = &mockRateClient{rate: decimal.RequireFromString("0.92")}
		converter = NewConverterWithClock(cache, client, func() time.Time { return today.Add(14 * time.Hour) })
	})

	ginkgo.Describe("GetRate", func() {
		ginkgo.When("both currencies are the same", func() {
			ginkgo.It("returns 1 without touching the cache or client", func() {
				rate, err := converter.GetRate(ctx, "eur", "EUR", today)
				Expect(err).NotTo(HaveOccurred())
				Expect(rate.Rate.Equal(decimal.NewFromInt(1))).To(BeTrue())
				Expect(rate.Source).To(Equal(SourceNoConversion))
				Expect(client.calls).To(Equal(0))
				Expect(cache.entries).To(BeEmpty())
			})
		})

		ginkgo.When("the rate is not cached", func() {
			ginkgo.It("fetches and writes through to the cache", func() {
				date := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
				rate, err := converter.GetRate(ctx, "USD", "EUR", date)
				Expect(err).NotTo(HaveOccurred())
				Expect(rate.Rate.String()).To(Equal("0.92"))
				Expect(rate.Source).To(Equal(SourceFrankfurter))
				Expect(client.lastLatest).To(BeFalse())
				Expect(cache.entries).To(HaveKey("USD_EUR_2025-01-15"))
			})

			ginkgo.It("asks for the latest rate when the date is today", func() {
				_, err := converter.GetRate(ctx, "USD", "EUR", today)
				Expect(err).NotTo(HaveOccurred())
				Expect(client.lastLatest).To(BeTrue())
			})

			ginkgo.It("treats a zero date as today", func() {
				rate, err := converter.GetRate(ctx, "USD", "EUR", time.Time{})
				Expect(err).NotTo(HaveOccurred())
				Expect(rate.RequestedDate).To(Equal(today))
			})
		})

		ginkgo.When("the rate is cached", func() {
			ginkgo.It("does not call the client again", func() {
				date := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
				_, err := converter.GetRate(ctx, "USD", "EUR", date)
				Expect(err).NotTo(HaveOccurred())
				client.rate = decimal.RequireFromString("0.5")

				rate, err := converter.GetRate(ctx, "USD", "EUR", date)
				Expect(err).NotTo(HaveOccurred())
				Expect(rate.Rate.String()).To(Equal("0.92"))
				Expect(client.calls).To(Equal(1))
			})
		})

		ginkgo.When("the lookup fails", func() {
			ginkgo.BeforeEach(func() {
				client.err = errors.New("connection refused")
			})

			ginkgo.It("falls back to the most recent rate within 30 days", func() {
				Expect(cache.Put(Entry{From: "USD", To: "EUR", Rate: decimal.RequireFromString("0.91"), Date: "2025-03-01", RequestedDate: "2025-03-01", Source: SourceFrankfurter})).To(Succeed())
				Expect(cache.Put(Entry{From: "USD", To: "EUR", Rate: decimal.RequireFromString("0.93"), Date: "2025-03-05", RequestedDate: "2025-03-05", Source: SourceFrankfurter})).To(Succeed())

				rate, err := converter.GetRate(ctx, "USD", "EUR", time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC))
				Expect(err).NotTo(HaveOccurred())
				Expect(rate.Rate.String()).To(Equal("0.93"))
				Expect(rate.Source).To(Equal(SourceCacheFallback))
				Expect(rate.RequestedDate).To(Equal(time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)))
			})

			ginkgo.It("ignores rates older than the fallback window", func() {
				Expect(cache.Put(Entry{From: "USD", To: "EUR", Rate: decimal.RequireFromString("0.91"), Date: "2025-01-01", RequestedDate: "2025-01-01", Source: SourceFrankfurter})).To(Succeed())

				_, err := converter.GetRate(ctx, "USD", "EUR", time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC))
				Expect(errors.Is(err, ErrConversionFailed)).To(BeTrue())
				Expect(errors.Is(err, ErrRateLookup)).To(BeTrue())
			})
		})
	})

	ginkgo.Describe("Convert", func() {
		ginkgo.It("multiplies without rounding", func() {
			conv, err := converter.Convert(ctx, decimal.RequireFromString("10.005"), "USD", "EUR", time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.ConvertedAmount.String()).To(Equal("9.2046"))
			Expect(conv.ExchangeRate.String()).To(Equal("0.92"))
			Expect(conv.ConvertedCcy).To(Equal("EUR"))
		})
	})

	ginkgo.Describe("EvictOlderThan", func() {
		ginkgo.It("drops entries past the retention window", func() {
			Expect(cache.Put(Entry{From: "USD", To: "EUR", Rate: decimal.RequireFromString("0.9"), Date: "2024-11-01", RequestedDate: "2024-11-01"})).To(Succeed())
			Expect(cache.Put(Entry{From: "USD", To: "EUR", Rate: decimal.RequireFromString("0.9"), Date: "2025-03-01", RequestedDate: "2025-03-01"})).To(Succeed())

			n, err := converter.EvictOlderThan(90)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
			Expect(cache.entries).To(HaveKey("USD_EUR_2025-03-01"))
		})
	})
})
