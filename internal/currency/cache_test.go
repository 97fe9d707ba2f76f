package currency

import (
	"path/filepath"
	"time"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = ginkgo.Describe("BoltCache", func() {
	var cache *BoltCache

	ginkgo.BeforeEach(func() {
		var err error
		cache, err = NewBoltCache(filepath.Join(ginkgo.GinkgoT().TempDir(), "rates.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	ginkgo.AfterEach(func() {
		if cache != nil {
			cache.Close()
		}
	})

	entry := func(date, requested string, rate string) Entry {
		return Entry{
			From:          "USD",
			To:            "EUR",
			Rate:          decimal.RequireFromString(rate),
			Date:          date,
			RequestedDate: requested,
			Source:        SourceFrankfurter,
		}
	}

	ginkgo.Describe("Put and Get", func() {
		ginkgo.It("stores entries under the requested date", func() {
			Expect(cache.Put(entry("2025-01-10", "2025-01-12", "0.92"))).To(Succeed())

			got, ok, err := cache.Get("USD_EUR_2025-01-12")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(got.Rate.String()).To(Equal("0.92"))
			Expect(got.Date).To(Equal("2025-01-10"))
		})

		ginkgo.It("reports a miss", func() {
			_, ok, err := cache.Get("USD_EUR_2025-01-12")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		ginkgo.It("never overwrites an existing entry", func() {
			Expect(cache.Put(entry("2025-01-12", "2025-01-12", "0.92"))).To(Succeed())
			Expect(cache.Put(entry("2025-01-12", "2025-01-12", "0.99"))).To(Succeed())

			got, _, err := cache.Get("USD_EUR_2025-01-12")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Rate.String()).To(Equal("0.92"))
		})

		ginkgo.It("rejects an entry without a requested date", func() {
			Expect(cache.Put(entry("2025-01-12", "", "0.92"))).NotTo(Succeed())
		})
	})

	ginkgo.Describe("EvictBefore", func() {
		ginkgo.BeforeEach(func() {
			Expect(cache.Put(entry("2024-10-01", "2024-10-01", "0.90"))).To(Succeed())
			Expect(cache.Put(entry("2025-01-01", "2025-01-01", "0.91"))).To(Succeed())
			Expect(cache.Put(entry("2025-02-01", "2025-02-01", "0.93"))).To(Succeed())
		})

		ginkgo.It("removes only entries older than the cutoff", func() {
			n, err := cache.EvictBefore(time.Date(2025, 1, 1, 15, 0, 0, 0, time.UTC))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))

			_, ok, _ := cache.Get("USD_EUR_2024-10-01")
			Expect(ok).To(BeFalse())
			_, ok, _ = cache.Get("USD_EUR_2025-01-01")
			Expect(ok).To(BeTrue())
		})
	})
})
