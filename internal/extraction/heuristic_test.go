package extraction

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Heuristic", func() {
	When("given the single-line supermarket receipt", func() {
		var s *Structured

		BeforeEach(func() {
			s = Heuristic("Albert Heijn ... Totaal € 21.00, BTW 9% € 1.73")
		})

		It("finds the vendor", func() {
			Expect(s.VendorName).To(Equal("Albert Heijn"))
		})

		It("finds the total", func() {
			Expect(s.TotalAmount.String()).To(Equal("21"))
		})

		It("buckets the VAT at 9%", func() {
			Expect(s.VATBreakdown.Rate9.String()).To(Equal("1.73"))
			Expect(s.TotalVAT.String()).To(Equal("1.73"))
		})

		It("keeps confidence at or below 0.5", func() {
			Expect(s.Confidence).To(BeNumerically("<=", 0.5))
			Expect(s.Source).To(Equal(SourceHeuristic))
		})
	})

	When("given a multi-line Dutch receipt", func() {
		var s *Structured

		BeforeEach(func() {
			s = Heuristic(`JUMBO SUPERMARKTEN
Datum: 14-03-2025
Bonnr: 4471
Subtotaal 8,26
BTW 9% 0,74
Totaal EUR 9,00
Pinnen 9,00`)
		})

		It("reads all fields", func() {
			Expect(s.VendorName).To(Equal("JUMBO SUPERMARKTEN"))
			Expect(*s.Date).To(Equal(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)))
			Expect(s.TotalAmount.String()).To(Equal("9"))
			Expect(s.VATBreakdown.Rate9.String()).To(Equal("0.74"))
			Expect(s.DetectedLanguage).To(Equal("nl"))
			Expect(s.Currency).To(Equal("EUR"))
			Expect(s.InvoiceNumber).To(Equal("4471"))
			Expect(s.Confidence).To(Equal(0.5))
		})

		It("does not read the subtotal as the total", func() {
			Expect(s.TotalAmount.String()).NotTo(Equal("8.26"))
		})
	})

	When("given text with nothing recognisable", func() {
		It("returns an empty best-effort record", func() {
			s := Heuristic("")
			Expect(s.VendorName).To(BeEmpty())
			Expect(s.Date).To(BeNil())
			Expect(s.TotalAmount.IsZero()).To(BeTrue())
			Expect(s.Confidence).To(Equal(0.1))
			Expect(s.Items).NotTo(BeNil())
		})
	})
})

var _ = Describe("parseAmount", func() {
	DescribeTable("reads both notations",
		func(in, want string) {
			got, ok := parseAmount(in)
			Expect(ok).To(BeTrue())
			Expect(got.String()).To(Equal(want))
		},
		Entry("euro sign and comma", "€ 21,00", "21"),
		Entry("dutch thousands", "1.234,56", "1234.56"),
		Entry("english thousands", "1,234.56", "1234.56"),
		Entry("plain", "17.35", "17.35"),
		Entry("comma thousands only", "1,234", "1234"),
		Entry("negative", "-3,50", "-3.5"),
	)

	It("rejects text without digits", func() {
		_, ok := parseAmount("n/a")
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("parseDate", func() {
	DescribeTable("normalises to a UTC day",
		func(in string, y int, m time.Month, d int) {
			got := parseDate(in)
			Expect(got).NotTo(BeNil())
			Expect(*got).To(Equal(time.Date(y, m, d, 0, 0, 0, 0, time.UTC)))
		},
		Entry("iso", "2025-01-15", 2025, time.January, 15),
		Entry("day first", "15-01-2025", 2025, time.January, 15),
		Entry("slashes", "5/3/2025", 2025, time.March, 5),
		Entry("two digit year", "15-01-25", 2025, time.January, 15),
		Entry("dutch month", "3 maart 2025", 2025, time.March, 3),
		Entry("english month", "3 March 2025", 2025, time.March, 3),
		Entry("timestamp", "2025-01-15T10:30:00Z", 2025, time.January, 15),
	)

	It("returns nil for garbage", func() {
		Expect(parseDate("31-02-2025")).To(BeNil())
		Expect(parseDate("soon")).To(BeNil())
		Expect(parseDate("")).To(BeNil())
	})
})
