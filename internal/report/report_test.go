package report

import (
	"bytes"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/zombor/btw-tracker/internal/receipt"
	"github.com/zombor/btw-tracker/internal/tax"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func ledger() []*receipt.ExtractedData {
	return []*receipt.ExtractedData{
		{
			ReceiptID:       "ah",
			TransactionDate: date(2025, time.January, 15),
			VendorName:      "Albert Heijn",
			ExpenseCategory: tax.RepresentationSupermarket,
			AmountExclVAT:   dec("19.27"),
			VATAmountByRate: tax.VATBreakdown{Rate9: dec("1.73")},
			TotalInclVAT:    dec("21.00"),
			VATRefundAmount: dec("0"),
			ProfitDeduction: dec("15.42"),
		},
		{
			ReceiptID:       "bol",
			TransactionDate: date(2025, time.February, 3),
			VendorName:      "Bol.com",
			ExpenseCategory: tax.OfficeCosts,
			AmountExclVAT:   dec("100.00"),
			VATAmountByRate: tax.VATBreakdown{Rate21: dec("21.00")},
			TotalInclVAT:    dec("121.00"),
			VATRefundAmount: dec("21.00"),
			ProfitDeduction: dec("100.00"),
		},
		{
			ReceiptID:       "ns",
			TransactionDate: date(2025, time.April, 10),
			VendorName:      "NS",
			ExpenseCategory: tax.TransportCosts,
			AmountExclVAT:   dec("50.00"),
			VATAmountByRate: tax.VATBreakdown{Rate21: dec("10.50")},
			TotalInclVAT:    dec("60.50"),
			VATRefundAmount: dec("10.50"),
			ProfitDeduction: dec("50.00"),
		},
		{
			ReceiptID:       "undated",
			VendorName:      "Unknown",
			ExpenseCategory: tax.OfficeCosts,
			AmountExclVAT:   dec("10.00"),
			TotalInclVAT:    dec("10.00"),
		},
		{
			ReceiptID:       "last-year",
			TransactionDate: date(2024, time.December, 31),
			VendorName:      "Coolblue",
			ExpenseCategory: tax.OfficeCosts,
			AmountExclVAT:   dec("200.00"),
			VATAmountByRate: tax.VATBreakdown{Rate21: dec("42.00")},
			TotalInclVAT:    dec("242.00"),
			VATRefundAmount: dec("42.00"),
			ProfitDeduction: dec("200.00"),
		},
	}
}

func asJSON(v any) string {
	b, err := json.Marshal(v)
	Expect(err).NotTo(HaveOccurred())
	return string(b)
}

func reversed(in []*receipt.ExtractedData) []*receipt.ExtractedData {
	out := make([]*receipt.ExtractedData, len(in))
	for i, d := range in {
		out[len(in)-1-i] = d
	}
	return out
}

var _ = Describe("QuarterlyVAT", func() {
	var (
		records []*receipt.ExtractedData
		quarter int
		decl    VATDeclaration
		err     error
	)

	BeforeEach(func() {
		records = ledger()
		quarter = 1
	})

	JustBeforeEach(func() {
		decl, err = QuarterlyVAT(records, 2025, quarter)
	})

	It("only counts records dated in the quarter", func() {
		Expect(err).NotTo(HaveOccurred())
		Expect(decl.ReceiptCount).To(Equal(2))
		Expect(decl.From).To(Equal(*date(2025, time.January, 1)))
		Expect(decl.To).To(Equal(*date(2025, time.April, 1)))
	})

	It("buckets the VAT by rate", func() {
		Expect(decl.VATOnPurchases.Rate9.StringFixed(2)).To(Equal("1.73"))
		Expect(decl.VATOnPurchases.Rate21.StringFixed(2)).To(Equal("21.00"))
		Expect(decl.VATOnPurchasesTotal.StringFixed(2)).To(Equal("22.73"))
		Expect(decl.TotalPurchases.StringFixed(2)).To(Equal("119.27"))
	})

	It("splits deductible and non-deductible VAT", func() {
		Expect(decl.DeductibleVAT.StringFixed(2)).To(Equal("21.00"))
		Expect(decl.NonDeductibleVAT.StringFixed(2)).To(Equal("1.73"))
	})

	It("reports a refundable balance", func() {
		Expect(decl.VATOnSales.IsZero()).To(BeTrue())
		Expect(decl.Balance.StringFixed(2)).To(Equal("-21.00"))
	})

	It("does not depend on record order", func() {
		again, err := QuarterlyVAT(reversed(records), 2025, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(asJSON(again)).To(MatchJSON(asJSON(decl)))
	})

	When("the quarter is out of range", func() {
		BeforeEach(func() {
			quarter = 5
		})

		It("returns ErrInvalidPeriod", func() {
			Expect(err).To(MatchError(ErrInvalidPeriod))
		})
	})
})

var _ = Describe("Summarize", func() {
	var (
		records []*receipt.ExtractedData
		summary AnnualSummary
		err     error
	)

	BeforeEach(func() {
		records = ledger()
	})

	JustBeforeEach(func() {
		summary, err = Summarize(records, 2025)
	})

	It("totals the dated records of the year", func() {
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.ReceiptCount).To(Equal(3))
		Expect(summary.TotalExpenses.StringFixed(2)).To(Equal("202.50"))
		Expect(summary.TotalVATPaid.StringFixed(2)).To(Equal("33.23"))
		Expect(summary.TotalVATRefunded.StringFixed(2)).To(Equal("31.50"))
		Expect(summary.DeductibleExpenses.StringFixed(2)).To(Equal("165.42"))
		Expect(summary.NonDeductibleExpenses.StringFixed(2)).To(Equal("3.85"))
	})

	It("breaks the year down per category", func() {
		Expect(summary.ByCategory).To(HaveLen(3))
		office := summary.ByCategory[tax.OfficeCosts]
		Expect(office.Count).To(Equal(1))
		Expect(office.Total.StringFixed(2)).To(Equal("121.00"))
		Expect(office.Deductible.StringFixed(2)).To(Equal("100.00"))
	})

	It("breaks the year down per month", func() {
		Expect(summary.ByMonth).To(HaveKey("2025-01"))
		Expect(summary.ByMonth).To(HaveKey("2025-02"))
		Expect(summary.ByMonth).To(HaveKey("2025-04"))
		Expect(summary.ByMonth).To(HaveLen(3))
		Expect(summary.ByMonth["2025-04"].VAT.StringFixed(2)).To(Equal("10.50"))
	})

	When("a date carries a time zone offset", func() {
		BeforeEach(func() {
			amsterdam := time.FixedZone("CET", 3600)
			// 2025-02-01 00:30 in Amsterdam is still January in UTC
			early := time.Date(2025, time.February, 1, 0, 30, 0, 0, amsterdam)
			// 2026-01-01 00:30 in Amsterdam is still 2025 in UTC
			newYear := time.Date(2026, time.January, 1, 0, 30, 0, 0, amsterdam)
			records = []*receipt.ExtractedData{
				{ReceiptID: "early", TransactionDate: &early, ExpenseCategory: tax.OfficeCosts, AmountExclVAT: dec("10.00"), TotalInclVAT: dec("10.00")},
				{ReceiptID: "new-year", TransactionDate: &newYear, ExpenseCategory: tax.OfficeCosts, AmountExclVAT: dec("5.00"), TotalInclVAT: dec("5.00")},
			}
		})

		It("buckets the record under the same UTC month it was filtered by", func() {
			Expect(summary.ReceiptCount).To(Equal(2))
			Expect(summary.ByMonth).To(HaveLen(2))
			Expect(summary.ByMonth).To(HaveKey("2025-01"))
			Expect(summary.ByMonth).To(HaveKey("2025-12"))
			Expect(summary.ByMonth["2025-01"].Count).To(Equal(1))
		})
	})

	It("does not depend on record order", func() {
		again, err := Summarize(reversed(records), 2025)
		Expect(err).NotTo(HaveOccurred())
		Expect(asJSON(again)).To(MatchJSON(asJSON(summary)))
	})

	When("there are no records", func() {
		BeforeEach(func() {
			records = nil
		})

		It("returns zero totals and empty breakdowns", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.ReceiptCount).To(BeZero())
			Expect(summary.TotalExpenses.IsZero()).To(BeTrue())
			Expect(summary.TotalVATPaid.IsZero()).To(BeTrue())
			Expect(summary.NonDeductibleExpenses.IsZero()).To(BeTrue())
			Expect(summary.ByCategory).NotTo(BeNil())
			Expect(summary.ByCategory).To(BeEmpty())
			Expect(summary.ByMonth).NotTo(BeNil())
			Expect(summary.ByMonth).To(BeEmpty())
		})
	})
})

var _ = Describe("Workbook", func() {
	var (
		records []*receipt.ExtractedData
		file    *excelize.File
	)

	BeforeEach(func() {
		records = ledger()
	})

	JustBeforeEach(func() {
		data, err := Workbook(records, 2025)
		Expect(err).NotTo(HaveOccurred())

		file, err = excelize.OpenReader(bytes.NewReader(data))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(file.Close)
	})

	It("has the three sheets", func() {
		Expect(file.GetSheetList()).To(Equal([]string{SheetReceipts, SheetSummary, SheetVAT}))
	})

	It("lists the year's receipts by date", func() {
		rows, err := file.GetRows(SheetReceipts)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(4))
		Expect(rows[0][2]).To(Equal("Winkel/Leverancier"))
		Expect(rows[1][2]).To(Equal("Albert Heijn"))
		Expect(rows[3][2]).To(Equal("NS"))
	})

	It("writes the VAT declaration per quarter", func() {
		code, err := file.GetCellValue(SheetVAT, "A11")
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal("5b"))
	})

	When("there are no records", func() {
		BeforeEach(func() {
			records = nil
		})

		It("writes only the header row", func() {
			rows, err := file.GetRows(SheetReceipts)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(1))
		})
	})
})
