package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/btw-tracker/internal/receipt"
	"github.com/zombor/btw-tracker/internal/tax"
)

// ErrInvalidPeriod is returned for a quarter outside 1-4 or a year outside a sane range
var ErrInvalidPeriod = errors.New("invalid reporting period")

const monthLayout = "2006-01"

// VATDeclaration is the quarterly VAT return for an expenses-only ledger
type VATDeclaration struct {
	Year         int       `json:"year"`
	Quarter      int       `json:"quarter"`
	From         time.Time `json:"from"`
	To           time.Time `json:"to"` // exclusive
	ReceiptCount int       `json:"receipt_count"`

	TotalSales decimal.Decimal `json:"total_sales"`
	VATOnSales decimal.Decimal `json:"vat_on_sales"`

	TotalPurchases      decimal.Decimal  `json:"total_purchases"`
	VATOnPurchases      tax.VATBreakdown `json:"vat_on_purchases"`
	VATOnPurchasesTotal decimal.Decimal  `json:"vat_on_purchases_total"`
	DeductibleVAT       decimal.Decimal  `json:"deductible_vat"`
	NonDeductibleVAT    decimal.Decimal  `json:"non_deductible_vat"`

	// Balance is VAT to pay; negative means a refund
	Balance decimal.Decimal `json:"balance"`
}

// Totals is one row of a breakdown
type Totals struct {
	Count         int             `json:"count"`
	AmountExclVAT decimal.Decimal `json:"amount_excl_vat"`
	VAT           decimal.Decimal `json:"vat"`
	Total         decimal.Decimal `json:"total"`
	Deductible    decimal.Decimal `json:"deductible"`
}

func (t Totals) add(d *receipt.ExtractedData) Totals {
	return Totals{
		Count:         t.Count + 1,
		AmountExclVAT: t.AmountExclVAT.Add(d.AmountExclVAT),
		VAT:           t.VAT.Add(d.VATAmount()),
		Total:         t.Total.Add(d.AmountExclVAT).Add(d.VATAmount()),
		Deductible:    t.Deductible.Add(d.ProfitDeduction),
	}
}

func (t Totals) rounded() Totals {
	return Totals{
		Count:         t.Count,
		AmountExclVAT: tax.Round(t.AmountExclVAT),
		VAT:           tax.Round(t.VAT),
		Total:         tax.Round(t.Total),
		Deductible:    tax.Round(t.Deductible),
	}
}

// AnnualSummary is the income tax overview of one year
type AnnualSummary struct {
	Year         int `json:"year"`
	ReceiptCount int `json:"receipt_count"`

	TotalExpenses         decimal.Decimal `json:"total_expenses"`
	TotalVATPaid          decimal.Decimal `json:"total_vat_paid"`
	TotalVATRefunded      decimal.Decimal `json:"total_vat_refunded"`
	DeductibleExpenses    decimal.Decimal `json:"deductible_expenses"`
	NonDeductibleExpenses decimal.Decimal `json:"non_deductible_expenses"`

	ByCategory map[tax.Category]Totals `json:"by_category"`
	ByMonth    map[string]Totals       `json:"by_month"` // keyed YYYY-MM
}

// QuarterBounds returns the first day of the quarter and the first day of the next one
func QuarterBounds(year, quarter int) (time.Time, time.Time, error) {
	if quarter < 1 || quarter > 4 {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: quarter %d", ErrInvalidPeriod, quarter)
	}
	if year < 1990 || year > 2100 {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: year %d", ErrInvalidPeriod, year)
	}
	from := time.Date(year, time.Month(3*(quarter-1)+1), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 3, 0), nil
}

func inRange(d *receipt.ExtractedData, from, to time.Time) bool {
	if d.TransactionDate == nil {
		return false
	}
	t := d.TransactionDate.UTC()
	return !t.Before(from) && t.Before(to)
}

// QuarterlyVAT builds the VAT declaration for the records dated in the quarter.
// Records without a transaction date are left out.
func QuarterlyVAT(records []*receipt.ExtractedData, year, quarter int) (VATDeclaration, error) {
	from, to, err := QuarterBounds(year, quarter)
	if err != nil {
		return VATDeclaration{}, err
	}

	decl := VATDeclaration{Year: year, Quarter: quarter, From: from, To: to}
	for _, d := range records {
		if !inRange(d, from, to) {
			continue
		}
		decl.ReceiptCount++
		decl.TotalPurchases = decl.TotalPurchases.Add(d.AmountExclVAT)
		decl.VATOnPurchases = decl.VATOnPurchases.Add(d.VATAmountByRate)
		decl.DeductibleVAT = decl.DeductibleVAT.Add(d.VATRefundAmount)
	}

	decl.VATOnPurchases = decl.VATOnPurchases.Map(tax.Round)
	decl.VATOnPurchasesTotal = decl.VATOnPurchases.Total()
	decl.TotalPurchases = tax.Round(decl.TotalPurchases)
	decl.DeductibleVAT = tax.Round(decl.DeductibleVAT)
	decl.NonDeductibleVAT = decl.VATOnPurchasesTotal.Sub(decl.DeductibleVAT)
	decl.Balance = decl.VATOnSales.Sub(decl.DeductibleVAT)
	return decl, nil
}

// Summarize builds the annual summary for the records dated in year.
// Records without a transaction date are left out.
func Summarize(records []*receipt.ExtractedData, year int) (AnnualSummary, error) {
	if year < 1990 || year > 2100 {
		return AnnualSummary{}, fmt.Errorf("%w: year %d", ErrInvalidPeriod, year)
	}
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)

	s := AnnualSummary{
		Year:       year,
		ByCategory: make(map[tax.Category]Totals),
		ByMonth:    make(map[string]Totals),
	}
	for _, d := range records {
		if !inRange(d, from, to) {
			continue
		}
		vat := d.VATAmount()

		s.ReceiptCount++
		s.TotalExpenses = s.TotalExpenses.Add(d.AmountExclVAT).Add(vat)
		s.TotalVATPaid = s.TotalVATPaid.Add(vat)
		s.TotalVATRefunded = s.TotalVATRefunded.Add(d.VATRefundAmount)
		s.DeductibleExpenses = s.DeductibleExpenses.Add(d.ProfitDeduction)
		s.NonDeductibleExpenses = s.NonDeductibleExpenses.Add(d.AmountExclVAT.Sub(d.ProfitDeduction))

		s.ByCategory[d.ExpenseCategory] = s.ByCategory[d.ExpenseCategory].add(d)
		month := d.TransactionDate.UTC().Format(monthLayout)
		s.ByMonth[month] = s.ByMonth[month].add(d)
	}

	s.TotalExpenses = tax.Round(s.TotalExpenses)
	s.TotalVATPaid = tax.Round(s.TotalVATPaid)
	s.TotalVATRefunded = tax.Round(s.TotalVATRefunded)
	s.DeductibleExpenses = tax.Round(s.DeductibleExpenses)
	s.NonDeductibleExpenses = tax.Round(s.NonDeductibleExpenses)
	for k, v := range s.ByCategory {
		s.ByCategory[k] = v.rounded()
	}
	for k, v := range s.ByMonth {
		s.ByMonth[k] = v.rounded()
	}
	return s, nil
}
