package report

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/zombor/btw-tracker/internal/receipt"
	"github.com/zombor/btw-tracker/internal/tax"
)

// Sheet names of the yearly workbook
const (
	SheetReceipts = "Bonnen"
	SheetSummary  = "Samenvatting"
	SheetVAT      = "BTW-aangifte"
)

const moneyFormat = `"€ "#,##0.00`

var receiptHeaders = []string{
	"Nr",
	"Datum",
	"Winkel/Leverancier",
	"Categorie kosten",
	"Bedrag excl. BTW",
	"BTW 6%",
	"BTW 9%",
	"BTW 21%",
	"Totaal incl. BTW",
	"BTW aftrekbaar %",
	"IB aftrekbaar %",
	"BTW terugvraag",
	"Restant na BTW",
	"Winstaftrek",
	"Toelichting/motivatie",
}

// sheetWriter writes rows to one sheet and keeps the first error
type sheetWriter struct {
	f     *excelize.File
	sheet string
	err   error
}

func (w *sheetWriter) row(n int, values ...any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetSheetRow(w.sheet, cell, &values)
}

func (w *sheetWriter) style(from, to string, style int) {
	if w.err != nil {
		return
	}
	w.err = w.f.SetCellStyle(w.sheet, from, to, style)
}

func (w *sheetWriter) width(from, to string, width float64) {
	if w.err != nil {
		return
	}
	w.err = w.f.SetColWidth(w.sheet, from, to, width)
}

func money(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

// Workbook renders the year's records as an XLSX file with a receipt list,
// the annual summary and the four quarterly VAT declarations
func Workbook(records []*receipt.ExtractedData, year int) ([]byte, error) {
	summary, err := Summarize(records, year)
	if err != nil {
		return nil, err
	}
	var quarters [4]VATDeclaration
	for q := 1; q <= 4; q++ {
		if quarters[q-1], err = QuarterlyVAT(records, year, q); err != nil {
			return nil, err
		}
	}

	rows := make([]*receipt.ExtractedData, 0, len(records))
	for _, d := range records {
		if d.TransactionDate != nil && d.TransactionDate.UTC().Year() == year {
			rows = append(rows, d)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].TransactionDate.Equal(*rows[j].TransactionDate) {
			return rows[i].TransactionDate.Before(*rows[j].TransactionDate)
		}
		return rows[i].ReceiptID < rows[j].ReceiptID
	})

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetReceipts); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}
	for _, name := range []string{SheetSummary, SheetVAT} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("creating sheet %s: %w", name, err)
		}
	}

	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: ptr(moneyFormat)})
	if err != nil {
		return nil, fmt.Errorf("creating style: %w", err)
	}
	percentStyle, err := f.NewStyle(&excelize.Style{NumFmt: 9})
	if err != nil {
		return nil, fmt.Errorf("creating style: %w", err)
	}
	dateStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: ptr("dd-mm-yyyy")})
	if err != nil {
		return nil, fmt.Errorf("creating style: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("creating style: %w", err)
	}

	if err := writeReceipts(f, rows, moneyStyle, percentStyle, dateStyle, headerStyle); err != nil {
		return nil, err
	}
	if err := writeSummary(f, summary, moneyStyle, headerStyle); err != nil {
		return nil, err
	}
	if err := writeVAT(f, quarters, moneyStyle, headerStyle); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	slog.Info("workbook exported", "year", year, "rows", len(rows), "bytes", buf.Len())
	return buf.Bytes(), nil
}

func ptr[T any](v T) *T {
	return &v
}

func writeReceipts(f *excelize.File, rows []*receipt.ExtractedData, moneyStyle, percentStyle, dateStyle, headerStyle int) error {
	w := &sheetWriter{f: f, sheet: SheetReceipts}
	headers := make([]any, len(receiptHeaders))
	for i, h := range receiptHeaders {
		headers[i] = h
	}
	w.row(1, headers...)

	for i, d := range rows {
		w.row(i+2,
			i+1,
			d.TransactionDate.UTC(),
			d.VendorName,
			string(d.ExpenseCategory),
			money(d.AmountExclVAT),
			money(d.VATAmountByRate.Rate6),
			money(d.VATAmountByRate.Rate9),
			money(d.VATAmountByRate.Rate21),
			money(d.TotalInclVAT),
			d.VATDeductiblePercentage/100,
			d.IBDeductiblePercentage/100,
			money(d.VATRefundAmount),
			money(d.RemainderAfterVAT),
			money(d.ProfitDeduction),
			d.Notes,
		)
	}

	last := len(rows) + 1
	w.style("A1", "O1", headerStyle)
	if len(rows) > 0 {
		w.style("B2", fmt.Sprintf("B%d", last), dateStyle)
		w.style("E2", fmt.Sprintf("I%d", last), moneyStyle)
		w.style("J2", fmt.Sprintf("K%d", last), percentStyle)
		w.style("L2", fmt.Sprintf("N%d", last), moneyStyle)
	}
	w.width("A", "A", 6)
	w.width("B", "B", 12)
	w.width("C", "D", 32)
	w.width("E", "N", 16)
	w.width("O", "O", 48)
	if w.err != nil {
		return fmt.Errorf("writing %s: %w", SheetReceipts, w.err)
	}
	return nil
}

func writeSummary(f *excelize.File, s AnnualSummary, moneyStyle, headerStyle int) error {
	w := &sheetWriter{f: f, sheet: SheetSummary}
	w.row(1, "Omschrijving", "Waarde")
	w.row(2, "Totaal aantal bonnen", s.ReceiptCount)
	w.row(3, "Totale uitgaven (incl. BTW)", money(s.TotalExpenses))
	w.row(4, "Totaal BTW betaald", money(s.TotalVATPaid))
	w.row(5, "Totaal BTW terugvordering", money(s.TotalVATRefunded))
	w.row(6, "Aftrekbare kosten", money(s.DeductibleExpenses))
	w.row(7, "Niet-aftrekbare kosten", money(s.NonDeductibleExpenses))

	n := 9
	w.row(n, "Per categorie", "Aantal", "Excl. BTW", "BTW", "Totaal", "Aftrekbaar")
	w.style(fmt.Sprintf("A%d", n), fmt.Sprintf("F%d", n), headerStyle)
	for _, c := range tax.Categories() {
		t, ok := s.ByCategory[c]
		if !ok {
			continue
		}
		n++
		w.row(n, string(c), t.Count, money(t.AmountExclVAT), money(t.VAT), money(t.Total), money(t.Deductible))
	}

	months := make([]string, 0, len(s.ByMonth))
	for m := range s.ByMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	n += 2
	monthHeader := n
	w.row(n, "Per maand", "Aantal", "Excl. BTW", "BTW", "Totaal", "Aftrekbaar")
	w.style(fmt.Sprintf("A%d", n), fmt.Sprintf("F%d", n), headerStyle)
	for _, m := range months {
		t := s.ByMonth[m]
		n++
		w.row(n, m, t.Count, money(t.AmountExclVAT), money(t.VAT), money(t.Total), money(t.Deductible))
	}

	w.style("A1", "B1", headerStyle)
	w.style("B3", "B7", moneyStyle)
	if len(s.ByCategory) > 0 {
		w.style("C10", fmt.Sprintf("F%d", monthHeader-2), moneyStyle)
	}
	if len(months) > 0 {
		w.style(fmt.Sprintf("C%d", monthHeader+1), fmt.Sprintf("F%d", n), moneyStyle)
	}
	w.width("A", "A", 44)
	w.width("B", "F", 16)
	if w.err != nil {
		return fmt.Errorf("writing %s: %w", SheetSummary, w.err)
	}
	return nil
}

func writeVAT(f *excelize.File, quarters [4]VATDeclaration, moneyStyle, headerStyle int) error {
	w := &sheetWriter{f: f, sheet: SheetVAT}
	w.row(1, "Code", "Omschrijving", "Q1", "Q2", "Q3", "Q4")
	w.style("A1", "F1", headerStyle)

	perQuarter := func(fn func(VATDeclaration) decimal.Decimal) []any {
		out := make([]any, 4)
		for i, q := range quarters {
			out[i] = money(fn(q))
		}
		return out
	}
	zero := func(VATDeclaration) decimal.Decimal { return decimal.Zero }

	lines := []struct {
		code, label string
		value       func(VATDeclaration) decimal.Decimal
	}{
		{"1a", "Leveringen/diensten belast met hoog tarief", zero},
		{"1b", "Leveringen/diensten belast met laag tarief", zero},
		{"1c", "Leveringen/diensten belast met overige tarieven", zero},
		{"1d", "Privégebruik", zero},
		{"1e", "Leveringen/diensten belast met 0%", zero},
		{"", "Inkopen excl. BTW", func(d VATDeclaration) decimal.Decimal { return d.TotalPurchases }},
		{"", "BTW betaald 6%", func(d VATDeclaration) decimal.Decimal { return d.VATOnPurchases.Rate6 }},
		{"", "BTW betaald 9%", func(d VATDeclaration) decimal.Decimal { return d.VATOnPurchases.Rate9 }},
		{"", "BTW betaald 21%", func(d VATDeclaration) decimal.Decimal { return d.VATOnPurchases.Rate21 }},
		{"5b", "Voorbelasting", func(d VATDeclaration) decimal.Decimal { return d.DeductibleVAT }},
		{"", "Niet-aftrekbare BTW", func(d VATDeclaration) decimal.Decimal { return d.NonDeductibleVAT }},
		{"", "Te betalen/terug te vragen", func(d VATDeclaration) decimal.Decimal { return d.Balance }},
	}
	for i, l := range lines {
		w.row(i+2, append([]any{l.code, l.label}, perQuarter(l.value)...)...)
	}

	w.style("C2", fmt.Sprintf("F%d", len(lines)+1), moneyStyle)
	w.width("A", "A", 8)
	w.width("B", "B", 50)
	w.width("C", "F", 16)
	if w.err != nil {
		return fmt.Errorf("writing %s: %w", SheetVAT, w.err)
	}
	return nil
}
