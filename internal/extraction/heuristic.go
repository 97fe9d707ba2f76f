package extraction

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const money = `(-?\d[\d.,]*\d|\d)`

var (
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{1,2}[-/.]\d{1,2}[-/.]\d{4}\b`),
		regexp.MustCompile(`\b\d{4}[-/]\d{1,2}[-/]\d{1,2}\b`),
		regexp.MustCompile(`\b\d{1,2}-\d{1,2}-\d{2}\b`),
		regexp.MustCompile(`\b\d{1,2}\s+[A-Za-z]+\s+\d{4}\b`),
	}

	// "subtotaal" must not count as a total
	totalPattern = regexp.MustCompile(`(?i)(?:^|[^a-z])(?:totaal|total|te betalen)\s*(?:eur|€)?\s*[:=]?\s*(?:eur|€)?\s*` + money)
	euroPattern  = regexp.MustCompile(`€\s*` + money)
	vatPattern   = regexp.MustCompile(`(?i)\b(?:btw|vat)\s*(\d{1,2})\s*%\s*(?:over\s+€?\s*[\d.,]+\s*)?[:=]?\s*(?:eur|€)?\s*` + money)

	invoicePattern = regexp.MustCompile(`(?i)\b(?:bonnr|bonnummer|bon|factuurnummer|factuur|invoice|receipt|nummer|nr)\b[.:#\s]*(?:nr\.?|no\.?|number|nummer)?[.:#\s]*([a-z0-9-]*\d[a-z0-9-]*)`)
	vendorJunk     = regexp.MustCompile(`[^\p{L}\p{N}\s&'.-]`)
	vendorStop     = regexp.MustCompile(`(?i)\s{2,}|\.{2,}|…|[|,\t€\d]|\b(?:totaal|total|btw|vat|datum|date)\b`)

	dutchIndicators = []string{
		"btw", "totaal", "bedrag", "datum", "bon", "kassabon",
		"inclusief", "exclusief", "aantal", "prijs", "korting",
		"subtotaal", "te betalen", "contant", "pinnen", "retour",
	}
)

// Heuristic builds a best-effort record from raw text with regular expressions.
// It always succeeds and its confidence never exceeds MaxHeuristicConfidence.
func Heuristic(raw string) *Structured {
	s := &Structured{
		Items:            []Item{},
		Currency:         detectCurrency(raw),
		DetectedLanguage: detectLanguage(raw),
		Source:           SourceHeuristic,
		Confidence:       0.1,
	}

	if total, ok := lastAmount(totalPattern, raw); ok {
		s.TotalAmount = total
		s.Confidence += 0.2
	} else if total, ok := lastAmount(euroPattern, raw); ok {
		s.TotalAmount = total
		s.Confidence += 0.1
	}

	for _, p := range datePatterns {
		if m := p.FindString(raw); m != "" {
			if d := parseDate(m); d != nil {
				s.Date = d
				s.Confidence += 0.1
				break
			}
		}
	}

	if vendor := detectVendor(raw); vendor != "" {
		s.VendorName = vendor
		s.Confidence += 0.1
	}

	for _, m := range vatPattern.FindAllStringSubmatch(raw, -1) {
		rate, err := strconv.Atoi(m[1])
		if err != nil || !s.VATBreakdown.Get(rate).IsZero() {
			continue
		}
		if amt, ok := parseAmount(m[2]); ok {
			s.VATBreakdown.Set(rate, amt)
		}
	}
	s.TotalVAT = s.VATBreakdown.Total()
	s.Subtotal = s.TotalAmount.Sub(s.TotalVAT)

	if m := invoicePattern.FindStringSubmatch(raw); m != nil {
		s.InvoiceNumber = m[1]
	}

	s.Confidence = clamp(roundConfidence(s.Confidence))
	if s.Confidence > MaxHeuristicConfidence {
		s.Confidence = MaxHeuristicConfidence
	}
	return s
}

func lastAmount(p *regexp.Regexp, raw string) (decimal.Decimal, bool) {
	matches := p.FindAllStringSubmatch(raw, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		if amt, ok := parseAmount(m[len(m)-1]); ok {
			return amt, true
		}
	}
	return decimal.Zero, false
}

// detectVendor returns the first meaningful line among the first five,
// cut before any amount, separator run, or total keyword
func detectVendor(raw string) string {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	if len(lines) > 5 {
		lines = lines[:5]
	}
	for _, line := range lines {
		if loc := vendorStop.FindStringIndex(line); loc != nil {
			line = line[:loc[0]]
		}
		line = strings.TrimRight(strings.TrimSpace(vendorJunk.ReplaceAllString(line, "")), ".- ")
		if len([]rune(line)) > 2 {
			return line
		}
	}
	return ""
}

func detectLanguage(raw string) string {
	lower := strings.ToLower(raw)
	n := 0
	for _, w := range dutchIndicators {
		if strings.Contains(lower, w) {
			n++
		}
	}
	if n >= 3 {
		return "nl"
	}
	return "en"
}

func detectCurrency(raw string) string {
	upper := strings.ToUpper(raw)
	switch {
	case strings.Contains(raw, "€") || strings.Contains(upper, "EUR"):
		return DefaultCurrency
	case strings.Contains(raw, "$") || strings.Contains(upper, "USD"):
		return "USD"
	case strings.Contains(raw, "£") || strings.Contains(upper, "GBP"):
		return "GBP"
	}
	return DefaultCurrency
}

func roundConfidence(c float64) float64 {
	return float64(int(c*100+0.5)) / 100
}
