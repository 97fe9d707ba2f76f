package extraction

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// amount accepts JSON numbers, strings like "€ 21,00" or "1.234,56", and null
type amount struct {
	decimal.Decimal
}

func (a *amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		a.Decimal = decimal.Zero
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		a.Decimal, _ = parseAmount(s)
		return nil
	}
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		a.Decimal = decimal.Zero
		return nil
	}
	a.Decimal = d
	return nil
}

var amountJunk = regexp.MustCompile(`[^0-9.,\-]`)

// parseAmount reads a money string in either Dutch or English notation
func parseAmount(s string) (decimal.Decimal, bool) {
	s = amountJunk.ReplaceAllString(s, "")
	if s == "" || s == "-" {
		return decimal.Zero, false
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		// The later separator is the decimal one
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

var dutchMonths = strings.NewReplacer(
	"januari", "January", "februari", "February", "maart", "March",
	"april", "April", "mei", "May", "juni", "June", "juli", "July",
	"augustus", "August", "september", "September", "oktober", "October",
	"november", "November", "december", "December",
	"mrt", "Mar", "okt", "Oct",
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-1-2",
	"2006/1/2",
	"2-1-2006",
	"2/1/2006",
	"2.1.2006",
	"2-1-06",
	"2/1/06",
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// parseDate normalises a receipt date. Day-first is assumed for ambiguous numeric dates.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if d := parseLayouts(s); d != nil {
		return d
	}
	return parseLayouts(titleMonth(dutchMonths.Replace(strings.ToLower(s))))
}

func parseLayouts(s string) *time.Time {
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Year() < 1990 || t.Year() > 2100 {
			return nil
		}
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return &d
	}
	return nil
}

func titleMonth(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		if f != "" && f[0] >= 'a' && f[0] <= 'z' {
			fields[i] = strings.ToUpper(f[:1]) + f[1:]
		}
	}
	return strings.Join(fields, " ")
}
