package tax

import "github.com/shopspring/decimal"

// VATRates are the Dutch VAT percentages a receipt can be bucketed under
var VATRates = []int{0, 6, 9, 21}

// VATBreakdown holds the VAT paid per rate. In practice at most one bucket is non-zero.
type VATBreakdown struct {
	Rate0  decimal.Decimal `json:"0"`
	Rate6  decimal.Decimal `json:"6"`
	Rate9  decimal.Decimal `json:"9"`
	Rate21 decimal.Decimal `json:"21"`
}

// Total returns the sum of all buckets
func (b VATBreakdown) Total() decimal.Decimal {
	return b.Rate0.Add(b.Rate6).Add(b.Rate9).Add(b.Rate21)
}

// Get returns the bucket for rate, or zero for an unknown rate
func (b VATBreakdown) Get(rate int) decimal.Decimal {
	switch rate {
	case 0:
		return b.Rate0
	case 6:
		return b.Rate6
	case 9:
		return b.Rate9
	case 21:
		return b.Rate21
	}
	return decimal.Zero
}

// Set stores amount in the bucket for rate. It reports false for a rate outside VATRates.
func (b *VATBreakdown) Set(rate int, amount decimal.Decimal) bool {
	switch rate {
	case 0:
		b.Rate0 = amount
	case 6:
		b.Rate6 = amount
	case 9:
		b.Rate9 = amount
	case 21:
		b.Rate21 = amount
	default:
		return false
	}
	return true
}

// Add returns the bucket-wise sum of b and other
func (b VATBreakdown) Add(other VATBreakdown) VATBreakdown {
	return VATBreakdown{
		Rate0:  b.Rate0.Add(other.Rate0),
		Rate6:  b.Rate6.Add(other.Rate6),
		Rate9:  b.Rate9.Add(other.Rate9),
		Rate21: b.Rate21.Add(other.Rate21),
	}
}

// Map applies fn to every bucket
func (b VATBreakdown) Map(fn func(decimal.Decimal) decimal.Decimal) VATBreakdown {
	return VATBreakdown{
		Rate0:  fn(b.Rate0),
		Rate6:  fn(b.Rate6),
		Rate9:  fn(b.Rate9),
		Rate21: fn(b.Rate21),
	}
}
