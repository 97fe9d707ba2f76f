package tax

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Rule holds the deductible percentages for one category
type Rule struct {
	VATDeductiblePercentage float64 `json:"vat_deductible_percentage" yaml:"vat_deductible_percentage" validate:"gte=0,lte=100"`
	IBDeductiblePercentage  float64 `json:"ib_deductible_percentage" yaml:"ib_deductible_percentage" validate:"gte=0,lte=100"`
}

// DefaultRules is the hard-coded table used when no override exists for a category.
// Representation costs carry no VAT refund and are only 80% deductible for income tax.
var DefaultRules = map[Category]Rule{
	ProfessionalCosts:         {VATDeductiblePercentage: 100, IBDeductiblePercentage: 100},
	OfficeCosts:               {VATDeductiblePercentage: 100, IBDeductiblePercentage: 100},
	TravelAndAccommodation:    {VATDeductiblePercentage: 100, IBDeductiblePercentage: 100},
	RepresentationSupermarket: {VATDeductiblePercentage: 0, IBDeductiblePercentage: 80},
	RepresentationHospitality: {VATDeductiblePercentage: 0, IBDeductiblePercentage: 80},
	TransportCosts:            {VATDeductiblePercentage: 100, IBDeductiblePercentage: 100},
	BusinessEducation:         {VATDeductiblePercentage: 100, IBDeductiblePercentage: 100},
}

var fullyDeductible = Rule{VATDeductiblePercentage: 100, IBDeductiblePercentage: 100}

// Resolve returns the override for category if one exists, otherwise the default rule.
// Overrides are validated when written, so no range checks happen here.
func Resolve(category Category, overrides map[Category]Rule) Rule {
	if rule, ok := overrides[category]; ok {
		return rule
	}
	if rule, ok := DefaultRules[category]; ok {
		return rule
	}
	return fullyDeductible
}

// Amounts is the result of applying a rule to a receipt
type Amounts struct {
	VATDeductible     decimal.Decimal `json:"vat_deductible"`
	RemainderAfterVAT decimal.Decimal `json:"remainder_after_vat"`
	ProfitDeduction   decimal.Decimal `json:"profit_deduction"`
}

// ComputeAmounts applies already-resolved percentages to a receipt's amounts.
// remainderAfterVAT + vatDeductible always equals amountExclVAT + vatAmount.
func ComputeAmounts(amountExclVAT, vatAmount decimal.Decimal, rule Rule) Amounts {
	vatPct := decimal.NewFromFloat(rule.VATDeductiblePercentage)
	ibPct := decimal.NewFromFloat(rule.IBDeductiblePercentage)

	vatDeductible := Round(vatAmount.Mul(vatPct).Div(hundred))
	gross := amountExclVAT.Add(vatAmount)

	return Amounts{
		VATDeductible:     vatDeductible,
		RemainderAfterVAT: Round(gross.Sub(vatDeductible)),
		ProfitDeduction:   Round(amountExclVAT.Mul(ibPct).Div(hundred)),
	}
}

// Round rounds half away from zero to cents, which is half-up for the positive amounts on receipts
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
