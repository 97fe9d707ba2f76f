package tax

import "strings"

// Category is one of the fixed expense categories used for Dutch freelance bookkeeping
type Category string

const (
	ProfessionalCosts         Category = "Beroepskosten"
	OfficeCosts               Category = "Kantoorkosten"
	TravelAndAccommodation    Category = "Reis- en verblijfkosten"
	RepresentationSupermarket Category = "Representatiekosten - Type 1 (Supermarket)"
	RepresentationHospitality Category = "Representatiekosten - Type 2 (Horeca)"
	TransportCosts            Category = "Vervoerskosten"
	BusinessEducation         Category = "Zakelijke opleidingskosten"
)

// DefaultCategory is used whenever no better classification is available
const DefaultCategory = OfficeCosts

var allCategories = []Category{
	ProfessionalCosts,
	OfficeCosts,
	TravelAndAccommodation,
	RepresentationSupermarket,
	RepresentationHospitality,
	TransportCosts,
	BusinessEducation,
}

// Categories returns every category in display order
func Categories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// ParseCategory maps a label onto the enum. Matching ignores case and surrounding whitespace
// but is otherwise exact.
func ParseCategory(label string) (Category, bool) {
	normalized := strings.ToLower(strings.TrimSpace(label))
	if normalized == "" {
		return "", false
	}
	for _, c := range allCategories {
		if normalized == strings.ToLower(string(c)) {
			return c, true
		}
	}
	return "", false
}

// Valid reports whether c is a member of the enum
func (c Category) Valid() bool {
	for _, known := range allCategories {
		if c == known {
			return true
		}
	}
	return false
}
