package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/zombor/btw-tracker/internal/scanning"
	"github.com/zombor/btw-tracker/internal/tax"
)

type keywordRule struct {
	category tax.Category
	pattern  *regexp.Regexp
}

func keywords(c tax.Category, words ...string) keywordRule {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return keywordRule{
		category: c,
		pattern:  regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`),
	}
}

// keywordRules are checked in order; the first matching vendor keyword wins
var keywordRules = []keywordRule{
	keywords(tax.OfficeCosts, "office", "kantoor", "staples", "makro", "viking"),
	keywords(tax.ProfessionalCosts, "mediamarkt", "media markt", "coolblue", "bol.com", "amazon"),
	keywords(tax.RepresentationSupermarket, "albert heijn", "ah to go", "jumbo", "lidl", "aldi", "plus", "dirk", "spar"),
	keywords(tax.TravelAndAccommodation, "hotel", "hostel", "airbnb", "booking.com"),
	keywords(tax.RepresentationHospitality, "restaurant", "cafe", "bar", "bistro", "eetcafe"),
	keywords(tax.TransportCosts, "shell", "bp", "esso", "total", "tinq", "ns", "gvb", "ret", "htm", "q-park", "uber"),
	keywords(tax.BusinessEducation, "training", "course", "cursus", "udemy", "coursera"),
}

// Categorizer assigns a tax category to a structured record
type Categorizer struct {
	gen scanning.Generator
}

// NewCategorizer creates a Categorizer. A nil generator means keyword matching only.
func NewCategorizer(gen scanning.Generator) *Categorizer {
	return &Categorizer{gen: gen}
}

// Categorize always returns a member of tax.Categories
func (c *Categorizer) Categorize(ctx context.Context, s *Structured) tax.Category {
	if c.gen != nil {
		resp, err := c.gen.Generate(ctx, categoryPrompt(s))
		if err == nil {
			if category, ok := parseCategoryResponse(resp); ok {
				return category
			}
			err = fmt.Errorf("%w: %q", ErrInvalidCategory, resp)
		}
		slog.Warn("category classification unusable, using keywords", "vendor", s.VendorName, "error", err)
	}
	return CategorizeByKeyword(s.VendorName)
}

// CategorizeByKeyword matches the vendor name against known chains and falls back to tax.DefaultCategory
func CategorizeByKeyword(vendor string) tax.Category {
	for _, rule := range keywordRules {
		if rule.pattern.MatchString(vendor) {
			return rule.category
		}
	}
	return tax.DefaultCategory
}

func parseCategoryResponse(resp string) (tax.Category, bool) {
	label := strings.TrimSpace(resp)
	// Models like to decorate the answer: "**Kantoorkosten**." or "1. Kantoorkosten"
	label = strings.Trim(label, "\"'`*. \n")
	if i := strings.Index(label, ". "); i > 0 && i <= 2 {
		label = label[i+2:]
	}
	if category, ok := tax.ParseCategory(label); ok {
		return category, true
	}
	// Only the first line counts when the model adds an explanation
	if first, _, found := strings.Cut(label, "\n"); found {
		return tax.ParseCategory(strings.Trim(first, "\"'`*. "))
	}
	return "", false
}
