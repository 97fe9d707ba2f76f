package extraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zombor/btw-tracker/internal/tax"
)

const structuredPromptTemplate = `Analyze this receipt text and extract structured information.

Receipt text:
%s

Extract and return the following information in JSON format:
{
    "vendor_name": "Store/company name",
    "vendor_address": "Full address",
    "date": "Transaction date in YYYY-MM-DD format",
    "invoice_number": "Receipt/invoice number",
    "items": [
        {
            "description": "Item name",
            "quantity": 1,
            "unit_price": 0.00,
            "total_price": 0.00,
            "vat_rate": 21
        }
    ],
    "subtotal": 0.00,
    "vat_breakdown": {
        "0": 0.00,
        "6": 0.00,
        "9": 0.00,
        "21": 0.00
    },
    "total_vat": 0.00,
    "total_amount": 0.00,
    "currency": "ISO 4217 code, e.g. EUR",
    "payment_method": "cash/card/pin/unknown",
    "confidence": 0.95,
    "detected_language": "nl or en",
    "notes": "Any relevant information"
}

IMPORTANT RULES:
- For Dutch receipts: "BTW" = VAT, "Totaal" = Total
- VAT rates in the Netherlands: 21%% (hoog), 9%% (laag), 6%% (old rate), 0%% (geen)
- Extract EXACT amounts from the receipt, in the currency printed on it
- Date format must be YYYY-MM-DD
- If unsure about a value, set confidence lower

Return ONLY valid JSON, no additional text.`

func structuredPrompt(raw string) string {
	return fmt.Sprintf(structuredPromptTemplate, raw)
}

var categoryGuidelines = map[tax.Category]string{
	tax.ProfessionalCosts:         "Professional tools, equipment, software, electronics for work",
	tax.OfficeCosts:               "Office supplies, stationery, small office items",
	tax.TravelAndAccommodation:    "Travel expenses, accommodation, hotels",
	tax.RepresentationSupermarket: "Food/drinks from supermarkets (Albert Heijn, Jumbo, Lidl, etc.)",
	tax.RepresentationHospitality: "Restaurant, cafe, bar expenses",
	tax.TransportCosts:            "Fuel, parking, public transport, taxi",
	tax.BusinessEducation:         "Training courses, books, educational materials",
}

func categoryPrompt(s *Structured) string {
	var list, guide strings.Builder
	for i, c := range tax.Categories() {
		fmt.Fprintf(&list, "  %d. %s\n", i+1, c)
		fmt.Fprintf(&guide, "%d. %s: %s\n", i+1, c, categoryGuidelines[c])
	}

	vendor := s.VendorName
	if vendor == "" {
		vendor = "Unknown"
	}
	items, _ := json.Marshal(s.Items)

	return fmt.Sprintf(`Based on this receipt information, determine the expense category for Dutch freelance tax purposes.

Receipt Data:
- Vendor: %s
- Items: %s
- Total: %s %s

Available Categories:
%s
Category Guidelines:
%s
Return ONLY the category name exactly as listed above, nothing else.`,
		vendor, items, s.Currency, s.TotalAmount.StringFixed(2), list.String(), guide.String())
}
