package extraction

import (
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// responseSchema accepts amounts as numbers or strings and any field as null.
// A response must at least name a vendor or a total.
const responseSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "$defs": {
    "amount": {"type": ["number", "string", "null"]},
    "text": {"type": ["string", "null"]}
  },
  "properties": {
    "vendor_name": {"$ref": "#/$defs/text"},
    "vendor_address": {"$ref": "#/$defs/text"},
    "date": {"$ref": "#/$defs/text"},
    "invoice_number": {"type": ["string", "number", "null"]},
    "items": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "description": {"$ref": "#/$defs/text"},
          "quantity": {"$ref": "#/$defs/amount"},
          "unit_price": {"$ref": "#/$defs/amount"},
          "total_price": {"$ref": "#/$defs/amount"},
          "vat_rate": {"$ref": "#/$defs/amount"}
        }
      }
    },
    "subtotal": {"$ref": "#/$defs/amount"},
    "vat_breakdown": {
      "type": ["object", "null"],
      "additionalProperties": {"$ref": "#/$defs/amount"}
    },
    "total_vat": {"$ref": "#/$defs/amount"},
    "total_amount": {"$ref": "#/$defs/amount"},
    "currency": {"$ref": "#/$defs/text"},
    "payment_method": {"$ref": "#/$defs/text"},
    "confidence": {"$ref": "#/$defs/amount"},
    "detected_language": {"$ref": "#/$defs/text"},
    "notes": {"$ref": "#/$defs/text"}
  },
  "anyOf": [
    {"required": ["total_amount"]},
    {"required": ["vendor_name"]}
  ]
}`

var compiledResponseSchema = jsonschema.MustCompileString("receipt-response.json", responseSchema)
