package scanning

// visionPrompt asks the model for a verbatim transcription, no structuring
const visionPrompt = `Extract ALL text from this receipt image exactly as it appears.
Do not analyze or structure the data - just extract the raw text.
Include:
- Store name
- Address
- All items
- Prices
- Dates
- Invoice/receipt numbers
- VAT information
- Totals
- Payment information

Return only the raw text, line by line as it appears on the receipt.`

const visionSystemPrompt = "You are an expert at reading receipts and invoices. You transcribe every line of text in an image exactly as printed."
