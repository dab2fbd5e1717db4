package extract

// BuildBillExtractionPrompt returns the extraction prompt for medical bill
// pages. The same prompt is used for inlined page images and for
// URL-passthrough requests.
func BuildBillExtractionPrompt() string {
	return `You are an expert medical bill analyzer. Analyze the provided bill page and extract ONLY genuine line items.

Return ONLY valid JSON in this exact format:

{
  "page_no": "string",
  "page_type": "Bill Detail | Final Bill | Pharmacy",
  "bill_items": [
    {
      "item_name": "string",
      "item_amount": float,
      "item_rate": float,
      "item_quantity": float
    }
  ]
}

RULES:
- Extract EVERY genuine line item. Do NOT include totals, subtotals, taxes, discounts, section headers, or notes.
- Preserve item_amount EXACTLY as shown on the bill. Do not round.
- If item_rate or item_quantity is missing, use 0.0.
- page_type must be EXACTLY one of: Bill Detail, Final Bill, Pharmacy.
- If the page has no line items, return an empty bill_items array.
- Output ONLY the raw JSON object with no markdown formatting, no code fences, no explanation.`
}
