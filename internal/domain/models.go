package domain

// RasterPage is one rendered page of an input document, ready to be sent to
// the extraction model. Pages are numbered from 1 in document order.
type RasterPage struct {
	PageNo      int
	ImageBytes  []byte
	ContentType string
}

// BillItem is a single extracted line item in canonical form. Numeric fields
// are always finite floats; ItemAmount carries the extracted value unrounded.
type BillItem struct {
	ItemName     string  `json:"item_name"`
	ItemAmount   float64 `json:"item_amount"`
	ItemRate     float64 `json:"item_rate"`
	ItemQuantity float64 `json:"item_quantity"`
}

// PageLineItems is the canonical per-page extraction result.
type PageLineItems struct {
	PageNo    string     `json:"page_no"`
	PageType  PageType   `json:"page_type"`
	BillItems []BillItem `json:"bill_items"`
}

// TokenUsage accumulates model token counters across pages. All fields
// default to zero when the provider reports no usage metadata.
type TokenUsage struct {
	TotalTokens  int `json:"total_tokens"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add sums another usage report into u field-wise.
func (u *TokenUsage) Add(other TokenUsage) {
	u.TotalTokens += other.TotalTokens
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// DocumentResult is the per-document aggregation of all page results.
// It is assembled once per request and never persisted.
type DocumentResult struct {
	Pages          []PageLineItems `json:"pagewise_line_items"`
	Usage          TokenUsage      `json:"token_usage"`
	TotalItemCount int             `json:"total_item_count"`
}
