package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RawItem is one untrusted line item as the model produced it. Field values
// may be numbers, numeric strings, null, or anything else; coercion happens
// in Normalize.
type RawItem struct {
	ItemName     any `json:"item_name"`
	ItemAmount   any `json:"item_amount"`
	ItemRate     any `json:"item_rate"`
	ItemQuantity any `json:"item_quantity"`
}

// RawPage is the untrusted pre-normalization result of one extraction call.
type RawPage struct {
	PageNo   int
	PageType string
	Items    []RawItem
}

// wirePage matches the shapes the model is known to emit: the requested
// object form plus the conventional alternates "items" and "lines".
type wirePage struct {
	PageType  any       `json:"page_type"`
	BillItems []RawItem `json:"bill_items"`
	Items     []RawItem `json:"items"`
	Lines     []RawItem `json:"lines"`
}

// DecodePageResult parses model output text into a RawPage. It strips
// surrounding code fences, accepts both an object and a bare array of
// items, and aliases alternate item keys. pageNo is stamped into the result
// unconditionally; page numbering authority belongs to the pipeline.
func DecodePageResult(text string, pageNo int) (*RawPage, error) {
	cleaned := StripCodeFences(text)
	if cleaned == "" {
		return nil, fmt.Errorf("empty model output")
	}

	// A bare JSON array is a known malformation: treat it as the items list
	// of a page with no declared type.
	if strings.HasPrefix(cleaned, "[") {
		var items []RawItem
		if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
			return nil, fmt.Errorf("parsing model JSON array: %w", err)
		}
		return &RawPage{PageNo: pageNo, Items: items}, nil
	}

	var wire wirePage
	if err := json.Unmarshal([]byte(cleaned), &wire); err != nil {
		return nil, fmt.Errorf("parsing model JSON output: %w (raw: %s)", err, truncate(cleaned, 500))
	}

	items := wire.BillItems
	if items == nil {
		if wire.Items != nil {
			items = wire.Items
		} else if wire.Lines != nil {
			items = wire.Lines
		}
	}

	pageType := ""
	if s, ok := wire.PageType.(string); ok {
		pageType = s
	}

	return &RawPage{PageNo: pageNo, PageType: pageType, Items: items}, nil
}

// StripCodeFences removes a surrounding markdown code fence, with or
// without a language tag, from model output.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
