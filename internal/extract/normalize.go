package extract

import (
	"math"
	"strconv"
	"strings"

	"billparse/internal/domain"
)

// Normalize coerces an untrusted RawPage into the canonical schema. It never
// fails: unknown page types fall back to the default, missing or garbage
// numeric values become 0.0, and rows without a name are dropped. This is
// the last line of defense against unreliable model output.
func Normalize(raw *RawPage) *domain.PageLineItems {
	items := make([]domain.BillItem, 0, len(raw.Items))
	for _, it := range raw.Items {
		name := coerceName(it.ItemName)
		if strings.TrimSpace(name) == "" {
			// Models sometimes emit one blank placeholder row instead of a
			// true empty array.
			continue
		}
		items = append(items, domain.BillItem{
			ItemName:     name,
			ItemAmount:   coerceFloat(it.ItemAmount),
			ItemRate:     coerceFloat(it.ItemRate),
			ItemQuantity: coerceFloat(it.ItemQuantity),
		})
	}

	return &domain.PageLineItems{
		PageNo:    strconv.Itoa(raw.PageNo),
		PageType:  domain.NormalizePageType(raw.PageType),
		BillItems: items,
	}
}

// EmptyPage returns the degraded placeholder for a page whose extraction
// failed under the lenient failure policy.
func EmptyPage(pageNo int) *domain.PageLineItems {
	return &domain.PageLineItems{
		PageNo:    strconv.Itoa(pageNo),
		PageType:  domain.DefaultPageType,
		BillItems: []domain.BillItem{},
	}
}

func coerceName(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

// coerceFloat accepts a JSON number or a numeric string and returns 0.0 for
// everything else. Coercion failure never propagates as an error.
func coerceFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	default:
		return 0
	}
}
