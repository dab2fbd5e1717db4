package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"billparse/internal/domain"
)

// UTF-8 BOM bytes for Excel compatibility on Windows.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// columns defines the report header row.
var columns = []string{
	"Page No",
	"Page Type",
	"Item Name",
	"Item Rate",
	"Item Quantity",
	"Item Amount",
}

// Writer wraps csv.Writer for exporting extraction results as CSV.
type Writer struct {
	csv *csv.Writer
}

// NewWriter creates a Writer that writes CSV to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// WriteHeader writes the header row.
func (w *Writer) WriteHeader() error {
	return w.csv.Write(columns)
}

// WriteResult writes one row per extracted line item across all pages,
// in page order.
func (w *Writer) WriteResult(result *domain.DocumentResult) error {
	for _, page := range result.Pages {
		for _, item := range page.BillItems {
			if err := w.csv.Write(itemToRow(&page, &item)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush flushes the underlying csv.Writer buffer.
func (w *Writer) Flush() {
	w.csv.Flush()
}

// Error returns any error from the underlying csv.Writer.
func (w *Writer) Error() error {
	return w.csv.Error()
}

func itemToRow(page *domain.PageLineItems, item *domain.BillItem) []string {
	return []string{
		page.PageNo,
		string(page.PageType),
		item.ItemName,
		formatAmount(item.ItemRate),
		formatAmount(item.ItemQuantity),
		formatAmount(item.ItemAmount),
	}
}

// formatAmount renders a float without forcing a decimal precision, so
// extracted amounts survive the round trip unrounded.
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteXLSX renders the extraction result as an XLSX workbook and writes it
// to w.
func WriteXLSX(w io.Writer, result *domain.DocumentResult) error {
	f := excelize.NewFile()
	const sheet = "Line Items"

	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	_ = f.DeleteSheet("Sheet1")

	for i, h := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, page := range result.Pages {
		for _, item := range page.BillItems {
			write := func(col int, v any) {
				cell, _ := excelize.CoordinatesToCellName(col, row)
				_ = f.SetCellValue(sheet, cell, v)
			}
			write(1, page.PageNo)
			write(2, string(page.PageType))
			write(3, item.ItemName)
			write(4, item.ItemRate)
			write(5, item.ItemQuantity)
			write(6, item.ItemAmount)
			row++
		}
	}

	_ = f.SetColWidth(sheet, "A", "B", 12)
	_ = f.SetColWidth(sheet, "C", "C", 40)
	_ = f.SetColWidth(sheet, "D", "F", 14)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// nonAlphanumeric matches characters that are not alphanumeric, hyphen, or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// multiUnderscore matches consecutive underscores.
var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename cleans a document name for use in Content-Disposition.
// Replaces non-alphanumeric chars (except - _) with _, collapses consecutive
// underscores, and truncates to 100 chars.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// BuildFilename returns a sanitized filename for the Content-Disposition
// header. Format: {sanitized_name}_{YYYY-MM-DD}.{ext}
func BuildFilename(name, ext string) string {
	sanitized := SanitizeFilename(name)
	if sanitized == "" {
		sanitized = "line_items"
	}
	date := time.Now().Format("2006-01-02")
	return fmt.Sprintf("%s_%s.%s", sanitized, date, ext)
}
