package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXReader extracts tabular content (e.g. lab-result sheets) as
// pipe-delimited text, one block per sheet.
type XLSXReader struct{}

func (r *XLSXReader) Formats() []string { return []string{"xlsx", "xls"} }

func (r *XLSXReader) Text(ctx context.Context, path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("opening spreadsheet: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(sheet + "\n")
		for _, row := range rows {
			sb.WriteString("| " + strings.Join(row, " | ") + " |\n")
		}
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("no data found in spreadsheet")
	}
	return sb.String(), nil
}
