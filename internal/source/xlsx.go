package source

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// XLSXSource reads listing rows from a local Excel workbook. Useful for
// offline imports and as a drop-in stand-in for the Sheets source.
type XLSXSource struct {
	path  string
	sheet string
}

func NewXLSXSource(path, sheet string) *XLSXSource {
	return &XLSXSource{path: path, sheet: sheet}
}

// Fetch opens the workbook on every call so a replaced file is picked up
// by the next sync run.
func (s *XLSXSource) Fetch(ctx context.Context) ([]string, [][]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open workbook %s: %w", s.path, err)
	}
	defer f.Close()

	sheet := s.sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}

	rawRows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	if len(rawRows) == 0 {
		return nil, nil, nil
	}

	headers := rawRows[0]
	rows := make([][]any, 0, len(rawRows)-1)
	for _, raw := range rawRows[1:] {
		row := make([]any, len(raw))
		for i, cell := range raw {
			row[i] = cell
		}
		rows = append(rows, row)
	}
	return headers, rows, nil
}
