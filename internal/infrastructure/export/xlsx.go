// Package export renders count sheets as XLSX workbooks.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"inventario/internal/domain/stocktake"
)

// ContentType is the MIME type of the produced workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	sheetName = "Count"
	headerRow = 4
)

var columns = []string{
	"Line", "Code", "Product", "System qty", "Counted qty",
	"Variance", "Unit cost", "Valued variance", "Notes", "Adjusted",
}

// FileName returns the attachment name for a session's sheet.
func FileName(s *stocktake.Session) string {
	return fmt.Sprintf("%s.xlsx", s.Number)
}

// WriteCountSheet writes the session header and one row per count line to w.
// Pending lines leave the counted and variance cells empty.
func WriteCountSheet(w io.Writer, s *stocktake.Session, lines []stocktake.DetailView) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	meta := [][]any{
		{s.Number, s.Name},
		{"Status", string(s.Status), "Started", s.StartedAt.Format("2006-01-02 15:04")},
	}
	for i, row := range meta {
		if err := setRow(f, i+1, row); err != nil {
			return err
		}
	}

	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := setRow(f, headerRow, header); err != nil {
		return err
	}

	for i, l := range lines {
		row := []any{
			l.LineNo, l.ProductCode, l.ProductName, l.SystemQuantity,
			nil, nil, l.UnitCost.ToMoney().InexactFloat64(), nil,
			deref(l.Notes), l.Adjusted,
		}
		if l.CountedQuantity != nil {
			row[4] = *l.CountedQuantity
		}
		if l.Variance != nil {
			row[5] = *l.Variance
			row[7] = l.ValuedVariance().InexactFloat64()
		}
		if err := setRow(f, headerRow+1+i, row); err != nil {
			return err
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      headerRow,
		TopLeftCell: fmt.Sprintf("A%d", headerRow+1),
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
