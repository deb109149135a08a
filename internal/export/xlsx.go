package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"pricememory/internal/core"
)

const xlsxSheet = "Purchases"

// WriteXLSX writes the backup as a single-sheet workbook with a styled
// header row and numeric amounts.
func WriteXLSX(w io.Writer, purchases []core.Purchase, loc *time.Location) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for i, h := range Header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(xlsxSheet, cell, h); err != nil {
			return fmt.Errorf("set header %s: %w", h, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#0F766E"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetCellStyle(xlsxSheet, "A1", "D1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return fmt.Errorf("create amount style: %w", err)
	}

	for i, p := range purchases {
		row := i + 2
		values := []any{
			formatDate(p.PurchasedAt, loc),
			p.ItemName,
			p.Amount.InexactFloat64(),
			p.Note,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return fmt.Errorf("row %d cell: %w", row, err)
			}
			if err := f.SetCellValue(xlsxSheet, cell, v); err != nil {
				return fmt.Errorf("set %s: %w", cell, err)
			}
		}
		if err := f.SetCellStyle(xlsxSheet, fmt.Sprintf("C%d", row), fmt.Sprintf("C%d", row), amountStyle); err != nil {
			return fmt.Errorf("style amount row %d: %w", row, err)
		}
	}

	widths := map[string]float64{"A": 18, "B": 32, "C": 14, "D": 40}
	for col, width := range widths {
		if err := f.SetColWidth(xlsxSheet, col, col, width); err != nil {
			return fmt.Errorf("set width %s: %w", col, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
