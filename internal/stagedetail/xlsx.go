package stagedetail

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExportXLSX renders d as a workbook: a summary sheet of label/value rows
// and, for the semantic stage, a sheet listing the previewed chunks.
func ExportXLSX(d Detail) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const summary = "Summary"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return nil, err
	}

	write := func(sheet string, col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	write(summary, 1, 1, "Field")
	write(summary, 2, 1, "Value")
	for i, r := range d.Rows() {
		write(summary, 1, i+2, r[0])
		write(summary, 2, i+2, r[1])
	}
	_ = f.SetColWidth(summary, "A", "A", 24)
	_ = f.SetColWidth(summary, "B", "B", 48)

	if d.Semantic != nil && len(d.Semantic.Chunks) > 0 {
		const chunks = "Chunks"
		if _, err := f.NewSheet(chunks); err != nil {
			return nil, err
		}
		for i, h := range []string{"ID", "Title", "Level", "Type", "Confidence"} {
			write(chunks, i+1, 1, h)
		}
		for i, c := range d.Semantic.Chunks {
			row := i + 2
			write(chunks, 1, row, c.ID)
			write(chunks, 2, row, c.Title)
			write(chunks, 3, row, c.Level)
			write(chunks, 4, row, c.Type)
			write(chunks, 5, row, c.Confidence)
		}
		_ = f.SetColWidth(chunks, "B", "B", 48)
	}

	idx, _ := f.GetSheetIndex(summary)
	f.SetActiveSheet(idx)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
