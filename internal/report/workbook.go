package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"fpdataset/internal/processor"
)

// WriteWorkbook saves the run summary and the per-window statistics to an
// xlsx file with a summary sheet and a batches sheet.
func WriteWorkbook(path string, st processor.Stats) error {
	x := excelize.NewFile()
	defer x.Close()

	var firstErr error
	set := func(sheet string, c, r int, v interface{}) {
		if firstErr != nil {
			return
		}
		cell, err := excelize.CoordinatesToCellName(c, r)
		if err == nil {
			err = x.SetCellValue(sheet, cell, v)
		}
		if err != nil {
			firstErr = fmt.Errorf("sheet %s: %w", sheet, err)
		}
	}

	// The default sheet becomes the active summary sheet.
	if err := x.SetSheetName("Sheet1", "summary"); err != nil {
		return err
	}
	for r, row := range summaryRows(st) {
		set("summary", 1, r+1, row.label)
		set("summary", 2, r+1, row.value)
	}

	if _, err := x.NewSheet("batches"); err != nil {
		return err
	}
	for c, h := range []string{"start_id", "end_id", "rows", "grid_mismatches", "fetch_ms", "match_ms"} {
		set("batches", c+1, 1, h)
	}
	for i, b := range st.Batches {
		r := i + 2
		set("batches", 1, r, b.Start)
		set("batches", 2, r, b.End)
		set("batches", 3, r, b.Rows)
		set("batches", 4, r, b.GridMismatches)
		set("batches", 5, r, ms(b.Fetch))
		set("batches", 6, r, ms(b.Match))
	}
	if firstErr != nil {
		return firstErr
	}

	if err := x.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}
