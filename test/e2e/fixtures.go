package e2e

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"
)

// WriteCSV writes the corpus to path as a CSV file with a header row.
func WriteCSV(path string, papers []Paper) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		_ = f.Close()
		return err
	}
	for _, p := range papers {
		if err := w.Write(p.Row()); err != nil {
			_ = f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteXLSX writes the corpus to path as a single-sheet workbook with a header row.
func WriteXLSX(path string, papers []Paper) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &Header); err != nil {
		return err
	}
	for i, p := range papers {
		row := p.Row()
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}
