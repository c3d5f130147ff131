// Package xlsxtemplate writes tabular data into a spreadsheet template.
package xlsxtemplate

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"calpadsrunner/internal/core/ports"
)

// Writer implements ports.TemplateWriter with excelize. The first row of the
// template's active sheet is the header; data rows start on row 2 and are
// cut to the header width.
type Writer struct{}

var _ ports.TemplateWriter = Writer{}

// Write copies templatePath to outPath with rows filled in.
func (Writer) Write(templatePath string, rows [][]string, outPath string) error {
	f, err := excelize.OpenFile(templatePath)
	if err != nil {
		return fmt.Errorf("open template %s: %w", templatePath, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	existing, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("read template header: %w", err)
	}
	width := 0
	if len(existing) > 0 {
		width = len(existing[0])
	}

	for i, row := range rows {
		if width > 0 && len(row) > width {
			row = row[:width]
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return err
	}
	if err := f.SaveAs(outPath); err != nil {
		return fmt.Errorf("save %s: %w", outPath, err)
	}
	return nil
}

// ReadDelimited parses a headerless extract file, e.g. the portal's
// caret-delimited ODS text files.
func ReadDelimited(r io.Reader, delim rune) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse extract: %w", err)
	}
	return rows, nil
}
