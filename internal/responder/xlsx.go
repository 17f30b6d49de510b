package responder

import (
	"fmt"
	"net/http"

	"github.com/xuri/excelize/v2"

	"request_pipeline/internal/web"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Table is the result type rendered by the XLSX responder.
type Table struct {
	Sheet    string
	Columns  []string
	Rows     [][]any
	Filename string
}

// XLSXProps are per-route options.
type XLSXProps struct {
	// Filename used when the table does not name one.
	Filename string
}

// XLSX renders a Table as a spreadsheet download.
type XLSX struct {
	name string
}

// NewXLSX creates a spreadsheet responder.
func NewXLSX(name string) *XLSX {
	return &XLSX{name: name}
}

func (x *XLSX) Name() string {
	return x.name
}

func (x *XLSX) Respond(ctx *web.Context, result any, props any) error {
	table, ok := result.(*Table)
	if !ok {
		if v, isValue := result.(Table); isValue {
			table = &v
		} else {
			return web.Errorf(http.StatusNotAcceptable, "xlsx responder cannot render %T", result)
		}
	}

	raw, err := renderTable(table)
	if err != nil {
		return err
	}

	filename := table.Filename
	if filename == "" {
		if p, ok := props.(XLSXProps); ok {
			filename = p.Filename
		}
	}
	if filename == "" {
		filename = "export.xlsx"
	}

	ctx.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	ctx.End(http.StatusOK, xlsxContentType, raw)
	return nil
}

func renderTable(t *Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := t.Sheet
	if sheet == "" {
		sheet = "Sheet1"
	}
	if sheet != "Sheet1" {
		index, err := f.NewSheet(sheet)
		if err != nil {
			return nil, fmt.Errorf("create sheet: %w", err)
		}
		f.SetActiveSheet(index)
		f.DeleteSheet("Sheet1")
	}

	for i, h := range t.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	if len(t.Columns) > 0 {
		style, _ := f.NewStyle(&excelize.Style{
			Font: &excelize.Font{Bold: true},
			Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
		})
		last, _ := excelize.CoordinatesToCellName(len(t.Columns), 1)
		f.SetCellStyle(sheet, "A1", last, style)
	}

	for r, row := range t.Rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
