// Package spreadsheet reads uploaded price sheets and writes export and outcome workbooks.
package spreadsheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/stanstork/pricesync-api/internal/models"
	"github.com/xuri/excelize/v2"
)

const (
	ExportFilename = "product_prices_export.xlsx"
	ExportSheet    = "Products"
	FailedSheet    = "Failed Updates"
	SkippedSheet   = "Skipped Updates"
	defaultSheet   = "Sheet1"
)

var ErrNoHeader = errors.New("spreadsheet has no header row")

// Table is an uploaded sheet: the declared header order and one ImportRow per data row.
type Table struct {
	Headers []string
	Rows    []models.ImportRow
}

// ReadXLSX reads the first worksheet of an XLSX document.
func ReadXLSX(r io.Reader) (Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Table{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, ErrNoHeader
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return Table{}, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return tableFromRecords(records)
}

// ReadCSV reads a comma-separated sheet with a header row.
func ReadCSV(r io.Reader) (Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("read csv: %w", err)
	}
	return tableFromRecords(records)
}

// Read picks the reader by file name.
func Read(filename string, r io.Reader) (Table, error) {
	if strings.HasSuffix(strings.ToLower(filename), ".csv") {
		return ReadCSV(r)
	}
	return ReadXLSX(r)
}

func tableFromRecords(records [][]string) (Table, error) {
	if len(records) == 0 {
		return Table{}, ErrNoHeader
	}
	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}
	table := Table{Headers: headers}
	for _, record := range records[1:] {
		if blank(record) {
			continue
		}
		table.Rows = append(table.Rows, models.NewImportRow(headers, record))
	}
	return table, nil
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// WriteExport renders export rows as the price sheet. Nil prices are left empty.
func WriteExport(rows []models.ExportRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(defaultSheet, ExportSheet); err != nil {
		return nil, err
	}
	if err := writeHeader(f, ExportSheet, models.ExportColumns); err != nil {
		return nil, err
	}

	for i, row := range rows {
		values := []interface{}{row.ProductTitle, row.SKU, row.Option1, row.Option2, row.Option3, nil, nil}
		if row.Price != nil {
			values[5] = *row.Price
		}
		if row.CompareAtPrice != nil {
			values[6] = *row.CompareAtPrice
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(ExportSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return finish(f, len(models.ExportColumns))
}

// WriteRows renders outcome rows (failed or skipped) under sheet. The header
// is the union of the rows' columns in first-seen order.
func WriteRows(sheet string, rows []models.ImportRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(defaultSheet, sheet); err != nil {
		return nil, err
	}
	headers := columnsOf(rows)
	if err := writeHeader(f, sheet, headers); err != nil {
		return nil, err
	}
	for i, row := range rows {
		values := make([]interface{}, len(headers))
		for j, h := range headers {
			v, _ := row.Get(h)
			values[j] = v
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return finish(f, len(headers))
}

func columnsOf(rows []models.ImportRow) []string {
	seen := make(map[string]struct{})
	var headers []string
	for _, row := range rows {
		for _, cell := range row.Cells {
			if _, ok := seen[cell.Column]; ok {
				continue
			}
			seen[cell.Column] = struct{}{}
			headers = append(headers, cell.Column)
		}
	}
	return headers
}

func writeHeader(f *excelize.File, sheet string, headers []string) error {
	style, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		f.SetCellStyle(sheet, cell, cell, style)
	}
	return nil
}

func finish(f *excelize.File, columns int) ([]byte, error) {
	sheet := f.GetSheetName(0)
	for i := 1; i <= columns; i++ {
		colName, _ := excelize.ColumnNumberToName(i)
		f.SetColWidth(sheet, colName, colName, 20)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}
	return buf.Bytes(), nil
}
