package statement

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/statement-graph/internal/domain"
)

const utf8BOM = "\ufeff"

func parseCSV(data []byte) (*domain.RawTable, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parseCSV: read record: %w", err)
		}
		rows = append(rows, rec)
	}
	return tableFromRows(rows), nil
}

func parseXLSX(data []byte) (*domain.RawTable, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parseXLSX: open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &domain.RawTable{}, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("parseXLSX: read sheet %q: %w", sheets[0], err)
	}
	return tableFromRows(rows), nil
}

func parseXLS(data []byte) (table *domain.RawTable, err error) {
	// The BIFF reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			table, err = nil, fmt.Errorf("parseXLS: malformed workbook: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("parseXLS: open workbook: %w", err)
	}
	if wb == nil || wb.NumSheets() == 0 {
		return &domain.RawTable{}, nil
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return &domain.RawTable{}, nil
	}

	var rows [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := xlsRow(sheet, i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for j := 0; j < row.LastCol(); j++ {
			cells = append(cells, row.Col(j))
		}
		rows = append(rows, cells)
	}
	return tableFromRows(rows), nil
}

// xlsRow returns nil for rows the sheet never defined. WorkSheet.Row
// dereferences the missing entry and panics.
func xlsRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

// tableFromRows treats the first non-blank row as the header. Header names
// are trimmed and lowercased; blank names become column_N and repeated names
// keep their first occurrence. Blank data rows are skipped and short rows are
// padded with empty cells.
func tableFromRows(rows [][]string) *domain.RawTable {
	table := &domain.RawTable{}

	start := 0
	for start < len(rows) && isBlankRow(rows[start]) {
		start++
	}
	if start == len(rows) {
		return table
	}

	header := rows[start]
	keys := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		name := NormalizeColumnName(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		keys[i] = name
		table.Columns = append(table.Columns, name)
	}

	for _, rec := range rows[start+1:] {
		if isBlankRow(rec) {
			continue
		}
		row := make(domain.RawRow, len(table.Columns))
		for i, key := range keys {
			if key == "" {
				continue
			}
			if i < len(rec) {
				row[key] = strings.TrimSpace(rec[i])
			} else {
				row[key] = ""
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// NormalizeColumnName trims and lowercases a header cell.
func NormalizeColumnName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func isBlankRow(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
