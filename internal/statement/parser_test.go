package statement

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/statement-graph/internal/domain"
	"github.com/dvloznov/statement-graph/internal/logger"
)

func testContext() context.Context {
	return logger.WithContext(context.Background(), logger.NewWithWriter(&bytes.Buffer{}))
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     Format
		wantErr  bool
	}{
		{name: "csv", filename: "jan.csv", want: FormatCSV},
		{name: "upper case xlsx", filename: "JAN.XLSX", want: FormatXLSX},
		{name: "legacy xls", filename: "statement.xls", want: FormatXLS},
		{name: "pdf with dots", filename: "acct.2024.02.pdf", want: FormatPDF},
		{name: "text file", filename: "notes.txt", wantErr: true},
		{name: "no extension", filename: "statement", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat(tt.filename)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DetectFormat() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, domain.ErrUnsupportedFormat) {
					t.Errorf("expected UnsupportedFormat, got %v", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("DetectFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParse_CSV(t *testing.T) {
	data := []byte("\ufeff Date ,Description,Amount\n" +
		"2024-01-05,Starbucks Coffee,-4.50\n" +
		"\n" +
		"2024-01-06,\"Amazon, Marketplace\",-25.99\n" +
		"2024-01-07,Short row\n")

	table, err := Parse(testContext(), data, "jan.csv")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	wantCols := []string{"date", "description", "amount"}
	if len(table.Columns) != len(wantCols) {
		t.Fatalf("Columns = %v, want %v", table.Columns, wantCols)
	}
	for i, c := range wantCols {
		if table.Columns[i] != c {
			t.Errorf("Columns[%d] = %q, want %q", i, table.Columns[i], c)
		}
	}

	if table.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", table.Len())
	}
	if got := table.Rows[1]["description"]; got != "Amazon, Marketplace" {
		t.Errorf("quoted description = %q", got)
	}
	if got, ok := table.Rows[2]["amount"]; !ok || got != "" {
		t.Errorf("short row amount = %q (present=%v), want empty", got, ok)
	}
}

func TestParse_CSVHeaderOnly(t *testing.T) {
	_, err := Parse(testContext(), []byte("date,description,amount\n"), "empty.csv")
	if !errors.Is(err, domain.ErrEmptyInput) {
		t.Fatalf("expected EmptyInput, got %v", err)
	}
}

func TestParse_EmptyPayload(t *testing.T) {
	_, err := Parse(testContext(), nil, "empty.csv")
	if !errors.Is(err, domain.ErrEmptyInput) {
		t.Fatalf("expected EmptyInput, got %v", err)
	}
}

func TestParse_Unsupported(t *testing.T) {
	_, err := Parse(testContext(), []byte("hello"), "notes.txt")
	if domain.KindOf(err) != domain.KindUnsupportedFormat {
		t.Fatalf("expected UnsupportedFormat, got %v", err)
	}
}

func TestParse_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"Transaction Date", "Narrative", "Value"},
		{"2024-02-01", "Rent Payment", "-1200.00"},
		{"2024-02-02", "Salary ACME", "3000"},
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("CoordinatesToCellName: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	table, err := Parse(testContext(), buf.Bytes(), "feb.xlsx")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", table.Len())
	}
	if table.Columns[0] != "transaction date" || table.Columns[1] != "narrative" {
		t.Errorf("Columns = %v", table.Columns)
	}
	if got := table.Rows[0]["narrative"]; got != "Rent Payment" {
		t.Errorf("narrative = %q", got)
	}
}

func TestParse_CorruptSpreadsheet(t *testing.T) {
	_, err := Parse(testContext(), []byte("definitely not a zip"), "broken.xlsx")
	if !errors.Is(err, domain.ErrEmptyInput) {
		t.Fatalf("expected EmptyInput, got %v", err)
	}
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	return data
}

func TestParse_XLS(t *testing.T) {
	table, err := Parse(testContext(), readFixture(t, "statement.xls"), "feb.xls")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	wantCols := []string{"date", "description", "amount"}
	if strings.Join(table.Columns, ",") != strings.Join(wantCols, ",") {
		t.Fatalf("Columns = %v, want %v", table.Columns, wantCols)
	}
	want := []domain.RawRow{
		{"date": "2024-02-01", "description": "Rent Payment", "amount": "1,200.00"},
		{"date": "2024-02-03", "description": "Coffee Shop", "amount": "-4.5"},
	}
	if !reflect.DeepEqual(table.Rows, want) {
		t.Errorf("Rows = %v, want %v", table.Rows, want)
	}
}

func TestParse_PDF(t *testing.T) {
	table, err := Parse(testContext(), readFixture(t, "statement.pdf"), "feb.pdf")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := []domain.RawRow{
		{"date": "2024-02-01", "description": "Rent Payment", "amount": "1200.00"},
		{"date": "2024-02-03", "description": "Coffee Shop", "amount": "-4.50"},
	}
	if !reflect.DeepEqual(table.Rows, want) {
		t.Errorf("Rows = %v, want %v", table.Rows, want)
	}
	// "Closing balance" has no amount token.
	if table.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", table.Skipped)
	}
}

func TestExtractPDFText_RowOrder(t *testing.T) {
	text, err := extractPDFText(readFixture(t, "statement.pdf"))
	if err != nil {
		t.Fatalf("extractPDFText() error = %v", err)
	}
	lines := strings.Split(text, "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4: %q", len(lines), text)
	}
	if lines[0] != "Date Description Amount" || lines[1] != "2024-02-01 Rent Payment 1,200.00" {
		t.Errorf("unexpected lines: %q", lines)
	}
}

func TestParse_MalformedPDF(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "not a pdf", data: []byte("plain text pretending to be a statement")},
		{name: "truncated", data: readFixture(t, "statement.pdf")[:200]},
		{name: "header only", data: []byte("%PDF-1.4\n" + strings.Repeat(" ", 120) + "\n%%EOF\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(testContext(), tt.data, "broken.pdf")
			if !errors.Is(err, domain.ErrEmptyInput) {
				t.Fatalf("expected EmptyInput, got %v", err)
			}
		})
	}
}

func TestParse_MalformedXLS(t *testing.T) {
	data := readFixture(t, "statement.xls")
	_, err := Parse(testContext(), data[:600], "broken.xls")
	if !errors.Is(err, domain.ErrEmptyInput) {
		t.Fatalf("expected EmptyInput, got %v", err)
	}
}

func TestTableFromRows(t *testing.T) {
	rows := [][]string{
		{"", ""},
		{"Date", "", "date", "Amount"},
		{"2024-01-01", "x", "dup", "1"},
		{" ", ""},
	}
	table := tableFromRows(rows)

	want := []string{"date", "column_2", "amount"}
	if len(table.Columns) != len(want) {
		t.Fatalf("Columns = %v, want %v", table.Columns, want)
	}
	for i := range want {
		if table.Columns[i] != want[i] {
			t.Errorf("Columns[%d] = %q, want %q", i, table.Columns[i], want[i])
		}
	}
	if table.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", table.Len())
	}
	if got := table.Rows[0]["date"]; got != "2024-01-01" {
		t.Errorf("duplicate header should keep first column, got %q", got)
	}
}
