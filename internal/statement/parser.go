// Package statement turns uploaded bank-statement bytes into raw rows.
package statement

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/dvloznov/statement-graph/internal/domain"
	"github.com/dvloznov/statement-graph/internal/logger"
)

// Format identifies a supported statement file type.
type Format string

const (
	FormatCSV  Format = ".csv"
	FormatXLS  Format = ".xls"
	FormatXLSX Format = ".xlsx"
	FormatPDF  Format = ".pdf"
)

// SupportedExtensions lists the extensions Parse accepts.
var SupportedExtensions = []Format{FormatCSV, FormatXLS, FormatXLSX, FormatPDF}

// DetectFormat maps a filename onto a supported format by extension only.
func DetectFormat(filename string) (Format, error) {
	ext := Format(strings.ToLower(filepath.Ext(strings.TrimSpace(filename))))
	for _, f := range SupportedExtensions {
		if f == ext {
			return f, nil
		}
	}
	if ext == "" {
		return "", domain.NewError(domain.KindUnsupportedFormat, "file %q has no extension", filename)
	}
	return "", domain.NewError(domain.KindUnsupportedFormat, "unsupported file type %q", string(ext))
}

// Parse decodes a statement into a RawTable. It fails with UnsupportedFormat
// for unknown extensions and EmptyInput when the payload yields no data rows.
func Parse(ctx context.Context, data []byte, filename string) (*domain.RawTable, error) {
	log := logger.FromContext(ctx)

	format, err := DetectFormat(filename)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, domain.NewError(domain.KindEmptyInput, "%s is empty", filename)
	}

	var table *domain.RawTable
	switch format {
	case FormatCSV:
		table, err = parseCSV(data)
	case FormatXLSX:
		table, err = parseXLSX(data)
	case FormatXLS:
		table, err = parseXLS(data)
	case FormatPDF:
		table, err = parsePDF(data)
	}
	if err != nil {
		return nil, domain.WrapError(domain.KindEmptyInput, err, "could not decode "+filename)
	}

	if table.Skipped > 0 {
		log.Debug().
			Str("filename", filename).
			Int("skipped_lines", table.Skipped).
			Msg("Skipped unparsable statement lines")
	}

	if table.Len() == 0 {
		return nil, domain.NewError(domain.KindEmptyInput, "%s contains no data rows", filename)
	}

	log.Debug().
		Str("filename", filename).
		Str("format", string(format)).
		Int("rows", table.Len()).
		Strs("columns", table.Columns).
		Msg("Parsed statement")

	return table, nil
}
