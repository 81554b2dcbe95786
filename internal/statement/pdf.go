package statement

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/dvloznov/statement-graph/internal/domain"
)

func parsePDF(data []byte) (*domain.RawTable, error) {
	text, err := extractPDFText(data)
	if err != nil {
		return nil, err
	}
	return ParseTextLines(text), nil
}

// extractPDFText returns the document text one visual row per line. It
// prefers the row-grouped extraction and falls back to plain text when that
// yields nothing.
func extractPDFText(data []byte) (text string, err error) {
	// ledongthuc/pdf panics on a range of malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("extractPDFText: pdf reader crashed: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("extractPDFText: open: %w", err)
	}

	numPages := r.NumPage()
	if numPages == 0 {
		return "", nil
	}

	var lines []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		for _, row := range rows {
			parts := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				parts = append(parts, word.S)
			}
			if line := strings.TrimSpace(strings.Join(parts, " ")); line != "" {
				lines = append(lines, line)
			}
		}
	}
	if len(lines) > 0 {
		return strings.Join(lines, "\n"), nil
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extractPDFText: plain text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("extractPDFText: read plain text: %w", err)
	}
	return string(raw), nil
}
