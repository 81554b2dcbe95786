package statement

import (
	"strings"

	"github.com/dvloznov/statement-graph/internal/domain"
	"github.com/dvloznov/statement-graph/internal/normalize"
)

// ParseTextLines tokenizes extracted statement text into rows with columns
// date, description and amount.
//
// The first non-empty line is treated as a header and discarded. Every other
// line is split on whitespace; it needs at least three tokens. The first
// token is the date, the last is the amount and everything between is the
// description. Lines whose amount token does not parse are counted in
// Skipped and otherwise ignored.
func ParseTextLines(text string) *domain.RawTable {
	table := &domain.RawTable{Columns: append([]string(nil), domain.RequiredFields...)}

	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) <= 1 {
		return table
	}

	for _, line := range lines[1:] {
		tokens := strings.Fields(line)
		if len(tokens) < 3 {
			table.Skipped++
			continue
		}
		amount := normalize.CleanAmount(tokens[len(tokens)-1])
		if _, err := normalize.ParseAmount(amount); err != nil {
			table.Skipped++
			continue
		}
		table.Rows = append(table.Rows, domain.RawRow{
			domain.FieldDate:        tokens[0],
			domain.FieldDescription: strings.Join(tokens[1:len(tokens)-1], " "),
			domain.FieldAmount:      amount,
		})
	}
	return table
}
