// Package normalize maps raw statement rows onto canonical transactions.
package normalize

import (
	"context"
	"strings"

	"github.com/dvloznov/statement-graph/internal/domain"
	"github.com/dvloznov/statement-graph/internal/logger"
)

// columnHints lists, per canonical field, the substrings that identify a
// renamed column. Fields are resolved in domain.RequiredFields order.
var columnHints = map[string][]string{
	domain.FieldDate:        {"date"},
	domain.FieldDescription: {"desc", "narr", "part", "ref", "note"},
	domain.FieldAmount:      {"amount", "amt", "sum", "value", "debit", "credit"},
}

// Report describes what happened to the rows of one table.
type Report struct {
	Input         int               `json:"input"`
	Kept          int               `json:"kept"`
	DroppedAmount int               `json:"dropped_amount"`
	DroppedEmpty  int               `json:"dropped_empty"`
	Mapping       map[string]string `json:"mapping"`
}

// Dropped returns the number of rows that did not become transactions.
func (r Report) Dropped() int {
	return r.DroppedAmount + r.DroppedEmpty
}

// ResolveColumns maps each canonical field to a source column. An exact name
// match always wins; otherwise the leftmost column whose name contains one of
// the field's hints is used, skipping columns already claimed by another
// field. Unresolved fields are returned in canonical order.
func ResolveColumns(columns []string) (mapping map[string]string, missing []string) {
	mapping = make(map[string]string, len(domain.RequiredFields))
	claimed := make(map[string]bool, len(columns))

	normalized := make([]string, len(columns))
	for i, c := range columns {
		normalized[i] = strings.ToLower(strings.TrimSpace(c))
	}

	for _, field := range domain.RequiredFields {
		for _, c := range normalized {
			if c == field {
				mapping[field] = c
				claimed[c] = true
				break
			}
		}
	}

	for _, field := range domain.RequiredFields {
		if _, ok := mapping[field]; ok {
			continue
		}
	columns:
		for _, c := range normalized {
			if claimed[c] {
				continue
			}
			for _, hint := range columnHints[field] {
				if strings.Contains(c, hint) {
					mapping[field] = c
					claimed[c] = true
					break columns
				}
			}
		}
		if _, ok := mapping[field]; !ok {
			missing = append(missing, field)
		}
	}
	return mapping, missing
}

// Normalize is NormalizeWithReport without the report.
func Normalize(ctx context.Context, table *domain.RawTable) ([]domain.Transaction, error) {
	txs, _, err := NormalizeWithReport(ctx, table)
	return txs, err
}

// NormalizeWithReport resolves the table's columns and converts every row it
// can into a Transaction. Rows with an unparsable amount or an empty date or
// description are dropped and counted. It fails with MissingColumns when a
// canonical field cannot be resolved and with EmptyResult when no row survives.
func NormalizeWithReport(ctx context.Context, table *domain.RawTable) ([]domain.Transaction, Report, error) {
	log := logger.FromContext(ctx)
	report := Report{Input: table.Len()}

	if table == nil {
		return nil, report, domain.NewError(domain.KindEmptyResult, "no rows to normalize")
	}

	mapping, missing := ResolveColumns(table.Columns)
	report.Mapping = mapping
	if len(missing) > 0 {
		err := domain.NewError(domain.KindMissingColumns, "could not resolve required columns from %v", table.Columns)
		err.Missing = missing
		return nil, report, err
	}

	txs := make([]domain.Transaction, 0, len(table.Rows))
	for i, row := range table.Rows {
		date := strings.TrimSpace(lookup(row, mapping[domain.FieldDate]))
		desc := strings.TrimSpace(lookup(row, mapping[domain.FieldDescription]))
		if date == "" || desc == "" {
			report.DroppedEmpty++
			log.Debug().Int("row", i).Msg("Dropped row with empty date or description")
			continue
		}

		raw := lookup(row, mapping[domain.FieldAmount])
		amount, err := ParseAmount(raw)
		if err != nil {
			report.DroppedAmount++
			log.Debug().
				Int("row", i).
				Str("kind", string(domain.KindAmountParseFailure)).
				Err(err).
				Msg("Dropped row with unparsable amount")
			continue
		}

		txs = append(txs, domain.Transaction{
			Date:        date,
			Description: desc,
			Amount:      amount,
		})
	}
	report.Kept = len(txs)

	if report.Dropped() > 0 {
		log.Info().
			Int("input", report.Input).
			Int("dropped_amount", report.DroppedAmount).
			Int("dropped_empty", report.DroppedEmpty).
			Msg("Dropped rows during normalization")
	}

	if len(txs) == 0 {
		return nil, report, domain.NewError(domain.KindEmptyResult, "all %d rows were dropped", report.Input)
	}
	return txs, report, nil
}

// lookup reads a cell by column name, tolerating rows keyed by un-normalized
// header names.
func lookup(row domain.RawRow, column string) string {
	if v, ok := row[column]; ok {
		return v
	}
	for k, v := range row {
		if strings.ToLower(strings.TrimSpace(k)) == column {
			return v
		}
	}
	return ""
}
