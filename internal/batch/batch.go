// Package batch stamps a set of categorized transactions with a batch id and
// computes the batch summary.
package batch

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-graph/internal/domain"
)

// IDTimeLayout is the timestamp suffix of a batch id, second resolution.
const IDTimeLayout = "20060102_150405"

const defaultStem = "statement"

// NewBatchID derives a batch id from the filename stem and the ingestion time.
// Two uploads of the same filename within one second collide.
func NewBatchID(filename string, now time.Time) string {
	return sanitizeStem(filename) + "_" + now.UTC().Format(IDTimeLayout)
}

func sanitizeStem(filename string) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(filename), `\`, "/"))
	stem := strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))

	var b strings.Builder
	lastUnderscore := false
	for _, r := range stem {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" || out == "." {
		return defaultStem
	}
	return out
}

// Assemble builds the Batch for one upload and returns a copy of records with
// BatchID set on each.
func Assemble(records []domain.Transaction, filename string, now time.Time) (domain.Batch, []domain.Transaction, error) {
	if len(records) == 0 {
		return domain.Batch{}, nil, domain.NewError(domain.KindEmptyResult, "no transactions to assemble for %s", filename)
	}

	id := NewBatchID(filename, now)
	enriched := make([]domain.Transaction, len(records))
	for i, r := range records {
		r.BatchID = id
		enriched[i] = r
	}

	return domain.Batch{
		BatchID:          id,
		Filename:         filename,
		UploadedAt:       now.UTC(),
		TransactionCount: len(enriched),
		Summary:          Summarize(enriched),
	}, enriched, nil
}

// Summarize computes aggregate statistics over txs. Sums use decimal
// arithmetic and every reported amount is rounded to cents. Categories with
// no transactions do not appear.
func Summarize(txs []domain.Transaction) domain.BatchSummary {
	s := domain.BatchSummary{
		TransactionCount: len(txs),
		Categories:       map[string]domain.CategoryStats{},
	}
	if len(txs) == 0 {
		return s
	}

	type acc struct {
		count int
		total decimal.Decimal
	}
	perCategory := map[string]*acc{}

	total := decimal.Zero
	minAmt, maxAmt := txs[0].Amount, txs[0].Amount
	for _, tx := range txs {
		amt := decimal.NewFromFloat(tx.Amount)
		total = total.Add(amt)

		if tx.Amount < minAmt {
			minAmt = tx.Amount
		}
		if tx.Amount > maxAmt {
			maxAmt = tx.Amount
		}
		switch {
		case tx.Amount > 0:
			s.PositiveTransactions++
		case tx.Amount < 0:
			s.NegativeTransactions++
		}

		cat := tx.Category
		if cat == "" {
			cat = domain.CategoryOther
		}
		a, ok := perCategory[cat]
		if !ok {
			a = &acc{}
			perCategory[cat] = a
		}
		a.count++
		a.total = a.total.Add(amt)
	}

	s.TotalAmount = cents(total)
	s.AverageAmount = cents(total.Div(decimal.NewFromInt(int64(len(txs)))))
	s.MinAmount = cents(decimal.NewFromFloat(minAmt))
	s.MaxAmount = cents(decimal.NewFromFloat(maxAmt))

	for name, a := range perCategory {
		s.Categories[name] = domain.CategoryStats{
			Count:   a.count,
			Total:   cents(a.total),
			Average: cents(a.total.Div(decimal.NewFromInt(int64(a.count)))),
		}
	}
	return s
}

func cents(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
