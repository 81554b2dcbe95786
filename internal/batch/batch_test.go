package batch

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/dvloznov/statement-graph/internal/domain"
)

func TestNewBatchID(t *testing.T) {
	now := time.Date(2024, 1, 5, 13, 4, 5, 0, time.FixedZone("CET", 3600))

	tests := []struct {
		filename string
		want     string
	}{
		{"jan.csv", "jan_20240105_120405"},
		{"My Statement (Jan).XLSX", "my_statement_jan_20240105_120405"},
		{"/tmp/uploads/acct-2024.pdf", "acct-2024_20240105_120405"},
		{`C:\Users\me\feb.xls`, "feb_20240105_120405"},
		{"....csv", "statement_20240105_120405"},
		{"", "statement_20240105_120405"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := NewBatchID(tt.filename, now); got != tt.want {
				t.Errorf("NewBatchID(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}

func TestAssemble_Scenario(t *testing.T) {
	records := []domain.Transaction{
		{Date: "2024-01-05", Description: "Starbucks Coffee", Amount: -4.50, Category: "dining"},
		{Date: "2024-01-05", Description: "Amazon Marketplace", Amount: -32.10, Category: "shopping"},
	}
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)

	b, enriched, err := Assemble(records, "jan.csv", now)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if b.BatchID != "jan_20240105_100000" {
		t.Errorf("BatchID = %q", b.BatchID)
	}
	if b.TransactionCount != 2 || b.Filename != "jan.csv" || !b.UploadedAt.Equal(now) {
		t.Errorf("unexpected batch: %+v", b)
	}
	for i, tx := range enriched {
		if tx.BatchID != b.BatchID {
			t.Errorf("enriched[%d].BatchID = %q", i, tx.BatchID)
		}
	}
	if records[0].BatchID != "" {
		t.Error("Assemble must not modify its input")
	}

	s := b.Summary
	if s.TotalAmount != -36.60 {
		t.Errorf("TotalAmount = %v, want -36.60", s.TotalAmount)
	}
	if s.NegativeTransactions != 2 || s.PositiveTransactions != 0 {
		t.Errorf("sign counts = +%d/-%d", s.PositiveTransactions, s.NegativeTransactions)
	}
	if s.MinAmount != -32.10 || s.MaxAmount != -4.50 {
		t.Errorf("min/max = %v/%v", s.MinAmount, s.MaxAmount)
	}
	if s.AverageAmount != -18.30 {
		t.Errorf("AverageAmount = %v, want -18.30", s.AverageAmount)
	}
}

func TestAssemble_Empty(t *testing.T) {
	_, _, err := Assemble(nil, "x.csv", time.Now())
	if !errors.Is(err, domain.ErrEmptyResult) {
		t.Fatalf("expected EmptyResult, got %v", err)
	}
}

func TestSummarize_CategoryTotalsAddUp(t *testing.T) {
	txs := []domain.Transaction{
		{Amount: 0.1, Category: "a"},
		{Amount: 0.2, Category: "a"},
		{Amount: -19.99, Category: "b"},
		{Amount: 2500, Category: "income"},
		{Amount: 0, Category: "b"},
		{Amount: 3.33, Category: ""},
	}
	s := Summarize(txs)

	var sum float64
	count := 0
	for _, c := range s.Categories {
		sum += c.Total
		count += c.Count
	}
	if math.Abs(sum-s.TotalAmount) > 1e-6 {
		t.Errorf("category totals %v != batch total %v", sum, s.TotalAmount)
	}
	if count != len(txs) {
		t.Errorf("category counts %d != %d", count, len(txs))
	}
	if s.Categories["a"].Total != 0.3 {
		t.Errorf("a total = %v, want 0.3", s.Categories["a"].Total)
	}
	if _, ok := s.Categories[domain.CategoryOther]; !ok {
		t.Error("uncategorized records should be summarized as other")
	}
	if _, ok := s.Categories["unused"]; ok {
		t.Error("zero-count categories must be omitted")
	}
	if s.PositiveTransactions != 4 || s.NegativeTransactions != 1 {
		t.Errorf("sign counts = +%d/-%d", s.PositiveTransactions, s.NegativeTransactions)
	}
}
