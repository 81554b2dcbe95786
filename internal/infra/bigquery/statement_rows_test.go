package bigquery

import (
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/statement-graph/internal/domain"
)

func TestNewStatementBatchRow(t *testing.T) {
	b := domain.Batch{
		BatchID:          "jan_20240105_100000",
		Filename:         "jan.csv",
		UploadedAt:       time.Date(2024, 1, 5, 11, 0, 0, 0, time.FixedZone("CET", 3600)),
		TransactionCount: 2,
		Summary:          domain.BatchSummary{TotalAmount: -36.60, TransactionCount: 2},
	}

	row, err := NewStatementBatchRow(b, domain.MaterializeResult{NodesCreated: 7, RelationshipsCreated: 7}, "gs://bucket/raw/jan.csv")
	if err != nil {
		t.Fatalf("NewStatementBatchRow() error = %v", err)
	}
	if row.TotalAmount.Cmp(big.NewRat(-366, 10)) != 0 {
		t.Errorf("TotalAmount = %s, want -36.6", row.TotalAmount.FloatString(2))
	}
	if !row.UploadTS.Equal(b.UploadedAt) || row.UploadTS.Location() != time.UTC {
		t.Errorf("UploadTS = %v", row.UploadTS)
	}
	if !row.RawURI.Valid || row.RawURI.StringVal != "gs://bucket/raw/jan.csv" {
		t.Errorf("RawURI = %+v", row.RawURI)
	}
	if !row.Summary.Valid || !strings.Contains(row.Summary.JSONVal, `"total_amount":-36.6`) {
		t.Errorf("Summary = %+v", row.Summary)
	}
	if row.NodesCreated != 7 {
		t.Errorf("NodesCreated = %d", row.NodesCreated)
	}

	noURI, err := NewStatementBatchRow(b, domain.MaterializeResult{}, "")
	if err != nil {
		t.Fatalf("NewStatementBatchRow() error = %v", err)
	}
	if noURI.RawURI.Valid {
		t.Error("RawURI should be null when nothing was archived")
	}
}

func TestNewStatementTransactionRows(t *testing.T) {
	b := domain.Batch{BatchID: "b1", UploadedAt: time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)}
	rows := NewStatementTransactionRows(b, []domain.Transaction{
		{Date: "2024-01-05", Description: "Starbucks Coffee #12", Amount: -4.5, Category: "dining"},
		{Date: "05/01/2024", Description: "Rent", Amount: 1200, Category: "housing"},
	})

	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	first := rows[0]
	if first.StatementLineNo != 1 || first.MerchantName != "Starbucks Coffee" || first.CategoryName != "dining" {
		t.Errorf("first row = %+v", first)
	}
	if !first.TransactionDate.Valid || first.TransactionDate.Date.String() != "2024-01-05" {
		t.Errorf("TransactionDate = %+v", first.TransactionDate)
	}
	if first.Amount.Cmp(big.NewRat(-9, 2)) != 0 {
		t.Errorf("Amount = %s", first.Amount.FloatString(2))
	}
	if rows[1].TransactionDate.Valid {
		t.Error("non-ISO dates must leave transaction_date null")
	}
	if rows[1].RawDate != "05/01/2024" {
		t.Errorf("RawDate = %q", rows[1].RawDate)
	}
}
