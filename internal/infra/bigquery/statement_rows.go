package bigquery

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-graph/internal/domain"
	"github.com/dvloznov/statement-graph/internal/graph"
)

// StatementBatchRow is one row of statement_batches.
type StatementBatchRow struct {
	BatchID  string `bigquery:"batch_id"` // REQUIRED
	Filename string `bigquery:"filename"` // REQUIRED

	UploadTS time.Time `bigquery:"upload_ts"` // REQUIRED

	TransactionCount int64    `bigquery:"transaction_count"` // REQUIRED
	TotalAmount      *big.Rat `bigquery:"total_amount"`      // REQUIRED NUMERIC

	NodesCreated         int64 `bigquery:"nodes_created"`         // NULLABLE
	RelationshipsCreated int64 `bigquery:"relationships_created"` // NULLABLE

	RawURI bigquery.NullString `bigquery:"raw_uri"` // NULLABLE

	Summary bigquery.NullJSON `bigquery:"summary"` // NULLABLE JSON
}

// StatementTransactionRow is one row of statement_transactions.
type StatementTransactionRow struct {
	BatchID         string `bigquery:"batch_id"`          // REQUIRED
	StatementLineNo int64  `bigquery:"statement_line_no"` // REQUIRED

	TransactionDate bigquery.NullDate `bigquery:"transaction_date"` // NULLABLE, set when the raw date is ISO
	RawDate         string            `bigquery:"raw_date"`         // REQUIRED

	Description string   `bigquery:"description"` // REQUIRED
	Amount      *big.Rat `bigquery:"amount"`      // REQUIRED NUMERIC

	CategoryName string `bigquery:"category_name"` // REQUIRED
	MerchantName string `bigquery:"merchant_name"` // REQUIRED

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

// NewStatementBatchRow builds the batch row for an ingested upload.
func NewStatementBatchRow(b domain.Batch, res domain.MaterializeResult, rawURI string) (*StatementBatchRow, error) {
	summary, err := json.Marshal(b.Summary)
	if err != nil {
		return nil, fmt.Errorf("NewStatementBatchRow: marshal summary: %w", err)
	}
	row := &StatementBatchRow{
		BatchID:              b.BatchID,
		Filename:             b.Filename,
		UploadTS:             b.UploadedAt.UTC(),
		TransactionCount:     int64(b.TransactionCount),
		TotalAmount:          decimal.NewFromFloat(b.Summary.TotalAmount).Round(2).Rat(),
		NodesCreated:         int64(res.NodesCreated),
		RelationshipsCreated: int64(res.RelationshipsCreated),
		Summary:              bigquery.NullJSON{JSONVal: string(summary), Valid: true},
	}
	if rawURI != "" {
		row.RawURI = bigquery.NullString{StringVal: rawURI, Valid: true}
	}
	return row, nil
}

// NewStatementTransactionRows builds one row per record, numbered from 1 in
// statement order.
func NewStatementTransactionRows(b domain.Batch, records []domain.Transaction) []*StatementTransactionRow {
	rows := make([]*StatementTransactionRow, 0, len(records))
	created := b.UploadedAt.UTC()
	for i, r := range records {
		row := &StatementTransactionRow{
			BatchID:         b.BatchID,
			StatementLineNo: int64(i + 1),
			RawDate:         r.Date,
			Description:     r.Description,
			Amount:          decimal.NewFromFloat(r.Amount).Rat(),
			CategoryName:    r.Category,
			MerchantName:    graph.MerchantName(r.Description),
			CreatedTS:       created,
		}
		if d, err := civil.ParseDate(r.Date); err == nil {
			row.TransactionDate = bigquery.NullDate{Date: d, Valid: true}
		}
		rows = append(rows, row)
	}
	return rows
}
