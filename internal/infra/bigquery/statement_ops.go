package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"

	"github.com/dvloznov/statement-graph/internal/domain"
	"github.com/dvloznov/statement-graph/internal/logger"
)

const (
	statementBatchesTable      = "statement_batches"
	statementTransactionsTable = "statement_transactions"

	// insertChunkSize keeps streaming inserts under the request size limit.
	insertChunkSize = 500
)

// BatchExporter copies ingested batches into the warehouse.
type BatchExporter interface {
	ExportBatch(ctx context.Context, b domain.Batch, records []domain.Transaction, res domain.MaterializeResult, rawURI string) error
}

// Exporter is the BigQuery implementation of BatchExporter. It holds one
// shared client.
type Exporter struct {
	client  *bigquery.Client
	project string
	dataset string
}

// NewExporter creates a BigQuery client for project.
func NewExporter(ctx context.Context, project, dataset string, opts ...option.ClientOption) (*Exporter, error) {
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewExporter: creating client: %w", err)
	}
	return &Exporter{client: client, project: project, dataset: dataset}, nil
}

// Close closes the BigQuery client connection.
func (e *Exporter) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// ExportBatch streams the batch row and its transaction rows.
func (e *Exporter) ExportBatch(ctx context.Context, b domain.Batch, records []domain.Transaction, res domain.MaterializeResult, rawURI string) error {
	log := logger.FromContext(ctx)

	batchRow, err := NewStatementBatchRow(b, res, rawURI)
	if err != nil {
		return err
	}
	if err := InsertStatementBatchWithClient(ctx, e.client, e.project, e.dataset, batchRow); err != nil {
		return err
	}
	rows := NewStatementTransactionRows(b, records)
	if err := InsertStatementTransactionsWithClient(ctx, e.client, e.project, e.dataset, rows); err != nil {
		return err
	}

	log.Info().
		Str("batch_id", b.BatchID).
		Int("rows", len(rows)).
		Str("dataset", e.dataset).
		Msg("Exported batch to BigQuery")
	return nil
}

// InsertStatementBatchWithClient inserts one batch row into statement_batches.
func InsertStatementBatchWithClient(ctx context.Context, client *bigquery.Client, project, dataset string, row *StatementBatchRow) error {
	inserter := client.DatasetInProject(project, dataset).Table(statementBatchesTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("InsertStatementBatch: inserting row: %w", err)
	}
	return nil
}

// InsertStatementTransactionsWithClient inserts rows into
// statement_transactions in chunks.
func InsertStatementTransactionsWithClient(ctx context.Context, client *bigquery.Client, project, dataset string, rows []*StatementTransactionRow) error {
	if len(rows) == 0 {
		return nil
	}
	inserter := client.DatasetInProject(project, dataset).Table(statementTransactionsTable).Inserter()
	for start := 0; start < len(rows); start += insertChunkSize {
		end := min(start+insertChunkSize, len(rows))
		if err := inserter.Put(ctx, rows[start:end]); err != nil {
			return fmt.Errorf("InsertStatementTransactions: inserting rows %d-%d: %w", start, end, err)
		}
	}
	return nil
}
