// Package pipeline wires the ingestion stages into one upload run.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-graph/internal/archive"
	"github.com/dvloznov/statement-graph/internal/categorize"
	"github.com/dvloznov/statement-graph/internal/domain"
	infra "github.com/dvloznov/statement-graph/internal/infra/bigquery"
	"github.com/dvloznov/statement-graph/internal/logger"
	"github.com/dvloznov/statement-graph/internal/normalize"
)

// StatusSuccess is the status reported for a completed upload.
const StatusSuccess = "success"

// UploadResult is returned to the caller after a successful upload.
type UploadResult struct {
	Status                string                   `json:"status"`
	Filename              string                   `json:"filename"`
	BatchID               string                   `json:"batch_id"`
	TransactionsProcessed int                      `json:"transactions_processed"`
	Summary               domain.BatchSummary      `json:"summary"`
	Graph                 domain.MaterializeResult `json:"graph"`
	RowsDropped           int                      `json:"rows_dropped"`
	ArchiveURI            string                   `json:"archive_uri,omitempty"`
	BackupURI             string                   `json:"backup_uri,omitempty"`
}

// Preview is the dry-run output: everything up to the graph write.
type Preview struct {
	Batch        domain.Batch         `json:"batch"`
	Report       normalize.Report     `json:"report"`
	Transactions []domain.Transaction `json:"transactions"`
}

// Deps holds the collaborators of an Ingestor. Archiver and Exporter are
// optional; Backup has no effect without an Archiver.
type Deps struct {
	Categorizer  *categorize.Categorizer
	Materializer Materializer
	Archiver     archive.Archiver
	Exporter     infra.BatchExporter
	Backup       bool
}

// Ingestor runs uploads through the ingestion pipeline.
type Ingestor struct {
	deps Deps
	now  func() time.Time
}

// NewIngestor creates an Ingestor. A nil Categorizer uses the embedded rules.
func NewIngestor(deps Deps) *Ingestor {
	if deps.Categorizer == nil {
		deps.Categorizer = categorize.Default()
	}
	return &Ingestor{deps: deps, now: time.Now}
}

// NewStatementIngestionPipeline creates the full upload pipeline.
func (in *Ingestor) NewStatementIngestionPipeline() *Pipeline {
	steps := []PipelineStep{&ArchiveRawStep{Archiver: in.deps.Archiver}}
	steps = append(steps, in.previewSteps()...)
	steps = append(steps, &MaterializeStep{Materializer: in.deps.Materializer})
	if in.deps.Backup {
		steps = append(steps, &BackupStep{Archiver: in.deps.Archiver})
	}
	steps = append(steps, &ExportStep{Exporter: in.deps.Exporter})
	return NewPipeline(steps...)
}

func (in *Ingestor) previewSteps() []PipelineStep {
	return []PipelineStep{
		&ParseStep{},
		&NormalizeStep{},
		&CategorizeStep{Categorizer: in.deps.Categorizer},
		&AssembleStep{},
	}
}

// Ingest parses, categorizes and materializes one uploaded statement.
func (in *Ingestor) Ingest(ctx context.Context, filename string, data []byte) (*UploadResult, error) {
	state := NewPipelineState(filename, data, in.now())
	ctx, log := withUploadLogger(ctx, state)

	log.Info().Int("bytes", len(data)).Msg("Starting statement ingestion")
	if err := in.NewStatementIngestionPipeline().Execute(ctx, state); err != nil {
		log.Error().Err(err).Str("kind", string(domain.KindOf(err))).Msg("Statement ingestion failed")
		return nil, err
	}

	result := &UploadResult{
		Status:                StatusSuccess,
		Filename:              filename,
		BatchID:               state.Batch.BatchID,
		TransactionsProcessed: state.Batch.TransactionCount,
		Summary:               state.Batch.Summary,
		Graph:                 state.Graph,
		RowsDropped:           state.Report.Dropped() + state.Table.Skipped,
		ArchiveURI:            state.ArchiveURI,
		BackupURI:             state.BackupURI,
	}
	log.Info().
		Int("transactions", result.TransactionsProcessed).
		Int("rows_dropped", result.RowsDropped).
		Int("nodes_created", result.Graph.NodesCreated).
		Int("relationships_created", result.Graph.RelationshipsCreated).
		Msg("Statement ingestion completed")
	return result, nil
}

// Preview runs the pure stages without touching the graph or the archive.
func (in *Ingestor) Preview(ctx context.Context, filename string, data []byte) (*Preview, error) {
	state := NewPipelineState(filename, data, in.now())
	ctx, _ = withUploadLogger(ctx, state)

	if err := NewPipeline(in.previewSteps()...).Execute(ctx, state); err != nil {
		return nil, err
	}
	return &Preview{Batch: state.Batch, Report: state.Report, Transactions: state.Records}, nil
}

func withUploadLogger(ctx context.Context, state *PipelineState) (context.Context, zerolog.Logger) {
	log := logger.FromContext(ctx).With().
		Str("filename", state.Filename).
		Str("batch_id", state.BatchID).
		Logger()
	return logger.WithContext(ctx, log), log
}
