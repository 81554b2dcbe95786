package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/statement-graph/internal/archive"
	"github.com/dvloznov/statement-graph/internal/batch"
	"github.com/dvloznov/statement-graph/internal/categorize"
	"github.com/dvloznov/statement-graph/internal/domain"
	infra "github.com/dvloznov/statement-graph/internal/infra/bigquery"
	"github.com/dvloznov/statement-graph/internal/logger"
	"github.com/dvloznov/statement-graph/internal/normalize"
	"github.com/dvloznov/statement-graph/internal/statement"
)

// PipelineStep represents a single step in the ingestion pipeline.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Filename string
	Data     []byte
	// Now is the upload time. The raw archive path and the assembled batch
	// both derive the batch id from it.
	Now     time.Time
	BatchID string

	Table   *domain.RawTable
	Report  normalize.Report
	Records []domain.Transaction
	Batch   domain.Batch
	Graph   domain.MaterializeResult

	ArchiveURI string
	BackupURI  string
}

// NewPipelineState prepares the state for one upload.
func NewPipelineState(filename string, data []byte, now time.Time) *PipelineState {
	return &PipelineState{
		Filename: filename,
		Data:     data,
		Now:      now,
		BatchID:  batch.NewBatchID(filename, now),
	}
}

// ArchiveRawStep stores the uploaded bytes before parsing. Failures are
// logged and do not stop the upload.
type ArchiveRawStep struct {
	Archiver archive.Archiver
}

func (s *ArchiveRawStep) Name() string { return "archive_raw" }

func (s *ArchiveRawStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Archiver == nil {
		return nil
	}
	log := logger.FromContext(ctx)
	uri, err := s.Archiver.Put(ctx, archive.RawObjectName(state.BatchID, state.Filename), state.Data, archive.ContentType(state.Filename))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to archive raw statement, continuing")
		return nil
	}
	state.ArchiveURI = uri
	log.Info().Str("archive_uri", uri).Msg("Archived raw statement")
	return nil
}

// ParseStep decodes the statement into raw rows.
type ParseStep struct{}

func (s *ParseStep) Name() string { return "parse" }

func (s *ParseStep) Execute(ctx context.Context, state *PipelineState) error {
	table, err := statement.Parse(ctx, state.Data, state.Filename)
	if err != nil {
		return err
	}
	state.Table = table
	log := logger.FromContext(ctx)
	log.Info().
		Int("rows", table.Len()).
		Int("skipped_lines", table.Skipped).
		Msg("Parsed statement")
	return nil
}

// NormalizeStep maps raw rows onto canonical transactions.
type NormalizeStep struct{}

func (s *NormalizeStep) Name() string { return "normalize" }

func (s *NormalizeStep) Execute(ctx context.Context, state *PipelineState) error {
	records, report, err := normalize.NormalizeWithReport(ctx, state.Table)
	state.Report = report
	if err != nil {
		return err
	}
	state.Records = records
	return nil
}

// CategorizeStep labels every record with the rule table.
type CategorizeStep struct {
	Categorizer *categorize.Categorizer
}

func (s *CategorizeStep) Name() string { return "categorize" }

func (s *CategorizeStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Records = s.Categorizer.CategorizeAll(state.Records)
	log := logger.FromContext(ctx)
	log.Info().Int("transactions", len(state.Records)).Msg("Categorized transactions")
	return nil
}

// AssembleStep stamps the batch id and computes the summary.
type AssembleStep struct{}

func (s *AssembleStep) Name() string { return "assemble" }

func (s *AssembleStep) Execute(ctx context.Context, state *PipelineState) error {
	b, records, err := batch.Assemble(state.Records, state.Filename, state.Now)
	if err != nil {
		return err
	}
	if b.BatchID != state.BatchID {
		return fmt.Errorf("AssembleStep: batch id %q does not match archived id %q", b.BatchID, state.BatchID)
	}
	state.Batch = b
	state.Records = records
	log := logger.FromContext(ctx)
	log.Info().
		Int("transactions", b.TransactionCount).
		Float64("total_amount", b.Summary.TotalAmount).
		Msg("Assembled batch")
	return nil
}

// MaterializeStep writes the batch into the graph store.
type MaterializeStep struct {
	Materializer Materializer
}

func (s *MaterializeStep) Name() string { return "materialize" }

func (s *MaterializeStep) Execute(ctx context.Context, state *PipelineState) error {
	res, err := s.Materializer.Materialize(ctx, state.Batch, state.Records)
	if err != nil {
		return err
	}
	state.Graph = res
	return nil
}

// BackupStep writes a JSON snapshot of the batch. Failures are logged and
// do not stop the upload.
type BackupStep struct {
	Archiver archive.Archiver
}

func (s *BackupStep) Name() string { return "backup" }

func (s *BackupStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Archiver == nil {
		return nil
	}
	log := logger.FromContext(ctx)
	data, err := archive.EncodeSnapshot(domain.Snapshot{
		Batch:        state.Batch,
		Graph:        state.Graph,
		Transactions: state.Records,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode backup snapshot, continuing")
		return nil
	}
	uri, err := s.Archiver.Put(ctx, archive.BackupObjectName(state.BatchID), data, "application/json")
	if err != nil {
		log.Warn().Err(err).Msg("Failed to write backup snapshot, continuing")
		return nil
	}
	state.BackupURI = uri
	log.Info().Str("backup_uri", uri).Msg("Wrote backup snapshot")
	return nil
}

// ExportStep copies the batch to the warehouse. Failures are logged and do
// not stop the upload.
type ExportStep struct {
	Exporter infra.BatchExporter
}

func (s *ExportStep) Name() string { return "export" }

func (s *ExportStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Exporter == nil {
		return nil
	}
	if err := s.Exporter.ExportBatch(ctx, state.Batch, state.Records, state.Graph, state.ArchiveURI); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Failed to export batch to warehouse, continuing")
	}
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially and stops at the
// first error.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	for i, step := range p.steps {
		log.Debug().Str("step", step.Name()).Msg("Running pipeline step")
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
	}
	return nil
}
