// Package app assembles the graph store, archive, exporter and pipeline from
// configuration for the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/statement-graph/internal/aggregate"
	"github.com/dvloznov/statement-graph/internal/archive"
	"github.com/dvloznov/statement-graph/internal/categorize"
	"github.com/dvloznov/statement-graph/internal/config"
	"github.com/dvloznov/statement-graph/internal/graph"
	"github.com/dvloznov/statement-graph/internal/graph/memgraph"
	"github.com/dvloznov/statement-graph/internal/graph/neo4jstore"
	infra "github.com/dvloznov/statement-graph/internal/infra/bigquery"
	"github.com/dvloznov/statement-graph/internal/logger"
	"github.com/dvloznov/statement-graph/internal/materialize"
	"github.com/dvloznov/statement-graph/internal/pipeline"
)

// App holds the long-lived collaborators of one process.
type App struct {
	Config     config.Config
	Store      graph.Store
	Ingestor   *pipeline.Ingestor
	Aggregates *aggregate.Service

	closers []func() error
}

// New wires everything the config enables. The caller must Close the App.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	log := logger.FromContext(ctx)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("New: invalid configuration: %w", err)
	}
	a := &App{Config: cfg}

	categorizer, err := Categorizer(cfg)
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, func() error { return store.Close(context.Background()) })

	var archiver archive.Archiver
	if cfg.ArchiveBucket != "" {
		gcs, err := archive.NewGCSArchiver(ctx, cfg.ArchiveBucket, "")
		if err != nil {
			a.Close()
			return nil, err
		}
		archiver = gcs
		a.closers = append(a.closers, gcs.Close)
		log.Info().Str("bucket", cfg.ArchiveBucket).Msg("Archiving uploads to GCS")
	} else if cfg.ArchiveDir != "" {
		archiver = archive.NewLocalArchiver(cfg.ArchiveDir)
		log.Info().Str("dir", cfg.ArchiveDir).Msg("Archiving uploads to local directory")
	}

	var exporter infra.BatchExporter
	if cfg.BigQuery.Project != "" {
		bq, err := infra.NewExporter(ctx, cfg.BigQuery.Project, cfg.BigQuery.Dataset)
		if err != nil {
			a.Close()
			return nil, err
		}
		exporter = bq
		a.closers = append(a.closers, bq.Close)
		log.Info().Str("project", cfg.BigQuery.Project).Str("dataset", cfg.BigQuery.Dataset).Msg("Exporting batches to BigQuery")
	}

	a.Ingestor = pipeline.NewIngestor(pipeline.Deps{
		Categorizer:  categorizer,
		Materializer: materialize.NewBuilder(store, cfg.ChunkSize),
		Archiver:     archiver,
		Exporter:     exporter,
		Backup:       cfg.BackupEnabled,
	})
	a.Aggregates = aggregate.NewService(store)
	return a, nil
}

// Categorizer returns the rule table from CATEGORY_RULES_FILE or the
// embedded default.
func Categorizer(cfg config.Config) (*categorize.Categorizer, error) {
	if cfg.CategoryRulesFile == "" {
		return categorize.Default(), nil
	}
	c, err := categorize.LoadFile(cfg.CategoryRulesFile)
	if err != nil {
		return nil, fmt.Errorf("Categorizer: %w", err)
	}
	return c, nil
}

// OpenStore connects to the configured graph backend.
func OpenStore(ctx context.Context, cfg config.Config) (graph.Store, error) {
	switch cfg.GraphBackend {
	case config.BackendMemory:
		log := logger.FromContext(ctx)
		log.Warn().Msg("Using in-memory graph store; data is lost on exit")
		return memgraph.New(), nil
	case config.BackendNeo4j:
		return neo4jstore.Open(ctx, neo4jstore.Config{
			URI:             cfg.Neo4j.URI,
			User:            cfg.Neo4j.User,
			Password:        cfg.Neo4j.Password,
			Database:        cfg.Neo4j.Database,
			ConnectAttempts: 5,
			ConnectDelay:    time.Second,
		})
	default:
		return nil, fmt.Errorf("OpenStore: unknown graph backend %q", cfg.GraphBackend)
	}
}

// Close releases every client in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
