package main

import (
	"context"
	"crypto/sha256"
	"embed"
	"flag"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/statement-graph/internal/config"
	"github.com/dvloznov/statement-graph/internal/graph/neo4jstore"
	"github.com/dvloznov/statement-graph/internal/logger"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// migrationPattern matches migration files: 0001_name.sql
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var (
		neo4jFlag    = flag.Bool("neo4j", true, "Apply Neo4j uniqueness constraints and indexes")
		bigqueryFlag = flag.Bool("bigquery", false, "Apply BigQuery export table migrations")
		projectID    = flag.String("project", cfg.BigQuery.Project, "GCP project ID (or set BIGQUERY_PROJECT env)")
		datasetID    = flag.String("dataset", cfg.BigQuery.Dataset, "BigQuery dataset ID")
		appliedBy    = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	)
	flag.Parse()

	log := logger.NewFromConfig(cfg.LogLevel, cfg.LogFormat)
	ctx := logger.WithContext(context.Background(), log)

	if *neo4jFlag {
		if err := applyGraphConstraints(ctx, cfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply graph constraints")
		}
	}

	if *bigqueryFlag {
		if *projectID == "" {
			log.Fatal().Msg("Error: -project flag is required with -bigquery. Please specify your GCP project ID.")
		}
		client, err := bigquery.NewClient(ctx, *projectID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery client")
		}
		defer client.Close()

		m := &migrator{client: client, project: *projectID, dataset: *datasetID, appliedBy: *appliedBy, log: log}
		if err := m.run(ctx); err != nil {
			log.Fatal().Err(err).Msg("BigQuery migration failed")
		}
	}
}

func applyGraphConstraints(ctx context.Context, cfg config.Config) error {
	log := logger.FromContext(ctx)
	if cfg.Neo4j.URI == "" {
		return fmt.Errorf("NEO4J_URI is required to apply graph constraints")
	}

	store, err := neo4jstore.Open(ctx, neo4jstore.Config{
		URI:             cfg.Neo4j.URI,
		User:            cfg.Neo4j.User,
		Password:        cfg.Neo4j.Password,
		Database:        cfg.Neo4j.Database,
		ConnectAttempts: 5,
		ConnectDelay:    2 * time.Second,
	})
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	if err := store.EnsureConstraints(ctx); err != nil {
		return err
	}
	log.Info().Str("uri", cfg.Neo4j.URI).Str("database", cfg.Neo4j.Database).Msg("Graph constraints are in place")
	return nil
}

type migrator struct {
	client    *bigquery.Client
	project   string
	dataset   string
	appliedBy string
	log       zerolog.Logger
}

func (m *migrator) run(ctx context.Context) error {
	m.log.Info().Str("project", m.project).Str("dataset", m.dataset).Msg("Connected to BigQuery")

	// Ensure schema_migrations table exists
	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		return fmt.Errorf("ensuring schema_migrations table: %w", err)
	}

	migrations, err := readMigrations(embeddedMigrations, "migrations", m.project, m.dataset)
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	m.log.Info().Int("count", len(migrations)).Msg("Found migration files")

	appliedMigrations, err := m.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("getting applied migrations: %w", err)
	}
	m.log.Info().Int("count", len(appliedMigrations)).Msg("Found already applied migrations")

	pending, mismatched := pendingMigrations(migrations, appliedMigrations)
	for _, name := range mismatched {
		m.log.Warn().Str("migration", name).Msg("Applied migration checksum differs from embedded file")
	}

	for _, migration := range pending {
		id := fmt.Sprintf("%04d_%s", migration.Version, migration.Name)
		m.log.Info().Str("migration", id).Msg("Applying migration")

		if err := m.execute(ctx, m.client.Query(migration.SQL)); err != nil {
			return fmt.Errorf("executing migration %s: %w", id, err)
		}
		if err := m.recordMigration(ctx, migration); err != nil {
			return fmt.Errorf("recording migration %s: %w", id, err)
		}
	}

	if len(pending) == 0 {
		m.log.Info().Msg("No new migrations to apply. Dataset is up to date.")
	} else {
		m.log.Info().Int("applied", len(pending)).Msg("Successfully applied migrations")
	}
	return nil
}

// readMigrations loads every NNNN_name.sql file in dir, sorted by version,
// with placeholders replaced. The checksum covers the file before
// replacement so the same migration matches across projects.
func readMigrations(fsys fs.FS, dir, project, dataset string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	seen := map[int]string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := migrationPattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}
		version, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     matches[2],
			Filename: entry.Name(),
			SQL:      renderSQL(string(content), project, dataset),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func renderSQL(sql, project, dataset string) string {
	sql = strings.ReplaceAll(sql, "{{PROJECT_ID}}", project)
	return strings.ReplaceAll(sql, "{{DATASET_ID}}", dataset)
}

// pendingMigrations returns the migrations not yet applied, and the names of
// applied migrations whose recorded checksum no longer matches.
func pendingMigrations(all []Migration, applied []AppliedMigration) (pending []Migration, mismatched []string) {
	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}
	for _, m := range all {
		am, ok := byVersion[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if am.Checksum != "" && am.Checksum != m.Checksum {
			mismatched = append(mismatched, m.Filename)
		}
	}
	return pending, mismatched
}

func (m *migrator) table() string {
	return fmt.Sprintf("`%s.%s.schema_migrations`", m.project, m.dataset)
}

// ensureSchemaMigrationsTable creates the schema_migrations table if it doesn't exist
func (m *migrator) ensureSchemaMigrationsTable(ctx context.Context) error {
	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`, m.table())
	return m.execute(ctx, m.client.Query(sql))
}

// getAppliedMigrations retrieves the list of already applied migrations
func (m *migrator) getAppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	sql := fmt.Sprintf(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM %s
		ORDER BY version ASC
	`, m.table())

	it, err := m.client.Query(sql).Read(ctx)
	if err != nil {
		// If table doesn't exist yet, return empty list
		if strings.Contains(err.Error(), "Not found") {
			return []AppliedMigration{}, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64               `bigquery:"version"`
			Name      string              `bigquery:"name"`
			AppliedAt time.Time           `bigquery:"applied_at"`
			Checksum  bigquery.NullString `bigquery:"checksum"`
			AppliedBy bigquery.NullString `bigquery:"applied_by"`
		}

		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}

		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}
	return applied, nil
}

// recordMigration records a successfully applied migration in schema_migrations
func (m *migrator) recordMigration(ctx context.Context, migration Migration) error {
	sql := fmt.Sprintf(`
		INSERT INTO %s
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, m.table())

	query := m.client.Query(sql)
	query.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: migration.Version},
		{Name: "name", Value: migration.Name},
		{Name: "checksum", Value: migration.Checksum},
		{Name: "applied_by", Value: m.appliedBy},
	}
	return m.execute(ctx, query)
}

func (m *migrator) execute(ctx context.Context, query *bigquery.Query) error {
	job, err := query.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
