package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-graph/internal/aggregate"
	"github.com/dvloznov/statement-graph/internal/app"
	"github.com/dvloznov/statement-graph/internal/archive"
	"github.com/dvloznov/statement-graph/internal/config"
	"github.com/dvloznov/statement-graph/internal/logger"
	"github.com/dvloznov/statement-graph/internal/pipeline"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewFromConfig(cfg.LogLevel, cfg.LogFormat)

	switch os.Args[1] {
	case "ingest":
		runIngest(log, cfg)
	case "parse":
		runParse(log, cfg)
	case "summary", "batches", "categories", "merchants":
		runQuery(log, cfg, os.Args[1])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Statement Graph CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  ingest      Ingest statement files (or -gcs-uri) into the graph")
	fmt.Println("  parse       Parse and categorize a statement without writing anything")
	fmt.Println("  summary     Print node and relationship counts")
	fmt.Println("  batches     List uploaded batches")
	fmt.Println("  categories  Print per-category totals")
	fmt.Println("  merchants   Print the top merchants (-limit N)")
	fmt.Println("  help        Show this help message")
	fmt.Println("\nConfiguration is read from the environment and an optional .env file.")
}

func runIngest(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	timeout := fs.Duration("timeout", 5*time.Minute, "Timeout per file")
	gcsURI := fs.String("gcs-uri", "", "GCS URI of a statement to ingest instead of local files")
	fs.Parse(os.Args[2:])

	if fs.NArg() == 0 && *gcsURI == "" {
		log.Fatal().Msg("Usage: cli ingest [-timeout D] FILE... | cli ingest -gcs-uri gs://bucket/path")
	}

	ctx := logger.WithContext(context.Background(), log)
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	var sources []source
	for _, path := range fs.Args() {
		sources = append(sources, localSource(path))
	}
	if *gcsURI != "" {
		src, closeFn, err := gcsSource(ctx, *gcsURI)
		if err != nil {
			a.Close()
			log.Fatal().Err(err).Str("gcs_uri", *gcsURI).Msg("Failed to create storage client")
		}
		defer closeFn()
		sources = append(sources, src)
	}

	failed := 0
	for _, src := range sources {
		if err := ingestSource(ctx, a.Ingestor, src, *timeout); err != nil {
			log.Error().Err(err).Str("source", src.name).Msg("Ingestion failed")
			failed++
		}
	}
	if failed > 0 {
		a.Close()
		log.Fatal().Int("failed", failed).Msg("Some statements were not ingested")
	}
}

// source is one statement to ingest, read lazily.
type source struct {
	name     string
	filename string
	read     func(ctx context.Context) ([]byte, error)
}

func localSource(path string) source {
	return source{
		name:     path,
		filename: filepath.Base(path),
		read: func(ctx context.Context) ([]byte, error) {
			return os.ReadFile(path)
		},
	}
}

func gcsSource(ctx context.Context, uri string) (source, func() error, error) {
	bucket, _, err := archive.ParseGCSURI(uri)
	if err != nil {
		return source{}, nil, err
	}
	gcs, err := archive.NewGCSArchiver(ctx, bucket, "")
	if err != nil {
		return source{}, nil, err
	}
	return source{
		name:     uri,
		filename: archive.FilenameFromURI(uri),
		read: func(ctx context.Context) ([]byte, error) {
			return gcs.Fetch(ctx, uri)
		},
	}, gcs.Close, nil
}

func ingestSource(ctx context.Context, ingestor *pipeline.Ingestor, src source, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := src.read(ctx)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src.name, err)
	}

	res, err := ingestor.Ingest(ctx, src.filename, data)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runParse(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	if fs.NArg() != 1 {
		log.Fatal().Msg("Usage: cli parse FILE")
	}
	path := fs.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("Failed to read file")
	}

	categorizer, err := app.Categorizer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load category rules")
	}

	ctx := logger.WithContext(context.Background(), log)
	preview, err := pipeline.NewIngestor(pipeline.Deps{Categorizer: categorizer}).Preview(ctx, filepath.Base(path), data)
	if err != nil {
		log.Fatal().Err(err).Msg("Parse failed")
	}
	if err := printJSON(preview); err != nil {
		log.Fatal().Err(err).Msg("Failed to print result")
	}
}

func runQuery(log zerolog.Logger, cfg config.Config, query string) {
	fs := flag.NewFlagSet(query, flag.ExitOnError)
	limit := fs.Int("limit", aggregate.DefaultMerchantLimit, "Number of merchants to show")
	fs.Parse(os.Args[2:])

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to graph store")
	}
	defer store.Close(context.Background())
	svc := aggregate.NewService(store)

	var out interface{}
	switch query {
	case "summary":
		out, err = svc.GlobalSummary(ctx)
	case "batches":
		out, err = svc.Batches(ctx)
	case "categories":
		out, err = svc.Categories(ctx)
	case "merchants":
		out, err = svc.Merchants(ctx, *limit)
	}
	if err != nil {
		log.Fatal().Err(err).Str("query", query).Msg("Query failed")
	}
	if err := printJSON(out); err != nil {
		log.Fatal().Err(err).Msg("Failed to print result")
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
