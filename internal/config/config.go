// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Graph backends.
const (
	BackendNeo4j  = "neo4j"
	BackendMemory = "memory"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	// GraphBackend selects the graph store: neo4j or memory.
	// Environment variable: GRAPH_BACKEND
	GraphBackend string `koanf:"GRAPH_BACKEND"`

	Neo4j Neo4jConfig `koanf:",squash"`

	// ChunkSize bounds the rows sent per graph write statement.
	// Environment variable: GRAPH_WRITE_CHUNK_SIZE
	ChunkSize int `koanf:"GRAPH_WRITE_CHUNK_SIZE"`

	// ArchiveBucket enables GCS archival of raw uploads and backups.
	// Environment variable: ARCHIVE_BUCKET
	ArchiveBucket string `koanf:"ARCHIVE_BUCKET"`

	// ArchiveDir is the local archive directory used when no bucket is set.
	// Environment variable: ARCHIVE_DIR
	ArchiveDir string `koanf:"ARCHIVE_DIR"`

	// BackupEnabled writes a JSON snapshot after each materialization.
	// Environment variable: BACKUP_ENABLED
	BackupEnabled bool `koanf:"BACKUP_ENABLED"`

	BigQuery BigQueryConfig `koanf:",squash"`

	// HTTPPort is the API listen port.
	// Environment variable: HTTP_PORT
	HTTPPort string `koanf:"HTTP_PORT"`

	// MaxUploadBytes caps the multipart upload size.
	// Environment variable: MAX_UPLOAD_BYTES
	MaxUploadBytes int64 `koanf:"MAX_UPLOAD_BYTES"`

	LogLevel  string `koanf:"LOG_LEVEL"`
	LogFormat string `koanf:"LOG_FORMAT"`

	// CategoryRulesFile replaces the embedded category rule table.
	// Environment variable: CATEGORY_RULES_FILE
	CategoryRulesFile string `koanf:"CATEGORY_RULES_FILE"`
}

// Neo4jConfig holds the graph database connection settings.
type Neo4jConfig struct {
	URI      string `koanf:"NEO4J_URI"`
	User     string `koanf:"NEO4J_USER"`
	Password string `koanf:"NEO4J_PASSWORD"`
	Database string `koanf:"NEO4J_DATABASE"`
}

// BigQueryConfig enables the warehouse export when Project is set.
type BigQueryConfig struct {
	Project string `koanf:"BIGQUERY_PROJECT"`
	Dataset string `koanf:"BIGQUERY_DATASET"`
}

// Default returns the configuration used for unset variables.
func Default() Config {
	return Config{
		GraphBackend:   BackendNeo4j,
		Neo4j:          Neo4jConfig{Database: "neo4j"},
		ChunkSize:      500,
		ArchiveDir:     "bank_statements",
		BackupEnabled:  true,
		BigQuery:       BigQueryConfig{Dataset: "finance"},
		HTTPPort:       "8080",
		MaxUploadBytes: 32 << 20,
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("Load: reading .env: %w", err)
	}
	return FromEnv(env.Provider("", ".", nil))
}

// FromEnv unmarshals the variables exposed by provider over Default. The
// result is not validated; commands that need a graph store call Validate.
func FromEnv(provider koanf.Provider) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(provider, nil); err != nil {
		return Config{}, fmt.Errorf("FromEnv: loading environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return Config{}, fmt.Errorf("FromEnv: unmarshalling config: %w", err)
	}
	cfg.GraphBackend = strings.ToLower(strings.TrimSpace(cfg.GraphBackend))
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	switch c.GraphBackend {
	case BackendNeo4j:
		if c.Neo4j.URI == "" {
			return errors.New("NEO4J_URI is required for the neo4j backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("GRAPH_BACKEND must be %q or %q, got %q", BackendNeo4j, BackendMemory, c.GraphBackend)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("GRAPH_WRITE_CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}
