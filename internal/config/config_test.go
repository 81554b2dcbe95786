package config

import (
	"strings"
	"testing"

	"github.com/knadh/koanf/providers/env"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("GRAPH_BACKEND", "memory")

	cfg, err := FromEnv(env.Provider("", ".", nil))
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.ChunkSize != 500 {
		t.Errorf("ChunkSize = %d, want 500", cfg.ChunkSize)
	}
	if cfg.Neo4j.Database != "neo4j" {
		t.Errorf("Neo4j.Database = %q, want neo4j", cfg.Neo4j.Database)
	}
	if cfg.BigQuery.Dataset != "finance" {
		t.Errorf("BigQuery.Dataset = %q, want finance", cfg.BigQuery.Dataset)
	}
	if !cfg.BackupEnabled {
		t.Error("BackupEnabled should default to true")
	}
	if cfg.MaxUploadBytes != 32<<20 {
		t.Errorf("MaxUploadBytes = %d", cfg.MaxUploadBytes)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("GRAPH_BACKEND", "Neo4j")
	t.Setenv("NEO4J_URI", "bolt://localhost:7687")
	t.Setenv("NEO4J_USER", "neo4j")
	t.Setenv("GRAPH_WRITE_CHUNK_SIZE", "50")
	t.Setenv("BACKUP_ENABLED", "false")
	t.Setenv("BIGQUERY_PROJECT", "my-project")
	t.Setenv("HTTP_PORT", "9090")

	cfg, err := FromEnv(env.Provider("", ".", nil))
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.GraphBackend != BackendNeo4j {
		t.Errorf("GraphBackend = %q", cfg.GraphBackend)
	}
	if cfg.Neo4j.URI != "bolt://localhost:7687" || cfg.Neo4j.User != "neo4j" {
		t.Errorf("Neo4j = %+v", cfg.Neo4j)
	}
	if cfg.ChunkSize != 50 {
		t.Errorf("ChunkSize = %d, want 50", cfg.ChunkSize)
	}
	if cfg.BackupEnabled {
		t.Error("BackupEnabled should be false")
	}
	if cfg.BigQuery.Project != "my-project" {
		t.Errorf("BigQuery.Project = %q", cfg.BigQuery.Project)
	}
	if cfg.HTTPPort != "9090" {
		t.Errorf("HTTPPort = %q", cfg.HTTPPort)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "neo4j without uri",
			mutate:  func(c *Config) {},
			wantErr: "NEO4J_URI",
		},
		{
			name:   "neo4j with uri",
			mutate: func(c *Config) { c.Neo4j.URI = "bolt://db:7687" },
		},
		{
			name:   "memory backend",
			mutate: func(c *Config) { c.GraphBackend = BackendMemory },
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.GraphBackend = "sqlite" },
			wantErr: "GRAPH_BACKEND",
		},
		{
			name: "zero chunk size",
			mutate: func(c *Config) {
				c.GraphBackend = BackendMemory
				c.ChunkSize = 0
			},
			wantErr: "GRAPH_WRITE_CHUNK_SIZE",
		},
		{
			name: "negative upload limit",
			mutate: func(c *Config) {
				c.GraphBackend = BackendMemory
				c.MaxUploadBytes = -1
			},
			wantErr: "MAX_UPLOAD_BYTES",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
