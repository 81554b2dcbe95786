package main

import (
	"strings"
	"testing"
	"testing/fstest"

	"cloud.google.com/go/bigquery"

	infra "github.com/dvloznov/statement-graph/internal/infra/bigquery"
)

func TestMigrationFilenamePattern(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  string
		name     string
	}{
		{"0001_statement_batches.sql", true, "0001", "statement_batches"},
		{"001_invalid.sql", false, "", ""},
		{"0001_test", false, "", ""},
		{"0001.sql", false, "", ""},
		{"invalid_0001_test.sql", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			m := migrationPattern.FindStringSubmatch(tt.filename)
			if (m != nil) != tt.valid {
				t.Fatalf("match = %v, want %v", m != nil, tt.valid)
			}
			if tt.valid && (m[1] != tt.version || m[2] != tt.name) {
				t.Errorf("got version %q name %q", m[1], m[2])
			}
		})
	}
}

func TestReadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_second.sql": {Data: []byte("SELECT 2 FROM `{{PROJECT_ID}}.{{DATASET_ID}}.t`")},
		"m/0001_first.sql":  {Data: []byte("SELECT 1")},
		"m/README.md":       {Data: []byte("ignored")},
	}

	migrations, err := readMigrations(fsys, "m", "proj", "ds")
	if err != nil {
		t.Fatalf("readMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("got %d migrations, want 2", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Name != "second" {
		t.Errorf("migrations out of order: %+v", migrations)
	}
	if migrations[1].SQL != "SELECT 2 FROM `proj.ds.t`" {
		t.Errorf("SQL = %q", migrations[1].SQL)
	}

	again, err := readMigrations(fsys, "m", "other", "dataset")
	if err != nil {
		t.Fatalf("readMigrations() error = %v", err)
	}
	if again[1].Checksum != migrations[1].Checksum {
		t.Error("checksum must not depend on project or dataset")
	}
	if migrations[0].Checksum == migrations[1].Checksum {
		t.Error("different content should produce different checksums")
	}
}

func TestReadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0001_a.sql": {Data: []byte("SELECT 1")},
		"m/0001_b.sql": {Data: []byte("SELECT 2")},
	}
	if _, err := readMigrations(fsys, "m", "p", "d"); err == nil {
		t.Error("expected duplicate version error")
	}
}

func TestPendingMigrations(t *testing.T) {
	all := []Migration{
		{Version: 1, Filename: "0001_a.sql", Checksum: "aaa"},
		{Version: 2, Filename: "0002_b.sql", Checksum: "bbb"},
		{Version: 3, Filename: "0003_c.sql", Checksum: "ccc"},
	}
	applied := []AppliedMigration{
		{Version: 1, Checksum: "aaa"},
		{Version: 2, Checksum: "changed"},
	}

	pending, mismatched := pendingMigrations(all, applied)
	if len(pending) != 1 || pending[0].Version != 3 {
		t.Errorf("pending = %+v", pending)
	}
	if len(mismatched) != 1 || mismatched[0] != "0002_b.sql" {
		t.Errorf("mismatched = %v", mismatched)
	}
}

// The embedded DDL must declare every column the exporter streams.
func TestEmbeddedMigrationsCoverExportRows(t *testing.T) {
	migrations, err := readMigrations(embeddedMigrations, "migrations", "p", "d")
	if err != nil {
		t.Fatalf("readMigrations() error = %v", err)
	}

	ddl := map[string]string{}
	for _, m := range migrations {
		ddl[m.Name] = m.SQL
	}

	tests := []struct {
		table string
		row   interface{}
	}{
		{"statement_batches", infra.StatementBatchRow{}},
		{"statement_transactions", infra.StatementTransactionRow{}},
	}
	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			sql, ok := ddl[tt.table]
			if !ok {
				t.Fatalf("no migration named %s", tt.table)
			}
			if !strings.Contains(sql, "`p.d."+tt.table+"`") {
				t.Errorf("migration does not create p.d.%s", tt.table)
			}
			schema, err := bigquery.InferSchema(tt.row)
			if err != nil {
				t.Fatalf("InferSchema() error = %v", err)
			}
			for _, field := range schema {
				if !strings.Contains(sql, "\n  "+field.Name+" ") {
					t.Errorf("column %s missing from %s DDL", field.Name, tt.table)
				}
			}
		})
	}
}
