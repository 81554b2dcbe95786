// Package archive stores raw statement uploads and post-ingest JSON backups.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/dvloznov/statement-graph/internal/domain"
)

// Archiver stores and retrieves blobs by object name.
type Archiver interface {
	// Put writes data under objectName and returns a URI that Fetch accepts.
	Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
	// Fetch reads back an object previously returned by Put.
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// RawObjectName is where the untouched upload of a batch is stored.
func RawObjectName(batchID, filename string) string {
	return path.Join("raw", batchID, safeBase(filename))
}

// BackupObjectName is where the JSON snapshot of a batch is stored.
func BackupObjectName(batchID string) string {
	return path.Join("backups", batchID+".json")
}

func safeBase(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if base == "." || base == "/" || base == "" {
		return "upload"
	}
	return base
}

// EncodeSnapshot serializes a batch snapshot for backup.
func EncodeSnapshot(s domain.Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("EncodeSnapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot is the inverse of EncodeSnapshot.
func DecodeSnapshot(data []byte) (domain.Snapshot, error) {
	var s domain.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("DecodeSnapshot: %w", err)
	}
	return s, nil
}

// ContentType guesses a MIME type from the statement's extension.
func ContentType(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".csv":
		return "text/csv"
	case ".pdf":
		return "application/pdf"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".xls":
		return "application/vnd.ms-excel"
	case ".json":
		return "application/json"
	}
	return "application/octet-stream"
}
