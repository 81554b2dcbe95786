package pipeline

import (
	"context"
	"sync"

	"github.com/dvloznov/statement-graph/internal/domain"
)

// MockArchiver is a mock implementation of archive.Archiver for testing.
type MockArchiver struct {
	mu      sync.Mutex
	PutFunc func(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
	Objects map[string][]byte
}

func (m *MockArchiver) Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutFunc != nil {
		return m.PutFunc(ctx, objectName, data, contentType)
	}
	if m.Objects == nil {
		m.Objects = map[string][]byte{}
	}
	m.Objects[objectName] = data
	return "mem://" + objectName, nil
}

func (m *MockArchiver) Fetch(ctx context.Context, uri string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Objects[uri[len("mem://"):]], nil
}

// MockExporter is a mock implementation of bigquery.BatchExporter for testing.
type MockExporter struct {
	ExportBatchFunc func(ctx context.Context, b domain.Batch, records []domain.Transaction, res domain.MaterializeResult, rawURI string) error
	Calls           int
	RawURI          string
}

func (m *MockExporter) ExportBatch(ctx context.Context, b domain.Batch, records []domain.Transaction, res domain.MaterializeResult, rawURI string) error {
	m.Calls++
	m.RawURI = rawURI
	if m.ExportBatchFunc != nil {
		return m.ExportBatchFunc(ctx, b, records, res, rawURI)
	}
	return nil
}

// MockMaterializer is a mock implementation of Materializer for testing.
type MockMaterializer struct {
	MaterializeFunc func(ctx context.Context, b domain.Batch, records []domain.Transaction) (domain.MaterializeResult, error)
	Calls           int
}

func (m *MockMaterializer) Materialize(ctx context.Context, b domain.Batch, records []domain.Transaction) (domain.MaterializeResult, error) {
	m.Calls++
	if m.MaterializeFunc != nil {
		return m.MaterializeFunc(ctx, b, records)
	}
	return domain.MaterializeResult{TransactionsCreated: len(records)}, nil
}
