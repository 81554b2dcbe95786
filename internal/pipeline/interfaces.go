package pipeline

import (
	"context"

	"github.com/dvloznov/statement-graph/internal/domain"
)

// Materializer writes one assembled batch into the graph store.
// *materialize.Builder is the production implementation.
type Materializer interface {
	Materialize(ctx context.Context, b domain.Batch, records []domain.Transaction) (domain.MaterializeResult, error)
}
