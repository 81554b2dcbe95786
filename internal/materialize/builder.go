// Package materialize writes a categorized batch into the property graph.
package materialize

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-graph/internal/domain"
	"github.com/dvloznov/statement-graph/internal/graph"
	"github.com/dvloznov/statement-graph/internal/logger"
)

// DefaultChunkSize bounds the rows sent in one write statement.
const DefaultChunkSize = 500

var (
	batchSpec        = graph.RelSpec{Type: graph.RelPartOf, From: graph.LabelTransaction, To: graph.LabelBatchUpload}
	categorySpec     = graph.RelSpec{Type: graph.RelCategorizedAs, From: graph.LabelTransaction, To: graph.LabelCategory}
	merchantSpec     = graph.RelSpec{Type: graph.RelFromMerchant, From: graph.LabelTransaction, To: graph.LabelMerchant}
	sameDaySpec      = graph.RelSpec{Type: graph.RelSameDay, From: graph.LabelTransaction, To: graph.LabelTransaction}
	sameCategorySpec = graph.RelSpec{Type: graph.RelSameCategory, From: graph.LabelMerchant, To: graph.LabelMerchant}
)

// Builder materializes batches. It is safe for concurrent use; every call
// opens its own session.
type Builder struct {
	store     graph.Store
	chunkSize int
	newID     func() string
	now       func() time.Time
}

// NewBuilder returns a Builder writing to store in chunks of chunkSize rows.
func NewBuilder(store graph.Store, chunkSize int) *Builder {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Builder{
		store:     store,
		chunkSize: chunkSize,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Materialize writes the batch node, one Transaction node per record, the
// shared Category and Merchant nodes and all relationships in a single
// transaction. Nothing is written if any step fails.
//
// The created counts in the result are exact. The reachable counts come from
// a traversal after commit and include shared nodes that earlier batches
// created.
func (b *Builder) Materialize(ctx context.Context, batch domain.Batch, records []domain.Transaction) (domain.MaterializeResult, error) {
	log := logger.FromContext(ctx).With().Str("batch_id", batch.BatchID).Logger()
	var result domain.MaterializeResult

	if len(records) == 0 {
		return result, domain.NewError(domain.KindEmptyResult, "batch %s has no transactions", batch.BatchID)
	}

	p := buildPlan(batch, records, b.newID, b.now())
	log.Debug().
		Int("transactions", len(p.transactions)).
		Int("categories", len(p.categories)).
		Int("merchants", len(p.merchants)).
		Int("same_day_edges", len(p.sameDay)).
		Int("same_category_edges", len(p.sameCategory)).
		Msg("Planned graph writes")

	sess, err := b.store.OpenSession(ctx)
	if err != nil {
		return result, asKind(err, domain.KindGraphStoreUnavailable, "open session")
	}
	defer func() {
		if cerr := sess.Close(ctx); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to close graph session")
		}
	}()

	err = sess.WriteTx(ctx, func(tx graph.Tx) error {
		var total graph.Counters
		txCreated, err := b.write(ctx, tx, p, &total)
		if err != nil {
			return err
		}
		result.NodesCreated = total.NodesCreated
		result.RelationshipsCreated = total.RelationshipsCreated
		result.TransactionsCreated = txCreated
		return nil
	})
	if err != nil {
		return domain.MaterializeResult{}, asKind(err, domain.KindGraphWriteFailure, "materialize "+batch.BatchID)
	}

	fp, err := sess.BatchFootprint(ctx, batch.BatchID)
	if err != nil {
		log.Warn().Err(err).Msg("Could not compute batch footprint")
	} else {
		result.NodesReachable = int(fp.Nodes)
		result.RelationshipsReachable = int(fp.Relationships)
	}

	log.Info().
		Int("nodes_created", result.NodesCreated).
		Int("relationships_created", result.RelationshipsCreated).
		Int("transactions_created", result.TransactionsCreated).
		Int("nodes_reachable", result.NodesReachable).
		Int("relationships_reachable", result.RelationshipsReachable).
		Msg("Materialized batch")

	return result, nil
}

func (b *Builder) write(ctx context.Context, tx graph.Tx, p *plan, total *graph.Counters) (int, error) {
	c, err := tx.CreateNodes(ctx, graph.LabelBatchUpload, []graph.Props{p.batch})
	if err != nil {
		return 0, fmt.Errorf("create batch node: %w", err)
	}
	total.Add(c)

	var txCreated int
	for _, rows := range chunks(p.transactions, b.chunkSize) {
		c, err := tx.CreateNodes(ctx, graph.LabelTransaction, rows)
		if err != nil {
			return 0, fmt.Errorf("create transaction nodes: %w", err)
		}
		txCreated += c.NodesCreated
		total.Add(c)
	}

	for _, m := range []struct {
		label string
		rows  []graph.Props
	}{
		{graph.LabelCategory, p.categories},
		{graph.LabelMerchant, p.merchants},
	} {
		for _, rows := range chunks(m.rows, b.chunkSize) {
			c, err := tx.MergeNodes(ctx, m.label, graph.IdentityKey(m.label), rows)
			if err != nil {
				return 0, fmt.Errorf("merge %s nodes: %w", m.label, err)
			}
			total.Add(c)
		}
	}

	for _, r := range []struct {
		spec  graph.RelSpec
		edges []graph.Edge
	}{
		{batchSpec, p.partOf},
		{categorySpec, p.categorizedAs},
		{merchantSpec, p.fromMerchant},
		{sameDaySpec, p.sameDay},
	} {
		for _, edges := range chunks(r.edges, b.chunkSize) {
			c, err := tx.CreateRelationships(ctx, r.spec, edges)
			if err != nil {
				return 0, fmt.Errorf("create %s relationships: %w", r.spec.Type, err)
			}
			if c.RelationshipsCreated != len(edges) {
				return 0, fmt.Errorf("create %s relationships: %d of %d endpoints not found",
					r.spec.Type, len(edges)-c.RelationshipsCreated, len(edges))
			}
			total.Add(c)
		}
	}

	for _, edges := range chunks(p.sameCategory, b.chunkSize) {
		c, err := tx.MergeRelationships(ctx, sameCategorySpec, edges)
		if err != nil {
			return 0, fmt.Errorf("merge %s relationships: %w", graph.RelSameCategory, err)
		}
		total.Add(c)
	}

	return txCreated, nil
}

func chunks[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

// asKind keeps an existing domain error kind and otherwise wraps err as kind.
func asKind(err error, kind domain.ErrorKind, msg string) error {
	if domain.KindOf(err) != "" {
		return err
	}
	return domain.WrapError(kind, err, msg)
}
