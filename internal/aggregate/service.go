// Package aggregate answers read-only rollup queries over the graph.
package aggregate

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-graph/internal/domain"
	"github.com/dvloznov/statement-graph/internal/graph"
	"github.com/dvloznov/statement-graph/internal/logger"
)

// DefaultMerchantLimit is used when Merchants is called with a non-positive limit.
const DefaultMerchantLimit = 20

// MaxMerchantLimit caps caller-supplied limits.
const MaxMerchantLimit = 500

// GraphSummary counts nodes per label and relationships per type.
type GraphSummary struct {
	Nodes              []graph.Count `json:"nodes"`
	Relationships      []graph.Count `json:"relationships"`
	TotalNodes         int64         `json:"total_nodes"`
	TotalRelationships int64         `json:"total_relationships"`
}

// Service runs each query in its own read session.
type Service struct {
	store graph.Store
}

func NewService(store graph.Store) *Service {
	return &Service{store: store}
}

func (s *Service) withSession(ctx context.Context, query string, fn func(graph.Session) error) error {
	sess, err := s.store.OpenSession(ctx)
	if err != nil {
		if domain.KindOf(err) == "" {
			err = domain.WrapError(domain.KindGraphStoreUnavailable, err, "open session for "+query)
		}
		return err
	}
	defer func() {
		if cerr := sess.Close(ctx); cerr != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(cerr).Str("query", query).Msg("Failed to close graph session")
		}
	}()
	return fn(sess)
}

// GlobalSummary returns node counts by label and relationship counts by
// type, each in descending order of count.
func (s *Service) GlobalSummary(ctx context.Context) (GraphSummary, error) {
	var out GraphSummary
	err := s.withSession(ctx, "summary", func(sess graph.Session) error {
		nodes, err := sess.LabelCounts(ctx)
		if err != nil {
			return err
		}
		rels, err := sess.RelationshipCounts(ctx)
		if err != nil {
			return err
		}
		out.Nodes, out.Relationships = sortCounts(nodes), sortCounts(rels)
		for _, c := range out.Nodes {
			out.TotalNodes += c.Count
		}
		for _, c := range out.Relationships {
			out.TotalRelationships += c.Count
		}
		return nil
	})
	return out, err
}

// Batches lists uploads, newest first.
func (s *Service) Batches(ctx context.Context) ([]graph.BatchRow, error) {
	var out []graph.BatchRow
	err := s.withSession(ctx, "batches", func(sess graph.Session) error {
		rows, err := sess.Batches(ctx)
		if err != nil {
			return err
		}
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].UploadTimestamp > rows[j].UploadTimestamp
		})
		for i := range rows {
			rows[i].TotalAmount = cents(rows[i].TotalAmount)
		}
		out = rows
		return nil
	})
	return out, err
}

// Categories returns per-category transaction counts and amounts, busiest
// category first.
func (s *Service) Categories(ctx context.Context) ([]graph.CategoryRow, error) {
	var out []graph.CategoryRow
	err := s.withSession(ctx, "categories", func(sess graph.Session) error {
		rows, err := sess.CategoryRollup(ctx)
		if err != nil {
			return err
		}
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].TransactionCount > rows[j].TransactionCount
		})
		for i := range rows {
			rows[i].TotalAmount = cents(rows[i].TotalAmount)
			rows[i].AverageAmount = cents(rows[i].AverageAmount)
		}
		out = rows
		return nil
	})
	return out, err
}

// Merchants returns the top merchants by transaction count. Each row's
// category is taken from the merchant's earliest transaction.
func (s *Service) Merchants(ctx context.Context, limit int) ([]graph.MerchantRow, error) {
	if limit <= 0 {
		limit = DefaultMerchantLimit
	}
	if limit > MaxMerchantLimit {
		limit = MaxMerchantLimit
	}

	var out []graph.MerchantRow
	err := s.withSession(ctx, "merchants", func(sess graph.Session) error {
		rows, err := sess.MerchantRollup(ctx, limit)
		if err != nil {
			return err
		}
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].TransactionCount > rows[j].TransactionCount
		})
		if len(rows) > limit {
			rows = rows[:limit]
		}
		for i := range rows {
			rows[i].TotalAmount = cents(rows[i].TotalAmount)
		}
		out = rows
		return nil
	})
	return out, err
}

func sortCounts(c []graph.Count) []graph.Count {
	sort.SliceStable(c, func(i, j int) bool {
		return c[i].Count > c[j].Count
	})
	return c
}

func cents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
