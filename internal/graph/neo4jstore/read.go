package neo4jstore

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/dvloznov/statement-graph/internal/graph"
)

const (
	labelCountsQuery = `
MATCH (n)
RETURN labels(n)[0] AS name, count(*) AS cnt
ORDER BY cnt DESC, name ASC`

	relationshipCountsQuery = `
MATCH ()-[r]->()
RETURN type(r) AS name, count(*) AS cnt
ORDER BY cnt DESC, name ASC`

	batchesQuery = `
MATCH (b:BatchUpload)
RETURN b.batch_id AS batch_id, b.filename AS filename, b.upload_timestamp AS upload_timestamp,
       b.transaction_count AS transaction_count, b.total_amount AS total_amount
ORDER BY b.upload_timestamp DESC`

	categoryRollupQuery = `
MATCH (t:Transaction)-[:CATEGORIZED_AS]->(c:Category)
RETURN c.name AS category, count(t) AS transaction_count,
       sum(t.amount) AS total_amount, avg(t.amount) AS average_amount
ORDER BY transaction_count DESC, category ASC`

	merchantRollupQuery = `
MATCH (t:Transaction)-[:FROM_MERCHANT]->(m:Merchant)
WITH m, t ORDER BY t.created_at ASC, t.seq ASC
RETURN m.name AS merchant, count(t) AS transaction_count,
       sum(t.amount) AS total_amount, collect(t.category)[0] AS category
ORDER BY transaction_count DESC, merchant ASC
LIMIT $limit`

	footprintQuery = `
MATCH (t:Transaction {batch_id: $batch_id})
OPTIONAL MATCH (t)-[r]-(n)
WITH collect(DISTINCT t) + collect(DISTINCT n) AS nodes, collect(DISTINCT r) AS rels
UNWIND nodes AS x
WITH count(DISTINCT x) AS node_count, size(rels) AS rel_count
RETURN node_count, rel_count`

	footprintMerchantEdgesQuery = `
MATCH (:Transaction {batch_id: $batch_id})-[:FROM_MERCHANT]->(m:Merchant)
WITH collect(DISTINCT m) AS merchants
UNWIND merchants AS a
MATCH (a)-[r:SAME_CATEGORY]->(b:Merchant)
WHERE b IN merchants
RETURN count(DISTINCT r) AS rel_count`
)

func (s *session) read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	out, err := s.sess.ExecuteRead(ctx, func(mtx neo4j.ManagedTransaction) (any, error) {
		res, err := mtx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, classify(err, "neo4jstore: read")
	}
	records, _ := out.([]*neo4j.Record)
	return records, nil
}

func (s *session) counts(ctx context.Context, cypher string) ([]graph.Count, error) {
	records, err := s.read(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}
	out := make([]graph.Count, 0, len(records))
	for _, rec := range records {
		name := getString(rec, "name")
		if name == "" {
			continue
		}
		out = append(out, graph.Count{Name: name, Count: getInt(rec, "cnt")})
	}
	return out, nil
}

func (s *session) LabelCounts(ctx context.Context) ([]graph.Count, error) {
	return s.counts(ctx, labelCountsQuery)
}

func (s *session) RelationshipCounts(ctx context.Context) ([]graph.Count, error) {
	return s.counts(ctx, relationshipCountsQuery)
}

func (s *session) Batches(ctx context.Context) ([]graph.BatchRow, error) {
	records, err := s.read(ctx, batchesQuery, nil)
	if err != nil {
		return nil, err
	}
	out := make([]graph.BatchRow, 0, len(records))
	for _, rec := range records {
		out = append(out, graph.BatchRow{
			BatchID:          getString(rec, "batch_id"),
			Filename:         getString(rec, "filename"),
			UploadTimestamp:  getString(rec, "upload_timestamp"),
			TransactionCount: getInt(rec, "transaction_count"),
			TotalAmount:      getFloat(rec, "total_amount"),
		})
	}
	return out, nil
}

func (s *session) CategoryRollup(ctx context.Context) ([]graph.CategoryRow, error) {
	records, err := s.read(ctx, categoryRollupQuery, nil)
	if err != nil {
		return nil, err
	}
	out := make([]graph.CategoryRow, 0, len(records))
	for _, rec := range records {
		out = append(out, graph.CategoryRow{
			Category:         getString(rec, "category"),
			TransactionCount: getInt(rec, "transaction_count"),
			TotalAmount:      getFloat(rec, "total_amount"),
			AverageAmount:    getFloat(rec, "average_amount"),
		})
	}
	return out, nil
}

func (s *session) MerchantRollup(ctx context.Context, limit int) ([]graph.MerchantRow, error) {
	records, err := s.read(ctx, merchantRollupQuery, map[string]any{"limit": int64(limit)})
	if err != nil {
		return nil, err
	}
	out := make([]graph.MerchantRow, 0, len(records))
	for _, rec := range records {
		out = append(out, graph.MerchantRow{
			Merchant:         getString(rec, "merchant"),
			TransactionCount: getInt(rec, "transaction_count"),
			TotalAmount:      getFloat(rec, "total_amount"),
			Category:         getString(rec, "category"),
		})
	}
	return out, nil
}

func (s *session) BatchFootprint(ctx context.Context, batchID string) (graph.Footprint, error) {
	var fp graph.Footprint
	params := map[string]any{"batch_id": batchID}

	records, err := s.read(ctx, footprintQuery, params)
	if err != nil {
		return fp, err
	}
	if len(records) > 0 {
		fp.Nodes = getInt(records[0], "node_count")
		fp.Relationships = getInt(records[0], "rel_count")
	}

	records, err = s.read(ctx, footprintMerchantEdgesQuery, params)
	if err != nil {
		return fp, err
	}
	if len(records) > 0 {
		fp.Relationships += getInt(records[0], "rel_count")
	}
	return fp, nil
}

func getString(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func getInt(rec *neo4j.Record, key string) int64 {
	v, ok := rec.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func getFloat(rec *neo4j.Record, key string) float64 {
	v, ok := rec.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}
