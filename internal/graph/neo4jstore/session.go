package neo4jstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/dvloznov/statement-graph/internal/graph"
)

type session struct {
	sess neo4j.SessionWithContext
}

func (s *session) Close(ctx context.Context) error {
	return s.sess.Close(ctx)
}

// WriteTx runs fn inside a managed transaction. The driver may call fn more
// than once on transient failures, so fn must not keep state across calls.
func (s *session) WriteTx(ctx context.Context, fn func(graph.Tx) error) error {
	_, err := s.sess.ExecuteWrite(ctx, func(mtx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(&tx{mtx: mtx})
	})
	return classify(err, "neo4jstore: write transaction")
}

type tx struct {
	mtx neo4j.ManagedTransaction
}

func (t *tx) run(ctx context.Context, cypher string, params map[string]any) (graph.Counters, error) {
	res, err := t.mtx.Run(ctx, cypher, params)
	if err != nil {
		return graph.Counters{}, err
	}
	summary, err := res.Consume(ctx)
	if err != nil {
		return graph.Counters{}, err
	}
	c := summary.Counters()
	return graph.Counters{
		NodesCreated:         c.NodesCreated(),
		RelationshipsCreated: c.RelationshipsCreated(),
	}, nil
}

func rowsParam(rows []graph.Props) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = map[string]any(r)
	}
	return out
}

func edgesParam(edges []graph.Edge) []map[string]any {
	out := make([]map[string]any, len(edges))
	for i, e := range edges {
		props := map[string]any{}
		for k, v := range e.Props {
			props[k] = v
		}
		out[i] = map[string]any{"from": e.From, "to": e.To, "props": props}
	}
	return out
}

func (t *tx) CreateNodes(ctx context.Context, label string, rows []graph.Props) (graph.Counters, error) {
	if err := checkIdentifiers(label); err != nil {
		return graph.Counters{}, err
	}
	cypher := fmt.Sprintf("UNWIND $rows AS row CREATE (n:%s) SET n = row", label)
	c, err := t.run(ctx, cypher, map[string]any{"rows": rowsParam(rows)})
	if err != nil {
		return c, fmt.Errorf("CreateNodes: %s: %w", label, err)
	}
	return c, nil
}

func (t *tx) MergeNodes(ctx context.Context, label, key string, rows []graph.Props) (graph.Counters, error) {
	if err := checkIdentifiers(label, key); err != nil {
		return graph.Counters{}, err
	}
	cypher := fmt.Sprintf("UNWIND $rows AS row MERGE (n:%s {%s: row.%s}) ON CREATE SET n += row", label, key, key)
	c, err := t.run(ctx, cypher, map[string]any{"rows": rowsParam(rows)})
	if err != nil {
		return c, fmt.Errorf("MergeNodes: %s: %w", label, err)
	}
	return c, nil
}

func endpointMatch(spec graph.RelSpec) (string, error) {
	fromKey, toKey := graph.IdentityKey(spec.From), graph.IdentityKey(spec.To)
	if fromKey == "" || toKey == "" {
		return "", fmt.Errorf("neo4jstore: no identity key for %s or %s", spec.From, spec.To)
	}
	if err := checkIdentifiers(spec.Type, spec.From, spec.To); err != nil {
		return "", err
	}
	return fmt.Sprintf("UNWIND $edges AS e MATCH (a:%s {%s: e.from}) MATCH (b:%s {%s: e.to}) ",
		spec.From, fromKey, spec.To, toKey), nil
}

func (t *tx) CreateRelationships(ctx context.Context, spec graph.RelSpec, edges []graph.Edge) (graph.Counters, error) {
	match, err := endpointMatch(spec)
	if err != nil {
		return graph.Counters{}, err
	}
	cypher := match + fmt.Sprintf("CREATE (a)-[r:%s]->(b) SET r = e.props", spec.Type)
	c, err := t.run(ctx, cypher, map[string]any{"edges": edgesParam(edges)})
	if err != nil {
		return c, fmt.Errorf("CreateRelationships: %s: %w", spec.Type, err)
	}
	return c, nil
}

func (t *tx) MergeRelationships(ctx context.Context, spec graph.RelSpec, edges []graph.Edge) (graph.Counters, error) {
	match, err := endpointMatch(spec)
	if err != nil {
		return graph.Counters{}, err
	}
	if err := checkIdentifiers(spec.Keys...); err != nil {
		return graph.Counters{}, err
	}
	keys := make([]string, 0, len(spec.Keys))
	for _, k := range spec.Keys {
		keys = append(keys, fmt.Sprintf("%s: e.props.%s", k, k))
	}
	identity := ""
	if len(keys) > 0 {
		identity = " {" + strings.Join(keys, ", ") + "}"
	}
	cypher := match + fmt.Sprintf("MERGE (a)-[r:%s%s]->(b) ON CREATE SET r += e.props", spec.Type, identity)
	c, err := t.run(ctx, cypher, map[string]any{"edges": edgesParam(edges)})
	if err != nil {
		return c, fmt.Errorf("MergeRelationships: %s: %w", spec.Type, err)
	}
	return c, nil
}
