// Package memgraph is an in-process graph.Store. Nodes are indexed by label
// and identity key, so merges are atomic find-or-create lookups. A single
// writer runs at a time and a failed transaction is undone before the next
// one starts.
package memgraph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dvloznov/statement-graph/internal/domain"
	"github.com/dvloznov/statement-graph/internal/graph"
)

type node struct {
	label string
	key   string
	props graph.Props
	seq   int64
}

type rel struct {
	typ   string
	from  *node
	to    *node
	props graph.Props
	seq   int64
}

// Store holds the whole graph in memory.
type Store struct {
	mu     sync.RWMutex
	nodes  map[string]map[string]*node
	rels   []*rel
	merged map[string]*rel
	seq    int64
	closed bool
}

// New returns an empty store.
func New() *Store {
	return &Store{
		nodes:  make(map[string]map[string]*node),
		merged: make(map[string]*rel),
	}
}

func (s *Store) OpenSession(ctx context.Context) (graph.Session, error) {
	if err := s.Ping(ctx); err != nil {
		return nil, err
	}
	return &session{store: s}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return domain.WrapError(domain.KindGraphStoreUnavailable, err, "memgraph")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.NewError(domain.KindGraphStoreUnavailable, "memgraph: store is closed")
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Find returns a copy of the properties of the node with the given label and
// identity value.
func (s *Store) Find(label string, key any) (graph.Props, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[label][keyString(key)]
	if !ok {
		return nil, false
	}
	return copyProps(n.props), true
}

// Edges returns every relationship of the given type in creation order,
// with endpoints given by identity value.
func (s *Store) Edges(typ string) []graph.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []graph.Edge
	for _, r := range s.rels {
		if r.typ == typ {
			out = append(out, graph.Edge{From: r.from.key, To: r.to.key, Props: copyProps(r.props)})
		}
	}
	return out
}

func (s *Store) lookup(label string, key any) *node {
	return s.nodes[label][keyString(key)]
}

func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

func keyString(v any) string {
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

func copyProps(p graph.Props) graph.Props {
	out := make(graph.Props, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func mergeIdentity(spec graph.RelSpec, from, to *node, props graph.Props) string {
	var b strings.Builder
	b.WriteString(spec.Type)
	b.WriteString("|")
	b.WriteString(from.label + ":" + from.key)
	b.WriteString("|")
	b.WriteString(to.label + ":" + to.key)
	for _, k := range spec.Keys {
		b.WriteString("|")
		b.WriteString(k + "=" + keyString(props[k]))
	}
	return b.String()
}

type session struct {
	store  *Store
	closed bool
}

func (ss *session) Close(ctx context.Context) error {
	ss.closed = true
	return nil
}

func (ss *session) check(ctx context.Context) error {
	if ss.closed {
		return domain.NewError(domain.KindGraphStoreUnavailable, "memgraph: session is closed")
	}
	return ss.store.Ping(ctx)
}

func (ss *session) WriteTx(ctx context.Context, fn func(graph.Tx) error) error {
	if err := ss.check(ctx); err != nil {
		return err
	}

	s := ss.store
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{store: s}
	if err := fn(t); err != nil {
		t.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		t.rollback()
		return fmt.Errorf("memgraph: commit: %w", err)
	}
	return nil
}

// tx records what it added so rollback can remove it. Writers are
// serialized, so everything it appended is at the tail of the store's slices.
type tx struct {
	store     *Store
	nodes     []*node
	rels      int
	mergeKeys []string
}

func (t *tx) rollback() {
	s := t.store
	for _, n := range t.nodes {
		delete(s.nodes[n.label], n.key)
	}
	s.rels = s.rels[:len(s.rels)-t.rels]
	for _, k := range t.mergeKeys {
		delete(s.merged, k)
	}
}

func (t *tx) addNode(label, key string, props graph.Props) {
	s := t.store
	byKey, ok := s.nodes[label]
	if !ok {
		byKey = make(map[string]*node)
		s.nodes[label] = byKey
	}
	n := &node{label: label, key: key, props: copyProps(props), seq: s.nextSeq()}
	byKey[key] = n
	t.nodes = append(t.nodes, n)
}

func (t *tx) addRel(typ string, from, to *node, props graph.Props) *rel {
	s := t.store
	r := &rel{typ: typ, from: from, to: to, props: copyProps(props), seq: s.nextSeq()}
	s.rels = append(s.rels, r)
	t.rels++
	return r
}

func (t *tx) CreateNodes(ctx context.Context, label string, rows []graph.Props) (graph.Counters, error) {
	var c graph.Counters
	if err := ctx.Err(); err != nil {
		return c, err
	}
	key := graph.IdentityKey(label)
	if key == "" {
		return c, fmt.Errorf("memgraph: CreateNodes: unknown label %q", label)
	}
	for i, row := range rows {
		v, ok := row[key]
		if !ok || v == nil {
			return c, fmt.Errorf("memgraph: CreateNodes: %s row %d has no %s", label, i, key)
		}
		ks := keyString(v)
		if t.store.lookup(label, ks) != nil {
			return c, fmt.Errorf("memgraph: CreateNodes: %s with %s=%q already exists", label, key, ks)
		}
		t.addNode(label, ks, row)
		c.NodesCreated++
	}
	return c, nil
}

func (t *tx) MergeNodes(ctx context.Context, label, key string, rows []graph.Props) (graph.Counters, error) {
	var c graph.Counters
	if err := ctx.Err(); err != nil {
		return c, err
	}
	if want := graph.IdentityKey(label); want == "" || want != key {
		return c, fmt.Errorf("memgraph: MergeNodes: %s is not identified by %q", label, key)
	}
	for i, row := range rows {
		v, ok := row[key]
		if !ok || v == nil {
			return c, fmt.Errorf("memgraph: MergeNodes: %s row %d has no %s", label, i, key)
		}
		ks := keyString(v)
		if t.store.lookup(label, ks) != nil {
			continue
		}
		t.addNode(label, ks, row)
		c.NodesCreated++
	}
	return c, nil
}

func (t *tx) CreateRelationships(ctx context.Context, spec graph.RelSpec, edges []graph.Edge) (graph.Counters, error) {
	var c graph.Counters
	if err := ctx.Err(); err != nil {
		return c, err
	}
	for _, e := range edges {
		from, to := t.store.lookup(spec.From, e.From), t.store.lookup(spec.To, e.To)
		if from == nil || to == nil {
			continue
		}
		t.addRel(spec.Type, from, to, e.Props)
		c.RelationshipsCreated++
	}
	return c, nil
}

func (t *tx) MergeRelationships(ctx context.Context, spec graph.RelSpec, edges []graph.Edge) (graph.Counters, error) {
	var c graph.Counters
	if err := ctx.Err(); err != nil {
		return c, err
	}
	s := t.store
	for _, e := range edges {
		from, to := s.lookup(spec.From, e.From), s.lookup(spec.To, e.To)
		if from == nil || to == nil {
			continue
		}
		id := mergeIdentity(spec, from, to, e.Props)
		if _, ok := s.merged[id]; ok {
			continue
		}
		s.merged[id] = t.addRel(spec.Type, from, to, e.Props)
		t.mergeKeys = append(t.mergeKeys, id)
		c.RelationshipsCreated++
	}
	return c, nil
}

func (ss *session) LabelCounts(ctx context.Context) ([]graph.Count, error) {
	if err := ss.check(ctx); err != nil {
		return nil, err
	}
	s := ss.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []graph.Count
	for label, byKey := range s.nodes {
		if len(byKey) > 0 {
			out = append(out, graph.Count{Name: label, Count: int64(len(byKey))})
		}
	}
	sortCounts(out)
	return out, nil
}

func (ss *session) RelationshipCounts(ctx context.Context) ([]graph.Count, error) {
	if err := ss.check(ctx); err != nil {
		return nil, err
	}
	s := ss.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	byType := map[string]int64{}
	for _, r := range s.rels {
		byType[r.typ]++
	}
	out := make([]graph.Count, 0, len(byType))
	for typ, n := range byType {
		out = append(out, graph.Count{Name: typ, Count: n})
	}
	sortCounts(out)
	return out, nil
}

func sortCounts(c []graph.Count) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].Count != c[j].Count {
			return c[i].Count > c[j].Count
		}
		return c[i].Name < c[j].Name
	})
}

func (ss *session) Batches(ctx context.Context) ([]graph.BatchRow, error) {
	if err := ss.check(ctx); err != nil {
		return nil, err
	}
	s := ss.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]*node, 0, len(s.nodes[graph.LabelBatchUpload]))
	for _, n := range s.nodes[graph.LabelBatchUpload] {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		ti, tj := str(nodes[i].props["upload_timestamp"]), str(nodes[j].props["upload_timestamp"])
		if ti != tj {
			return ti > tj
		}
		return nodes[i].seq > nodes[j].seq
	})

	out := make([]graph.BatchRow, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, graph.BatchRow{
			BatchID:          str(n.props["batch_id"]),
			Filename:         str(n.props["filename"]),
			UploadTimestamp:  str(n.props["upload_timestamp"]),
			TransactionCount: toInt64(n.props["transaction_count"]),
			TotalAmount:      toFloat(n.props["total_amount"]),
		})
	}
	return out, nil
}

func (ss *session) CategoryRollup(ctx context.Context) ([]graph.CategoryRow, error) {
	if err := ss.check(ctx); err != nil {
		return nil, err
	}
	s := ss.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	byName := map[string]*graph.CategoryRow{}
	for _, r := range s.rels {
		if r.typ != graph.RelCategorizedAs {
			continue
		}
		row, ok := byName[r.to.key]
		if !ok {
			row = &graph.CategoryRow{Category: r.to.key}
			byName[r.to.key] = row
		}
		row.TransactionCount++
		row.TotalAmount += toFloat(r.from.props["amount"])
	}

	out := make([]graph.CategoryRow, 0, len(byName))
	for _, row := range byName {
		row.AverageAmount = row.TotalAmount / float64(row.TransactionCount)
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TransactionCount != out[j].TransactionCount {
			return out[i].TransactionCount > out[j].TransactionCount
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

func (ss *session) MerchantRollup(ctx context.Context, limit int) ([]graph.MerchantRow, error) {
	if err := ss.check(ctx); err != nil {
		return nil, err
	}
	s := ss.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	type acc struct {
		row   graph.MerchantRow
		first *node
	}
	byName := map[string]*acc{}
	for _, r := range s.rels {
		if r.typ != graph.RelFromMerchant {
			continue
		}
		a, ok := byName[r.to.key]
		if !ok {
			a = &acc{row: graph.MerchantRow{Merchant: r.to.key}}
			byName[r.to.key] = a
		}
		a.row.TransactionCount++
		a.row.TotalAmount += toFloat(r.from.props["amount"])
		if a.first == nil || r.from.seq < a.first.seq {
			a.first = r.from
		}
	}

	out := make([]graph.MerchantRow, 0, len(byName))
	for _, a := range byName {
		a.row.Category = str(a.first.props["category"])
		out = append(out, a.row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TransactionCount != out[j].TransactionCount {
			return out[i].TransactionCount > out[j].TransactionCount
		}
		return out[i].Merchant < out[j].Merchant
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (ss *session) BatchFootprint(ctx context.Context, batchID string) (graph.Footprint, error) {
	var fp graph.Footprint
	if err := ss.check(ctx); err != nil {
		return fp, err
	}
	s := ss.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := map[*node]bool{}
	for _, n := range s.nodes[graph.LabelTransaction] {
		if str(n.props["batch_id"]) == batchID {
			txs[n] = true
		}
	}
	if len(txs) == 0 {
		return fp, nil
	}

	nodes := map[*node]bool{}
	for n := range txs {
		nodes[n] = true
	}
	rels := map[*rel]bool{}
	for _, r := range s.rels {
		if txs[r.from] || txs[r.to] {
			rels[r] = true
			nodes[r.from] = true
			nodes[r.to] = true
		}
	}
	for _, r := range s.rels {
		if r.typ == graph.RelSameCategory && nodes[r.from] && nodes[r.to] {
			rels[r] = true
		}
	}

	fp.Nodes = int64(len(nodes))
	fp.Relationships = int64(len(rels))
	return fp, nil
}

func str(v any) string {
	if v == nil {
		return ""
	}
	return keyString(v)
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}
