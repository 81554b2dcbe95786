// Package graph defines the property-graph store the materializer writes to
// and the aggregation service reads from.
package graph

import (
	"context"
	"strings"
)

// Node labels.
const (
	LabelTransaction = "Transaction"
	LabelCategory    = "Category"
	LabelMerchant    = "Merchant"
	LabelBatchUpload = "BatchUpload"
)

// Relationship types.
const (
	RelPartOf        = "PART_OF"
	RelCategorizedAs = "CATEGORIZED_AS"
	RelFromMerchant  = "FROM_MERCHANT"
	RelSameCategory  = "SAME_CATEGORY"
	RelSameDay       = "SAME_DAY"
)

var identityKeys = map[string]string{
	LabelTransaction: "id",
	LabelCategory:    "name",
	LabelMerchant:    "name",
	LabelBatchUpload: "batch_id",
}

// IdentityKey returns the property that identifies nodes with the given
// label, or "" for labels this package does not know.
func IdentityKey(label string) string {
	return identityKeys[label]
}

// Labels lists every node label in a stable order.
func Labels() []string {
	return []string{LabelTransaction, LabelCategory, LabelMerchant, LabelBatchUpload}
}

// Props is a property map for one node or relationship.
type Props map[string]any

// RelSpec describes a batch of relationships of one type between two labels.
// Keys names the relationship properties that, together with the endpoints,
// identify a relationship for MergeRelationships.
type RelSpec struct {
	Type string
	From string
	To   string
	Keys []string
}

// Edge connects two nodes by their identity-key values.
type Edge struct {
	From  any
	To    any
	Props Props
}

// Counters are exact creation counts reported by a write call.
type Counters struct {
	NodesCreated         int
	RelationshipsCreated int
}

// Add accumulates o into c.
func (c *Counters) Add(o Counters) {
	c.NodesCreated += o.NodesCreated
	c.RelationshipsCreated += o.RelationshipsCreated
}

// Tx is a write transaction. Relationship calls whose endpoints cannot be
// found create nothing for that edge, the way a Cypher MATCH would.
type Tx interface {
	CreateNodes(ctx context.Context, label string, rows []Props) (Counters, error)
	// MergeNodes finds or creates one node per row by the value of key.
	// Existing nodes are left unchanged.
	MergeNodes(ctx context.Context, label, key string, rows []Props) (Counters, error)
	CreateRelationships(ctx context.Context, spec RelSpec, edges []Edge) (Counters, error)
	MergeRelationships(ctx context.Context, spec RelSpec, edges []Edge) (Counters, error)
}

// Count is a name with an occurrence count.
type Count struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// BatchRow is one BatchUpload node.
type BatchRow struct {
	BatchID          string  `json:"batch_id"`
	Filename         string  `json:"filename"`
	UploadTimestamp  string  `json:"upload_timestamp"`
	TransactionCount int64   `json:"transaction_count"`
	TotalAmount      float64 `json:"total_amount"`
}

// CategoryRow is one category rollup line.
type CategoryRow struct {
	Category         string  `json:"category"`
	TransactionCount int64   `json:"transaction_count"`
	TotalAmount      float64 `json:"total_amount"`
	AverageAmount    float64 `json:"average_amount"`
}

// MerchantRow is one merchant rollup line. Category comes from the
// merchant's earliest transaction, not its most common one.
type MerchantRow struct {
	Merchant         string  `json:"merchant"`
	TransactionCount int64   `json:"transaction_count"`
	TotalAmount      float64 `json:"total_amount"`
	Category         string  `json:"category"`
}

// Footprint counts the nodes and relationships reachable from one batch's
// transactions, including shared Category and Merchant nodes and the
// SAME_CATEGORY edges between the batch's merchants.
type Footprint struct {
	Nodes         int64 `json:"nodes"`
	Relationships int64 `json:"relationships"`
}

// Reader is the read side of a session.
type Reader interface {
	LabelCounts(ctx context.Context) ([]Count, error)
	RelationshipCounts(ctx context.Context) ([]Count, error)
	Batches(ctx context.Context) ([]BatchRow, error)
	CategoryRollup(ctx context.Context) ([]CategoryRow, error)
	MerchantRollup(ctx context.Context, limit int) ([]MerchantRow, error)
	BatchFootprint(ctx context.Context, batchID string) (Footprint, error)
}

// Session is a unit of work against the store. It is not safe for
// concurrent use; each upload or query opens its own.
type Session interface {
	Reader
	// WriteTx runs fn in one transaction. It commits when fn returns nil
	// and rolls back otherwise. Reader methods must not be called from fn.
	WriteTx(ctx context.Context, fn func(Tx) error) error
	Close(ctx context.Context) error
}

// Store opens sessions.
type Store interface {
	OpenSession(ctx context.Context) (Session, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// MerchantName infers a merchant from a description: its first two
// whitespace-separated tokens, or the whole trimmed description when it has
// fewer than two.
func MerchantName(description string) string {
	tokens := strings.Fields(description)
	if len(tokens) < 2 {
		return strings.TrimSpace(description)
	}
	return tokens[0] + " " + tokens[1]
}
