package domain

import "time"

// Batch is one upload's worth of transactions. It is created once by the batch
// assembler and never mutated afterwards.
type Batch struct {
	BatchID          string       `json:"batch_id"`
	Filename         string       `json:"filename"`
	UploadedAt       time.Time    `json:"upload_timestamp"`
	TransactionCount int          `json:"transaction_count"`
	Summary          BatchSummary `json:"summary"`
}

// BatchSummary holds aggregate statistics over a batch's transactions.
type BatchSummary struct {
	TransactionCount     int                      `json:"transaction_count"`
	TotalAmount          float64                  `json:"total_amount"`
	AverageAmount        float64                  `json:"average_amount"`
	MinAmount            float64                  `json:"min_amount"`
	MaxAmount            float64                  `json:"max_amount"`
	PositiveTransactions int                      `json:"positive_transactions"`
	NegativeTransactions int                      `json:"negative_transactions"`
	Categories           map[string]CategoryStats `json:"categories"`
}

// CategoryStats is the per-category slice of a BatchSummary.
type CategoryStats struct {
	Count   int     `json:"count"`
	Total   float64 `json:"total"`
	Average float64 `json:"average"`
}

// MaterializeResult reports what one batch did to the graph.
//
// NodesCreated, RelationshipsCreated and TransactionsCreated are exact creation
// counters taken from the store's create/merge calls. NodesReachable and
// RelationshipsReachable are computed afterwards by traversal from the batch's
// transactions; because Category and Merchant nodes are shared across batches,
// they include nodes and edges that earlier batches created.
type MaterializeResult struct {
	NodesCreated           int `json:"nodes_created"`
	RelationshipsCreated   int `json:"relationships_created"`
	TransactionsCreated    int `json:"transactions_created"`
	NodesReachable         int `json:"nodes_reachable"`
	RelationshipsReachable int `json:"relationships_reachable"`
}

// Snapshot is the JSON backup written after a successful materialization.
type Snapshot struct {
	Batch        Batch             `json:"batch"`
	Graph        MaterializeResult `json:"graph"`
	Transactions []Transaction     `json:"transactions"`
}
