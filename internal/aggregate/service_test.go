package aggregate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dvloznov/statement-graph/internal/batch"
	"github.com/dvloznov/statement-graph/internal/domain"
	"github.com/dvloznov/statement-graph/internal/graph"
	"github.com/dvloznov/statement-graph/internal/graph/memgraph"
	"github.com/dvloznov/statement-graph/internal/logger"
	"github.com/dvloznov/statement-graph/internal/materialize"
)

func testContext() context.Context {
	return logger.WithContext(context.Background(), logger.NewWithWriter(&bytes.Buffer{}))
}

func seed(t *testing.T, store graph.Store, filename string, at time.Time, records []domain.Transaction) {
	t.Helper()
	b, enriched, err := batch.Assemble(records, filename, at)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if _, err := materialize.NewBuilder(store, 0).Materialize(testContext(), b, enriched); err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
}

func seededStore(t *testing.T) *memgraph.Store {
	store := memgraph.New()
	seed(t, store, "jan.csv", time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC), []domain.Transaction{
		{Date: "2024-01-05", Description: "Starbucks Coffee", Amount: -4.50, Category: "dining"},
		{Date: "2024-01-05", Description: "Amazon Marketplace", Amount: -32.10, Category: "shopping"},
		{Date: "2024-01-09", Description: "Starbucks Coffee", Amount: -3.20, Category: "dining"},
	})
	seed(t, store, "feb.csv", time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC), []domain.Transaction{
		{Date: "2024-02-01", Description: "Rent Payment", Amount: -1200, Category: "housing"},
		{Date: "2024-02-02", Description: "Starbucks Coffee Beans", Amount: -12.99, Category: "shopping"},
	})
	return store
}

func TestGlobalSummary(t *testing.T) {
	svc := NewService(seededStore(t))

	got, err := svc.GlobalSummary(testContext())
	if err != nil {
		t.Fatalf("GlobalSummary() error = %v", err)
	}
	byName := map[string]int64{}
	for i, c := range got.Nodes {
		byName[c.Name] = c.Count
		if i > 0 && got.Nodes[i-1].Count < c.Count {
			t.Errorf("node counts not descending: %+v", got.Nodes)
		}
	}
	if byName[graph.LabelTransaction] != 5 || byName[graph.LabelBatchUpload] != 2 ||
		byName[graph.LabelCategory] != 3 || byName[graph.LabelMerchant] != 3 {
		t.Errorf("node counts = %v", byName)
	}
	if got.TotalNodes != 13 {
		t.Errorf("TotalNodes = %d, want 13", got.TotalNodes)
	}
	for i := 1; i < len(got.Relationships); i++ {
		if got.Relationships[i-1].Count < got.Relationships[i].Count {
			t.Errorf("relationship counts not descending: %+v", got.Relationships)
		}
	}
}

func TestBatches_NewestFirst(t *testing.T) {
	svc := NewService(seededStore(t))

	rows, err := svc.Batches(testContext())
	if err != nil {
		t.Fatalf("Batches() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Batches() = %+v", rows)
	}
	if rows[0].Filename != "feb.csv" || rows[1].Filename != "jan.csv" {
		t.Errorf("order = %s, %s", rows[0].Filename, rows[1].Filename)
	}
	if rows[1].TransactionCount != 3 || rows[1].TotalAmount != -39.80 {
		t.Errorf("jan batch = %+v", rows[1])
	}
}

func TestCategories(t *testing.T) {
	svc := NewService(seededStore(t))

	rows, err := svc.Categories(testContext())
	if err != nil {
		t.Fatalf("Categories() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Categories() = %+v", rows)
	}
	first := rows[0]
	if first.TransactionCount != 2 {
		t.Errorf("first row = %+v, want a category with 2 transactions", first)
	}
	for _, r := range rows {
		if r.Category == "dining" && (r.TotalAmount != -7.70 || r.AverageAmount != -3.85) {
			t.Errorf("dining = %+v", r)
		}
	}
}

func TestMerchants(t *testing.T) {
	svc := NewService(seededStore(t))

	rows, err := svc.Merchants(testContext(), 0)
	if err != nil {
		t.Fatalf("Merchants() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Merchants() = %+v", rows)
	}
	top := rows[0]
	if top.Merchant != "Starbucks Coffee" || top.TransactionCount != 3 {
		t.Errorf("top merchant = %+v", top)
	}
	// first transaction wins even though the merchant also appears as shopping
	if top.Category != "dining" {
		t.Errorf("top merchant category = %q, want dining", top.Category)
	}
	if top.TotalAmount != -20.69 {
		t.Errorf("top merchant total = %v, want -20.69", top.TotalAmount)
	}

	limited, err := svc.Merchants(testContext(), 1)
	if err != nil {
		t.Fatalf("Merchants(1) error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Merchants(1) returned %d rows", len(limited))
	}
}

type closingStore struct {
	graph.Store
	opened, closed int
	openErr        error
}

func (c *closingStore) OpenSession(ctx context.Context) (graph.Session, error) {
	if c.openErr != nil {
		return nil, c.openErr
	}
	c.opened++
	s, err := c.Store.OpenSession(ctx)
	if err != nil {
		return nil, err
	}
	return &closingSession{Session: s, store: c}, nil
}

type closingSession struct {
	graph.Session
	store *closingStore
}

func (s *closingSession) Close(ctx context.Context) error {
	s.store.closed++
	return s.Session.Close(ctx)
}

func (s *closingSession) CategoryRollup(ctx context.Context) ([]graph.CategoryRow, error) {
	return nil, fmt.Errorf("query failed")
}

func TestSessionsClosedOnEveryPath(t *testing.T) {
	store := &closingStore{Store: seededStore(t)}
	svc := NewService(store)
	ctx := testContext()

	if _, err := svc.GlobalSummary(ctx); err != nil {
		t.Fatalf("GlobalSummary() error = %v", err)
	}
	if _, err := svc.Categories(ctx); err == nil {
		t.Fatal("expected Categories() to fail")
	}
	if store.opened != 2 || store.closed != 2 {
		t.Errorf("opened %d closed %d sessions, want 2 and 2", store.opened, store.closed)
	}
}

func TestStoreUnavailable(t *testing.T) {
	svc := NewService(&closingStore{Store: memgraph.New(), openErr: errors.New("refused")})
	_, err := svc.Batches(testContext())
	if !errors.Is(err, domain.ErrGraphStoreUnavailable) {
		t.Fatalf("Batches() error = %v, want GraphStoreUnavailable", err)
	}
}
