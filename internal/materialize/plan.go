package materialize

import (
	"sort"
	"time"

	"github.com/dvloznov/statement-graph/internal/domain"
	"github.com/dvloznov/statement-graph/internal/graph"
)

// plan is every node and relationship one batch writes, computed up front so
// a retried transaction replays exactly the same writes.
type plan struct {
	batch        graph.Props
	transactions []graph.Props
	categories   []graph.Props
	merchants    []graph.Props

	partOf        []graph.Edge
	categorizedAs []graph.Edge
	fromMerchant  []graph.Edge
	sameCategory  []graph.Edge
	sameDay       []graph.Edge
}

func buildPlan(b domain.Batch, records []domain.Transaction, newID func() string, now time.Time) *plan {
	p := &plan{
		batch: graph.Props{
			"batch_id":          b.BatchID,
			"filename":          b.Filename,
			"upload_timestamp":  b.UploadedAt.UTC().Format(time.RFC3339),
			"transaction_count": int64(len(records)),
			"total_amount":      b.Summary.TotalAmount,
		},
	}
	createdAt := now.UTC().Format(time.RFC3339Nano)

	ids := make([]string, len(records))
	seenCategory := map[string]bool{}
	seenMerchant := map[string]bool{}
	byDate := map[string][]int{}
	var dates []string
	merchantsByCategory := map[string]map[string]bool{}
	var categoryOrder []string

	for i, r := range records {
		id := newID()
		ids[i] = id
		category := r.Category
		if category == "" {
			category = domain.CategoryOther
		}
		merchant := graph.MerchantName(r.Description)

		p.transactions = append(p.transactions, graph.Props{
			"id":          id,
			"batch_id":    b.BatchID,
			"date":        r.Date,
			"description": r.Description,
			"amount":      r.Amount,
			"category":    category,
			"merchant":    merchant,
			"seq":         int64(i),
			"created_at":  createdAt,
		})
		p.partOf = append(p.partOf, graph.Edge{From: id, To: b.BatchID})
		p.categorizedAs = append(p.categorizedAs, graph.Edge{From: id, To: category})
		p.fromMerchant = append(p.fromMerchant, graph.Edge{From: id, To: merchant})

		if !seenCategory[category] {
			seenCategory[category] = true
			p.categories = append(p.categories, graph.Props{"name": category})
			merchantsByCategory[category] = map[string]bool{}
			categoryOrder = append(categoryOrder, category)
		}
		if !seenMerchant[merchant] {
			seenMerchant[merchant] = true
			p.merchants = append(p.merchants, graph.Props{"name": merchant})
		}
		merchantsByCategory[category][merchant] = true

		if _, ok := byDate[r.Date]; !ok {
			dates = append(dates, r.Date)
		}
		byDate[r.Date] = append(byDate[r.Date], i)
	}

	p.sameDay = sameDayEdges(dates, byDate, ids)
	p.sameCategory = sameCategoryEdges(categoryOrder, merchantsByCategory)
	return p
}

// sameDayEdges links every pair of transactions sharing a date once,
// directed from the earlier record to the later one. Only transactions in the
// same date bucket are compared.
func sameDayEdges(dates []string, byDate map[string][]int, ids []string) []graph.Edge {
	var edges []graph.Edge
	for _, d := range dates {
		bucket := byDate[d]
		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				edges = append(edges, graph.Edge{
					From:  ids[bucket[i]],
					To:    ids[bucket[j]],
					Props: graph.Props{"date": d},
				})
			}
		}
	}
	return edges
}

// sameCategoryEdges links every pair of distinct merchants that share a
// category in this batch, directed from the lexicographically smaller name.
// A pair sharing several categories gets one edge tagged with the first
// category in batch order.
func sameCategoryEdges(categories []string, merchants map[string]map[string]bool) []graph.Edge {
	var edges []graph.Edge
	seen := map[[2]string]bool{}
	for _, c := range categories {
		names := make([]string, 0, len(merchants[c]))
		for m := range merchants[c] {
			names = append(names, m)
		}
		sort.Strings(names)
		for i := 0; i < len(names); i++ {
			for j := i + 1; j < len(names); j++ {
				pair := [2]string{names[i], names[j]}
				if seen[pair] {
					continue
				}
				seen[pair] = true
				edges = append(edges, graph.Edge{
					From:  names[i],
					To:    names[j],
					Props: graph.Props{"category": c},
				})
			}
		}
	}
	return edges
}
