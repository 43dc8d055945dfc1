// Package retriever holds the strategy dispatch shims: one Retriever per
// variant, each translating the generic request into calls against a narrow
// backend capability.
package retriever

import (
	"context"

	"github.com/kailas-cloud/retrievex/internal/domain/search/filter"
	"github.com/kailas-cloud/retrievex/internal/domain/search/hit"
	"github.com/kailas-cloud/retrievex/internal/domain/search/request"
	"github.com/kailas-cloud/retrievex/internal/domain/search/strategy"
)

// Doc is a raw backend record before it becomes a Hit. Exactly one of
// Content and Locator is expected to be set: Content for index-resident
// documents, Locator (+ ACLs) for pointer-only records.
type Doc struct {
	ID       string
	Score    float64
	Content  string
	Locator  string
	ACLs     []string
	Metadata map[string]any
}

// VectorSearcher is the similarity-search capability of the index.
type VectorSearcher interface {
	VectorSearch(ctx context.Context, vector []float32, topN int, filters filter.Expression) ([]Doc, error)
}

// TextSearcher is the boolean/full-text capability of the index.
type TextSearcher interface {
	TextSearch(ctx context.Context, query string, topN int, filters filter.Expression) ([]Doc, error)
}

// Pager is the pagination capability backing systematic streaming.
// Total is the full match count, stable for the life of the query.
type Pager interface {
	TextSearchPage(
		ctx context.Context, query string, filters filter.Expression, offset, limit int,
	) (docs []Doc, total int, err error)
}

// GraphNode is a node returned by the graph capability.
type GraphNode struct {
	ID       string
	Label    string
	Distance int
	Content  string
	Locator  string
	ACLs     []string
	Metadata map[string]any
}

// GraphStore is the symbolic-graph capability: node lookup plus 1-hop expansion.
type GraphStore interface {
	SearchNodes(ctx context.Context, query string, limit int) ([]GraphNode, error)
	Neighbors(ctx context.Context, nodeID string, hops int) ([]GraphNode, error)
}

// Retriever executes one retrieval strategy.
type Retriever interface {
	Strategy() strategy.Strategy
	Retrieve(ctx context.Context, req *request.Request, topN int) ([]hit.Hit, error)
}

// docToHit maps a backend record to a Hit tagged with its strategy.
func docToHit(d Doc, strat strategy.Strategy) hit.Hit {
	var src hit.Source
	switch {
	case d.Locator != "":
		src = hit.PointerSource(d.Locator, d.ACLs)
	default:
		src = hit.InlineSource(d.Content)
	}
	return hit.New(d.ID, d.Score, strat, d.Metadata, src)
}
