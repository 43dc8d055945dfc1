package retriever

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/retrievex/internal/domain/search/filter"
	"github.com/kailas-cloud/retrievex/internal/domain/search/hit"
	"github.com/kailas-cloud/retrievex/internal/domain/search/request"
	"github.com/kailas-cloud/retrievex/internal/domain/search/strategy"
)

// Sparse retrieves by boolean/full-text match with a BM25-style score.
// It is the only variant serving systematic mode, via Page.
type Sparse struct {
	index TextSearcher
	pager Pager
}

// NewSparse creates the sparse/boolean retriever.
func NewSparse(index TextSearcher, pager Pager) *Sparse {
	return &Sparse{index: index, pager: pager}
}

// Strategy implements Retriever.
func (s *Sparse) Strategy() strategy.Strategy { return strategy.Sparse }

// Retrieve runs a bounded boolean/full-text search.
func (s *Sparse) Retrieve(ctx context.Context, req *request.Request, topN int) ([]hit.Hit, error) {
	if err := validateIndexFilters(req.Filters()); err != nil {
		return nil, err
	}

	docs, err := s.index.TextSearch(ctx, req.Query().Text(), topN, req.Filters())
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}

	hits := make([]hit.Hit, 0, len(docs))
	for _, doc := range docs {
		hits = append(hits, docToHit(doc, strategy.Sparse))
	}
	return hits, nil
}

// Page fetches one page of an exhaustive boolean query for systematic
// streaming. The returned total is the full match count.
func (s *Sparse) Page(
	ctx context.Context, query request.Query, filters filter.Expression, offset, limit int,
) ([]hit.Hit, int, error) {
	if err := validateIndexFilters(filters); err != nil {
		return nil, 0, err
	}

	docs, total, err := s.pager.TextSearchPage(ctx, query.Text(), filters, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("text search page at %d: %w", offset, err)
	}

	hits := make([]hit.Hit, 0, len(docs))
	for _, doc := range docs {
		hits = append(hits, docToHit(doc, strategy.Sparse))
	}
	return hits, total, nil
}
