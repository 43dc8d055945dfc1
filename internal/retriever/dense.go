package retriever

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/hit"
	"github.com/kailas-cloud/retrievex/internal/domain/search/request"
	"github.com/kailas-cloud/retrievex/internal/domain/search/strategy"
)

// Dense retrieves by cosine similarity: embed the query, then KNN search.
type Dense struct {
	index VectorSearcher
	embed domain.Embedder
}

// NewDense creates the dense-vector retriever.
func NewDense(index VectorSearcher, embed domain.Embedder) *Dense {
	return &Dense{index: index, embed: embed}
}

// Strategy implements Retriever.
func (d *Dense) Strategy() strategy.Strategy { return strategy.Dense }

// Retrieve embeds the query text and runs a bounded similarity search.
func (d *Dense) Retrieve(ctx context.Context, req *request.Request, topN int) ([]hit.Hit, error) {
	if err := validateIndexFilters(req.Filters()); err != nil {
		return nil, err
	}

	embResult, err := d.embed.Embed(ctx, req.Query().Text())
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	docs, err := d.index.VectorSearch(ctx, embResult.Embedding, topN, req.Filters())
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	hits := make([]hit.Hit, 0, len(docs))
	for _, doc := range docs {
		hits = append(hits, docToHit(doc, strategy.Dense))
	}
	return hits, nil
}
