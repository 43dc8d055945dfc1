package engine

import (
	"context"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/filter"
	"github.com/kailas-cloud/retrievex/internal/domain/search/hit"
	"github.com/kailas-cloud/retrievex/internal/domain/search/request"
	"github.com/kailas-cloud/retrievex/internal/domain/search/strategy"
	"github.com/kailas-cloud/retrievex/internal/usecase/fusion"
)

// Retriever executes one retrieval strategy.
type Retriever interface {
	Strategy() strategy.Strategy
	Retrieve(ctx context.Context, req *request.Request, topN int) ([]hit.Hit, error)
}

// Fuser merges per-strategy ranked lists.
type Fuser interface {
	Fuse(lists []fusion.List) []hit.Hit
}

// Reranker reorders a bounded candidate set by pairwise relevance.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []hit.Hit, keepK int) (ranked []hit.Hit, dropped int, err error)
}

// Distiller reduces hits to their query-relevant segments.
type Distiller interface {
	DistillAll(ctx context.Context, query string, hits []hit.Hit, principal domain.Principal) ([]hit.Hit, []string)
}

// Pager fetches one page of an exhaustive boolean query.
type Pager interface {
	Page(ctx context.Context, query request.Query, filters filter.Expression, offset, limit int) ([]hit.Hit, int, error)
}

// Snapshotter reports the backend index revision for audit records.
type Snapshotter interface {
	Snapshot(ctx context.Context) (int64, error)
}
