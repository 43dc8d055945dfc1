package rerank

import "context"

// Scorer computes a pairwise relevance score for (query, text).
// Implementations must be safe for concurrent use across requests.
type Scorer interface {
	Score(ctx context.Context, query, text string) (float64, error)
}
