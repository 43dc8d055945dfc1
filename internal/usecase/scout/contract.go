package scout

import (
	"context"

	"github.com/kailas-cloud/retrievex/internal/domain"
)

// Scorer rates one text unit's relevance to the query.
// Implementations must be safe for concurrent use across requests.
type Scorer interface {
	ScoreUnit(ctx context.Context, query, unit string) (float64, error)
}

// Fetcher resolves a source pointer to full text on behalf of a principal.
type Fetcher interface {
	Fetch(ctx context.Context, locator string, principal domain.Principal) (string, error)
}

// Segmenter splits resolved text into an ordered sequence of non-overlapping
// units covering the text. The boundary policy (sentence vs. paragraph vs.
// model-determined) is the implementation's concern; the Scout only relies
// on the total ordering.
type Segmenter interface {
	Segment(text string) []string
}
