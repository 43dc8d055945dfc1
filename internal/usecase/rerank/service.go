// Package rerank refines a bounded candidate set into a strict
// relevance order using a pairwise (query, text) scoring capability.
package rerank

import (
	"context"
	"fmt"
	"sort"

	"github.com/kailas-cloud/retrievex/internal/domain/search/hit"
)

// DefaultCandidateCap bounds how many candidates reach the scorer per request.
const DefaultCandidateCap = 50

// Service re-ranks hits with an injected scorer.
type Service struct {
	scorer Scorer
	cap    int
}

// New creates a re-rank service. candidateCap <= 0 falls back to
// DefaultCandidateCap.
func New(scorer Scorer, candidateCap int) *Service {
	if candidateCap <= 0 {
		candidateCap = DefaultCandidateCap
	}
	return &Service{scorer: scorer, cap: candidateCap}
}

// Rerank scores every candidate against the query and returns the top keepK
// in strictly descending score order. The pairwise score replaces the fusion
// score outright: re-ranking optimizes a different signal and blending the
// two would be meaningless.
//
// Candidates beyond the cap never reach the scorer; dropped reports how many,
// so the caller can record the truncation instead of hiding it.
func (s *Service) Rerank(
	ctx context.Context, query string, candidates []hit.Hit, keepK int,
) (ranked []hit.Hit, dropped int, err error) {
	if len(candidates) > s.cap {
		dropped = len(candidates) - s.cap
		candidates = candidates[:s.cap]
	}
	if len(candidates) == 0 {
		return nil, dropped, nil
	}

	scored := make([]hit.Hit, 0, len(candidates))
	for _, h := range candidates {
		score, scoreErr := s.scorer.Score(ctx, query, candidateText(&h))
		if scoreErr != nil {
			return nil, dropped, fmt.Errorf("score candidate %s: %w", h.ID(), scoreErr)
		}
		scored = append(scored, h.WithScore(score))
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score() != scored[j].Score() {
			return scored[i].Score() > scored[j].Score()
		}
		return scored[i].ID() < scored[j].ID()
	})

	if keepK > 0 && len(scored) > keepK {
		scored = scored[:keepK]
	}
	return scored, dropped, nil
}

// candidateText picks the text the scorer sees: inline content when the
// index holds it, otherwise whatever short-form text the metadata carries.
// Pointer-only hits are never fetched here; full-text resolution belongs to
// the Scout.
func candidateText(h *hit.Hit) string {
	if text, ok := h.Source().Inline(); ok && text != "" {
		return text
	}
	for _, key := range []string{"snippet", "abstract", "title"} {
		if v, ok := h.Metadata()[key].(string); ok && v != "" {
			return v
		}
	}
	return h.ID()
}
