// Package scout implements just-in-time context distillation: resolve a
// hit's full text, keep only the units relevant to the query, attach the
// reduced artifact.
//
// Fetched text lives only on the stack of a single Distill call. It is
// scored, reduced, and discarded; the Hit's persistent content fields are
// never written. The index therefore never accumulates a second copy of
// externally-held content, and ACLs are re-checked on every read.
package scout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/hit"
)

// DefaultThreshold is the relevance cutoff for keeping a unit.
const DefaultThreshold = 0.4

// Service distills hits with injected fetch, segmentation, and scoring
// capabilities.
type Service struct {
	scorer    Scorer
	fetcher   Fetcher
	segmenter Segmenter
	threshold float64
}

// New creates a Scout. threshold <= 0 falls back to DefaultThreshold;
// a nil segmenter falls back to sentence granularity.
func New(scorer Scorer, fetcher Fetcher, segmenter Segmenter, threshold float64) *Service {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if segmenter == nil {
		segmenter = SentenceSegmenter{}
	}
	return &Service{
		scorer:    scorer,
		fetcher:   fetcher,
		segmenter: segmenter,
		threshold: threshold,
	}
}

// DistillAll distills each hit independently. A hit whose content cannot be
// resolved or whose fetch is denied stays in the output undistilled, with a
// note explaining why; one bad hit never aborts the batch.
func (s *Service) DistillAll(
	ctx context.Context, query string, hits []hit.Hit, principal domain.Principal,
) ([]hit.Hit, []string) {
	out := make([]hit.Hit, 0, len(hits))
	var notes []string

	for _, h := range hits {
		distilled, err := s.Distill(ctx, query, &h, principal)
		if err != nil {
			notes = append(notes, fmt.Sprintf("distill %s: %s", h.ID(), err.Error()))
			out = append(out, h)
			continue
		}
		out = append(out, distilled)
	}
	return out, notes
}

// Distill resolves the hit's text, scores its units against the query, and
// returns a copy with distilled_text holding the units at or above the
// threshold in their original order.
func (s *Service) Distill(
	ctx context.Context, query string, h *hit.Hit, principal domain.Principal,
) (hit.Hit, error) {
	text, err := s.resolveText(ctx, h, principal)
	if err != nil {
		return hit.Hit{}, err
	}

	var kept []string
	for _, unit := range s.segmenter.Segment(text) {
		score, err := s.scorer.ScoreUnit(ctx, query, unit)
		if err != nil {
			return hit.Hit{}, fmt.Errorf("score unit: %w", err)
		}
		if score >= s.threshold {
			kept = append(kept, unit)
		}
	}

	return h.WithDistilled(strings.Join(kept, " ")), nil
}

// resolveText returns the working text for distillation: inline content if
// resident, otherwise a just-in-time fetch authorized as the caller.
func (s *Service) resolveText(ctx context.Context, h *hit.Hit, principal domain.Principal) (string, error) {
	if text, ok := h.Source().Inline(); ok {
		return text, nil
	}

	pointer, ok := h.Source().Pointer()
	if !ok {
		return "", domain.ErrUnresolvableContent
	}
	if !principal.Allowed(pointer.ACLs()) {
		return "", domain.ErrAccessDenied
	}

	text, err := s.fetcher.Fetch(ctx, pointer.Locator(), principal)
	if err != nil {
		if errors.Is(err, domain.ErrAccessDenied) || errors.Is(err, domain.ErrNotFound) {
			return "", err
		}
		return "", fmt.Errorf("fetch %s: %w", pointer.Locator(), err)
	}
	return text, nil
}
