// Package fusion merges ranked lists from multiple retrieval strategies into
// one deduplicated list via Reciprocal Rank Fusion. It is a pure function of
// its inputs: no I/O, no model calls.
package fusion

import (
	"sort"

	"github.com/kailas-cloud/retrievex/internal/domain/search/hit"
	"github.com/kailas-cloud/retrievex/internal/domain/search/strategy"
)

// DefaultK is the standard RRF smoothing constant (Cormack et al. 2009).
// It keeps a single strategy's rank-1 item from overwhelming summed
// contributions.
const DefaultK = 60

// List is one strategy's ranked output.
type List struct {
	Strategy strategy.Strategy
	Hits     []hit.Hit
}

// Engine fuses ranked lists with a configurable smoothing constant.
type Engine struct {
	k int
}

// New creates a fusion engine. k <= 0 falls back to DefaultK.
func New(k int) *Engine {
	if k <= 0 {
		k = DefaultK
	}
	return &Engine{k: k}
}

// Fuse merges the lists. Each appearance of a document at 1-based rank r
// contributes 1/(k+r); contributions across strategies sum. Lists are
// processed in the given order (request priority order): the first
// occurrence fixes the hit's content source, the last occurrence wins for
// metadata, and the score is always recomputed.
//
// Output order is deterministic: summed score descending, then number of
// contributing strategies descending, then document id ascending.
func (e *Engine) Fuse(lists []List) []hit.Hit {
	type accum struct {
		base         hit.Hit
		score        float64
		contributors []strategy.Strategy
		metadata     map[string]any
	}

	merged := make(map[string]*accum)

	for _, list := range lists {
		for rank, h := range list.Hits {
			contribution := 1.0 / float64(e.k+rank+1)

			acc, ok := merged[h.ID()]
			if !ok {
				acc = &accum{base: h}
				merged[h.ID()] = acc
			}
			acc.score += contribution
			acc.contributors = append(acc.contributors, list.Strategy)
			if h.Metadata() != nil {
				acc.metadata = h.Metadata()
			}
		}
	}

	fused := make([]hit.Hit, 0, len(merged))
	for _, acc := range merged {
		fused = append(fused, acc.base.WithFusion(acc.score, acc.contributors, acc.metadata))
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score() != fused[j].Score() {
			return fused[i].Score() > fused[j].Score()
		}
		ci, cj := len(fused[i].Contributors()), len(fused[j].Contributors())
		if ci != cj {
			return ci > cj
		}
		return fused[i].ID() < fused[j].ID()
	})

	return fused
}

// Flatten concatenates lists in priority order, deduplicating by document id
// with first occurrence kept. Used when fusion is disabled (single strategy).
func Flatten(lists []List) []hit.Hit {
	seen := make(map[string]struct{})
	var out []hit.Hit
	for _, list := range lists {
		for _, h := range list.Hits {
			if _, dup := seen[h.ID()]; dup {
				continue
			}
			seen[h.ID()] = struct{}{}
			out = append(out, h)
		}
	}
	return out
}
