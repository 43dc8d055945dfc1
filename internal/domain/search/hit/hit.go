// Package hit defines the atomic result unit of the retrieval pipeline.
//
// A Hit's content is a tagged variant: either inline text resident in the
// index, or a pointer (locator + ACLs) to an external source of truth.
// The type exposes no operation that writes text into the content variant,
// so fetched full text can only ever surface through DistilledText. That is
// what keeps the index from becoming a stale second copy of the source.
package hit

import (
	"github.com/kailas-cloud/retrievex/internal/domain/search/strategy"
)

// Pointer locates content that is not resident in the index.
type Pointer struct {
	locator string
	acls    []string
}

// Locator returns the opaque content locator.
func (p Pointer) Locator() string { return p.locator }

// ACLs returns the access control list guarding the content.
func (p Pointer) ACLs() []string { return p.acls }

// Source is the content variant of a Hit: inline text or a pointer.
// The zero Source has neither, which the Scout reports as unresolvable.
type Source struct {
	inline    string
	hasInline bool
	pointer   *Pointer
}

// InlineSource creates a Source holding index-resident text.
func InlineSource(text string) Source {
	return Source{inline: text, hasInline: true}
}

// PointerSource creates a Source referencing external content.
func PointerSource(locator string, acls []string) Source {
	return Source{pointer: &Pointer{locator: locator, acls: acls}}
}

// Inline returns the resident text, if any.
func (s Source) Inline() (string, bool) { return s.inline, s.hasInline }

// Pointer returns the external pointer, if any.
func (s Source) Pointer() (Pointer, bool) {
	if s.pointer == nil {
		return Pointer{}, false
	}
	return *s.pointer, true
}

// IsZero reports whether the source holds neither inline text nor a pointer.
func (s Source) IsZero() bool { return !s.hasInline && s.pointer == nil }

// Hit is a single retrieved unit of evidence.
type Hit struct {
	id           string
	score        float64
	strategy     strategy.Strategy
	contributors []strategy.Strategy
	metadata     map[string]any
	source       Source
	distilled    string
}

// New creates a hit as produced by a retriever.
func New(
	id string, score float64, strat strategy.Strategy,
	metadata map[string]any, source Source,
) Hit {
	return Hit{
		id:       id,
		score:    score,
		strategy: strat,
		metadata: metadata,
		source:   source,
	}
}

// ID returns the stable document identifier.
func (h *Hit) ID() string { return h.id }

// Score returns the relevance score. Strategy-local until fused, fusion-local
// after, replaced outright by re-ranking.
func (h *Hit) Score() float64 { return h.score }

// Strategy returns the originating strategy tag.
func (h *Hit) Strategy() strategy.Strategy { return h.strategy }

// Contributors returns every strategy that surfaced this document.
// Empty until fusion runs; fusion sets it for provenance.
func (h *Hit) Contributors() []strategy.Strategy {
	if len(h.contributors) == 0 && h.strategy != "" {
		return []strategy.Strategy{h.strategy}
	}
	return h.contributors
}

// Metadata returns the document metadata.
func (h *Hit) Metadata() map[string]any { return h.metadata }

// Source returns the content variant.
func (h *Hit) Source() Source { return h.source }

// DistilledText returns the Scout's reduced artifact, empty before distillation.
func (h *Hit) DistilledText() string { return h.distilled }

// WithScore returns a copy with the score replaced.
func (h Hit) WithScore(score float64) Hit {
	h.score = score
	return h
}

// WithFusion returns a copy carrying a fused score, the contributing strategy
// set, and merged metadata.
func (h Hit) WithFusion(score float64, contributors []strategy.Strategy, metadata map[string]any) Hit {
	h.score = score
	h.contributors = contributors
	h.metadata = metadata
	return h
}

// WithDistilled returns a copy with the distilled text attached. The content
// source is carried over untouched.
func (h Hit) WithDistilled(text string) Hit {
	h.distilled = text
	return h
}
