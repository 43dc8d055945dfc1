package request

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/filter"
	"github.com/kailas-cloud/retrievex/internal/domain/search/mode"
	"github.com/kailas-cloud/retrievex/internal/domain/search/strategy"
)

// Search parameter limits.
const (
	MaxQueryLength = 4096
	DefaultTopK    = 5
	MaxTopK        = 100
)

// Query is either free text (ad-hoc) or a structured boolean expression
// (field -> term conjunction, systematic mode's native form).
type Query struct {
	text    string
	boolean map[string]string
}

// NewTextQuery creates a free-text query.
func NewTextQuery(text string) Query { return Query{text: text} }

// NewBooleanQuery creates a structured boolean query.
func NewBooleanQuery(fields map[string]string) Query { return Query{boolean: fields} }

// Text returns the free-text form. For boolean queries it renders the
// conjunction deterministically (fields in sorted order), which retrievers
// without native boolean support use as a plain query.
func (q Query) Text() string {
	if q.boolean == nil {
		return q.text
	}
	keys := make([]string, 0, len(q.boolean))
	for k := range q.boolean {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", k, q.boolean[k]))
	}
	return strings.Join(parts, " AND ")
}

// Boolean returns the structured form, if any.
func (q Query) Boolean() (map[string]string, bool) {
	return q.boolean, q.boolean != nil
}

// IsEmpty reports whether the query has no content at all.
func (q Query) IsEmpty() bool { return q.text == "" && len(q.boolean) == 0 }

// Request is a validated, immutable search request.
type Request struct {
	query      Query
	execMode   mode.Mode
	strategies []strategy.Strategy
	fusion     bool
	rerank     bool
	distill    bool
	topK       int
	filters    filter.Expression
	principal  domain.Principal
}

// New validates and normalizes a search request.
//
// Systematic mode only admits boolean-capable strategies, and its stage
// toggles are forced off regardless of the caller's values: systematic
// reviews require unaltered, exhaustive results. Ad-hoc requests naming
// multiple strategies with fusion disabled are rejected, because no other
// merge order is defined.
func New(
	query Query,
	m mode.Mode,
	strategies []strategy.Strategy,
	fusion, rerank, distill bool,
	topK int,
	filters filter.Expression,
	principal domain.Principal,
) (Request, error) {
	if query.IsEmpty() {
		return Request{}, fmt.Errorf("%w: query is required", domain.ErrValidation)
	}
	if len(query.Text()) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w: query too long (max %d chars)", domain.ErrValidation, MaxQueryLength)
	}
	if m == "" {
		m = mode.AdHoc
	}
	if !m.IsValid() {
		return Request{}, fmt.Errorf("%w: invalid mode %q", domain.ErrValidation, m)
	}
	if len(strategies) == 0 {
		return Request{}, fmt.Errorf("%w: at least one strategy is required", domain.ErrValidation)
	}
	seen := make(map[strategy.Strategy]struct{}, len(strategies))
	for _, s := range strategies {
		if !s.IsValid() {
			return Request{}, fmt.Errorf("%w: unknown strategy %q", domain.ErrValidation, s)
		}
		if _, dup := seen[s]; dup {
			return Request{}, fmt.Errorf("%w: duplicate strategy %q", domain.ErrValidation, s)
		}
		seen[s] = struct{}{}
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	if m == mode.Systematic {
		for _, s := range strategies {
			if !s.BooleanCapable() {
				return Request{}, fmt.Errorf(
					"%w: strategy %q cannot serve systematic mode", domain.ErrValidation, s)
			}
		}
		// Structurally disabled: exhaustive results must reach the caller unaltered.
		fusion, rerank, distill = false, false, false
	} else if len(strategies) > 1 && !fusion {
		return Request{}, domain.ErrAmbiguousMerge
	}

	return Request{
		query:      query,
		execMode:   m,
		strategies: strategies,
		fusion:     fusion,
		rerank:     rerank,
		distill:    distill,
		topK:       topK,
		filters:    filters,
		principal:  principal,
	}, nil
}

// Query returns the search query.
func (r *Request) Query() Query { return r.query }

// Mode returns the execution mode.
func (r *Request) Mode() mode.Mode { return r.execMode }

// Strategies returns the requested strategies in priority order.
func (r *Request) Strategies() []strategy.Strategy { return r.strategies }

// FusionEnabled reports whether the fusion stage runs.
func (r *Request) FusionEnabled() bool { return r.fusion }

// RerankEnabled reports whether the re-rank stage runs.
func (r *Request) RerankEnabled() bool { return r.rerank }

// DistillEnabled reports whether the distillation stage runs.
func (r *Request) DistillEnabled() bool { return r.distill }

// TopK returns the bounded result count for ad-hoc mode.
func (r *Request) TopK() int { return r.topK }

// Filters returns the metadata filter expression.
func (r *Request) Filters() filter.Expression { return r.filters }

// Principal returns the caller identity used for content fetch authorization.
func (r *Request) Principal() domain.Principal { return r.principal }
