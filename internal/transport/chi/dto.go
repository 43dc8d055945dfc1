package chi

import (
	"fmt"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/filter"
	"github.com/kailas-cloud/retrievex/internal/domain/search/hit"
	"github.com/kailas-cloud/retrievex/internal/domain/search/mode"
	"github.com/kailas-cloud/retrievex/internal/domain/search/provenance"
	"github.com/kailas-cloud/retrievex/internal/domain/search/request"
	"github.com/kailas-cloud/retrievex/internal/domain/search/strategy"
	"github.com/kailas-cloud/retrievex/internal/usecase/engine"
)

// ErrorCode is a machine-readable error identifier in error payloads.
type ErrorCode string

// Error codes returned by the API.
const (
	CodeBadRequest           ErrorCode = "bad_request"
	CodeUnauthorized         ErrorCode = "unauthorized"
	CodeValidationFailed     ErrorCode = "validation_failed"
	CodeAmbiguousMerge       ErrorCode = "ambiguous_merge"
	CodeUnsupportedFilter    ErrorCode = "unsupported_filter"
	CodeAccessDenied         ErrorCode = "access_denied"
	CodeNotFound             ErrorCode = "not_found"
	CodeProviderError        ErrorCode = "embedding_provider_error"
	CodeRetrieverUnavailable ErrorCode = "retriever_unavailable"
	CodeInternalError        ErrorCode = "internal_error"
)

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// PrincipalBody identifies the caller for content access checks.
type PrincipalBody struct {
	Subject string   `json:"subject,omitempty"`
	Groups  []string `json:"groups,omitempty"`
}

// SearchRequestBody is the JSON body of POST /search and
// POST /search/systematic. Exactly one of query and boolean_query must be
// set. Nil toggles default to the full pipeline.
type SearchRequestBody struct {
	Query        string            `json:"query,omitempty"`
	BooleanQuery map[string]string `json:"boolean_query,omitempty"`
	Mode         string            `json:"mode,omitempty"`
	Strategies   []string          `json:"strategies,omitempty"`
	Fusion       *bool             `json:"enable_fusion,omitempty"`
	Rerank       *bool             `json:"enable_rerank,omitempty"`
	Distill      *bool             `json:"enable_distill,omitempty"`
	TopK         int               `json:"top_k,omitempty"`
	Filters      map[string]any    `json:"filters,omitempty"`
	Principal    *PrincipalBody    `json:"principal,omitempty"`
}

// toRequest validates the body and builds the domain request. forceMode,
// when non-empty, overrides the body's mode (the systematic endpoint pins
// it so a stray "adhoc" in the body cannot change the endpoint's contract).
func (b *SearchRequestBody) toRequest(forceMode mode.Mode) (request.Request, error) {
	if b.Query != "" && len(b.BooleanQuery) > 0 {
		return request.Request{}, fmt.Errorf(
			"%w: query and boolean_query are mutually exclusive", domain.ErrValidation)
	}

	var q request.Query
	if len(b.BooleanQuery) > 0 {
		q = request.NewBooleanQuery(b.BooleanQuery)
	} else {
		q = request.NewTextQuery(b.Query)
	}

	m := mode.Mode(b.Mode)
	if forceMode != "" {
		m = forceMode
	}

	strategies := make([]strategy.Strategy, 0, len(b.Strategies))
	for _, s := range b.Strategies {
		strategies = append(strategies, strategy.Strategy(s))
	}
	if len(strategies) == 0 {
		if m == mode.Systematic {
			strategies = []strategy.Strategy{strategy.Sparse}
		} else {
			strategies = []strategy.Strategy{strategy.Dense}
		}
	}

	filters, err := filter.ParseMap(b.Filters)
	if err != nil {
		return request.Request{}, err
	}

	var principal domain.Principal
	if b.Principal != nil {
		principal = domain.Principal{Subject: b.Principal.Subject, Groups: b.Principal.Groups}
	}

	return request.New(
		q, m, strategies,
		toggle(b.Fusion), toggle(b.Rerank), toggle(b.Distill),
		b.TopK, filters, principal,
	)
}

// toggle defaults an absent stage toggle to enabled.
func toggle(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}

// HitBody is one search result in responses and systematic stream lines.
type HitBody struct {
	ID            string         `json:"id"`
	Score         float64        `json:"score"`
	Strategy      string         `json:"strategy"`
	Contributors  []string       `json:"contributors,omitempty"`
	Content       *string        `json:"content,omitempty"`
	Locator       *string        `json:"locator,omitempty"`
	DistilledText string         `json:"distilled_text,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// StrategyFailureBody describes one degraded retriever branch.
type StrategyFailureBody struct {
	Strategy string `json:"strategy"`
	Reason   string `json:"reason"`
}

// SearchResponseBody is the JSON body of a successful POST /search.
type SearchResponseBody struct {
	Hits             []HitBody             `json:"hits"`
	TotalFound       int                   `json:"total_found"`
	ExecutionTimeMs  int64                 `json:"execution_time_ms"`
	ProvenanceHash   string                `json:"provenance_hash"`
	Degraded         bool                  `json:"degraded"`
	StrategyFailures []StrategyFailureBody `json:"strategy_failures,omitempty"`
	Notes            []string              `json:"notes,omitempty"`
}

// StreamLine is one NDJSON line of a systematic stream. Type is "hit" for
// result lines and "summary" for the terminal line; Error is set on the
// summary when the stream ended abnormally.
type StreamLine struct {
	Type     string   `json:"type"`
	Hit      *HitBody `json:"hit,omitempty"`
	Streamed int      `json:"streamed,omitempty"`
	Total    int      `json:"total,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func hitToBody(h *hit.Hit) HitBody {
	body := HitBody{
		ID:            h.ID(),
		Score:         h.Score(),
		Strategy:      h.Strategy().String(),
		DistilledText: h.DistilledText(),
		Metadata:      h.Metadata(),
	}
	if contributors := h.Contributors(); len(contributors) > 1 {
		body.Contributors = make([]string, len(contributors))
		for i, c := range contributors {
			body.Contributors[i] = c.String()
		}
	}
	if text, ok := h.Source().Inline(); ok {
		body.Content = &text
	} else if ptr, ok := h.Source().Pointer(); ok {
		locator := ptr.Locator()
		body.Locator = &locator
	}
	return body
}

func responseToBody(resp *engine.Response) SearchResponseBody {
	body := SearchResponseBody{
		Hits:            make([]HitBody, len(resp.Hits)),
		TotalFound:      resp.TotalFound,
		ExecutionTimeMs: resp.ExecutionTime.Milliseconds(),
		ProvenanceHash:  resp.ProvenanceHash,
	}
	for i := range resp.Hits {
		body.Hits[i] = hitToBody(&resp.Hits[i])
	}
	if rec := resp.Provenance; rec != nil {
		body.Degraded = rec.Degraded()
		body.StrategyFailures = failuresToBody(rec.Failures())
		body.Notes = rec.Notes()
	}
	return body
}

func failuresToBody(failures []provenance.StrategyFailure) []StrategyFailureBody {
	if len(failures) == 0 {
		return nil
	}
	out := make([]StrategyFailureBody, len(failures))
	for i, f := range failures {
		out[i] = StrategyFailureBody{Strategy: f.Strategy, Reason: f.Reason}
	}
	return out
}
