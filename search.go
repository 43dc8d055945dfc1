package retrievex

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/filter"
	"github.com/kailas-cloud/retrievex/internal/domain/search/hit"
	"github.com/kailas-cloud/retrievex/internal/domain/search/mode"
	"github.com/kailas-cloud/retrievex/internal/domain/search/request"
	"github.com/kailas-cloud/retrievex/internal/domain/search/strategy"
	"github.com/kailas-cloud/retrievex/internal/usecase/engine"
)

// SearchOptions configures an ad-hoc search.
type SearchOptions struct {
	// Strategies to dispatch, in priority order. Defaults to dense.
	Strategies []Strategy
	TopK       int
	// Filters is a metadata filter in map form, e.g.
	// {"year": {"$gte": 2020}, "topic": "sepsis"}.
	Filters   map[string]any
	Principal Principal

	// Stage toggles. The zero value runs the full pipeline.
	DisableFusion  bool
	DisableRerank  bool
	DisableDistill bool
}

// Search runs the bounded ad-hoc pipeline: retrieve, fuse, rerank, distill.
func (c *Client) Search(ctx context.Context, query string, opts *SearchOptions) (*Result, error) {
	if opts == nil {
		opts = &SearchOptions{}
	}

	req, err := buildRequest(request.NewTextQuery(query), mode.AdHoc, opts)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	resp, err := c.engine.Execute(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return resultFromResponse(resp), nil
}

// Systematic runs the exhaustive streamed pipeline over a boolean query
// (field -> term conjunction). Results arrive in stable document-ID order,
// unfused and unranked. The caller must Close the iterator.
func (c *Client) Systematic(
	ctx context.Context, query map[string]string, filters map[string]any,
) (*Iterator, error) {
	req, err := buildRequest(request.NewBooleanQuery(query), mode.Systematic, &SearchOptions{
		Strategies: []Strategy{Sparse},
		Filters:    filters,
	})
	if err != nil {
		return nil, fmt.Errorf("systematic: %w", err)
	}

	stream, err := c.engine.ExecuteSystematic(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("systematic: %w", err)
	}
	return &Iterator{stream: stream}, nil
}

// Iterator yields systematic results one at a time, pulling backend pages
// only as fast as the consumer advances.
type Iterator struct {
	stream *engine.Stream
}

// Next returns the next hit. ok is false once the stream is exhausted,
// failed, or ctx is cancelled; check Err afterwards.
func (it *Iterator) Next(ctx context.Context) (Hit, bool) {
	h, ok := it.stream.Next(ctx)
	if !ok {
		return Hit{}, false
	}
	return hitFromInternal(&h), true
}

// Total is the full match count, or -1 before the first page arrives.
func (it *Iterator) Total() int { return it.stream.Total() }

// Streamed is the number of hits delivered so far.
func (it *Iterator) Streamed() int { return it.stream.Streamed() }

// Err returns the terminal error, if any.
func (it *Iterator) Err() error { return it.stream.Err() }

// Close stops the stream and releases its producer.
func (it *Iterator) Close() { it.stream.Close() }

func buildRequest(q request.Query, m mode.Mode, opts *SearchOptions) (request.Request, error) {
	strategies := make([]strategy.Strategy, 0, len(opts.Strategies))
	for _, s := range opts.Strategies {
		strategies = append(strategies, strategy.Strategy(s))
	}
	if len(strategies) == 0 {
		strategies = []strategy.Strategy{strategy.Dense}
	}

	filters, err := filter.ParseMap(opts.Filters)
	if err != nil {
		return request.Request{}, err
	}

	return request.New(
		q, m, strategies,
		!opts.DisableFusion, !opts.DisableRerank, !opts.DisableDistill,
		opts.TopK, filters,
		domain.Principal{Subject: opts.Principal.Subject, Groups: opts.Principal.Groups},
	)
}

func hitFromInternal(h *hit.Hit) Hit {
	out := Hit{
		ID:            h.ID(),
		Score:         h.Score(),
		Strategy:      Strategy(h.Strategy()),
		DistilledText: h.DistilledText(),
		Metadata:      h.Metadata(),
	}
	if contributors := h.Contributors(); len(contributors) > 1 {
		out.Contributors = make([]Strategy, len(contributors))
		for i, c := range contributors {
			out.Contributors[i] = Strategy(c)
		}
	}
	if text, ok := h.Source().Inline(); ok {
		out.Content = text
	} else if ptr, ok := h.Source().Pointer(); ok {
		out.Locator = ptr.Locator()
	}
	return out
}

func resultFromResponse(resp *engine.Response) *Result {
	out := &Result{
		Hits:            make([]Hit, len(resp.Hits)),
		TotalFound:      resp.TotalFound,
		ExecutionTimeMs: resp.ExecutionTime.Milliseconds(),
		ProvenanceHash:  resp.ProvenanceHash,
	}
	for i := range resp.Hits {
		out.Hits[i] = hitFromInternal(&resp.Hits[i])
	}
	if rec := resp.Provenance; rec != nil {
		out.Degraded = rec.Degraded()
		for _, f := range rec.Failures() {
			out.Failures = append(out.Failures, StrategyFailure{Strategy: f.Strategy, Reason: f.Reason})
		}
		out.Notes = rec.Notes()
	}
	return out
}
