package chi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/filter"
	"github.com/kailas-cloud/retrievex/internal/domain/search/hit"
	"github.com/kailas-cloud/retrievex/internal/domain/search/request"
	"github.com/kailas-cloud/retrievex/internal/domain/search/strategy"
	"github.com/kailas-cloud/retrievex/internal/usecase/engine"
	"github.com/kailas-cloud/retrievex/internal/usecase/fusion"
	healthuc "github.com/kailas-cloud/retrievex/internal/usecase/health"
)

type stubRetriever struct {
	strat strategy.Strategy
	hits  []hit.Hit
	err   error
}

func (s *stubRetriever) Strategy() strategy.Strategy { return s.strat }

func (s *stubRetriever) Retrieve(context.Context, *request.Request, int) ([]hit.Hit, error) {
	return s.hits, s.err
}

type stubPager struct {
	hits []hit.Hit
	err  error
}

func (p *stubPager) Page(
	_ context.Context, _ request.Query, _ filter.Expression, offset, limit int,
) ([]hit.Hit, int, error) {
	if p.err != nil {
		return nil, 0, p.err
	}
	if offset >= len(p.hits) {
		return nil, len(p.hits), nil
	}
	end := offset + limit
	if end > len(p.hits) {
		end = len(p.hits)
	}
	return p.hits[offset:end], len(p.hits), nil
}

type stubPinger struct{ err error }

func (p *stubPinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, retrievers []engine.Retriever, pager engine.Pager, backendErr error) *Server {
	t.Helper()
	eng := engine.New(retrievers, fusion.New(fusion.DefaultK), nil, nil, nil)
	if pager != nil {
		eng = eng.WithSystematic(pager, nil, 2)
	}
	health := healthuc.New(&stubPinger{err: backendErr}, nil, nil)
	return NewServer(eng, health, zap.NewNop())
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func TestSearch_Success(t *testing.T) {
	dense := &stubRetriever{strat: strategy.Dense, hits: []hit.Hit{
		hit.New("doc-1", 0.9, strategy.Dense, map[string]any{"lang": "en"}, hit.InlineSource("text one")),
		hit.New("doc-2", 0.7, strategy.Dense, nil, hit.PointerSource("s3://bucket/doc-2", []string{"oncology"})),
	}}
	srv := newTestServer(t, []engine.Retriever{dense}, nil, nil)

	rr := postJSON(t, srv.Search, "/search", SearchRequestBody{
		Query:      "sepsis treatment",
		Strategies: []string{"dense"},
		Rerank:     boolPtr(false),
		Distill:    boolPtr(false),
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d (body: %s)", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp SearchResponseBody
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Hits) != 2 {
		t.Fatalf("hits: got %d, want 2", len(resp.Hits))
	}
	if resp.TotalFound != 2 {
		t.Errorf("total_found: got %d, want 2", resp.TotalFound)
	}
	if resp.ProvenanceHash == "" {
		t.Error("provenance_hash is empty")
	}
	if resp.Degraded {
		t.Error("degraded should be false")
	}

	if resp.Hits[0].ID != "doc-1" || resp.Hits[0].Content == nil || *resp.Hits[0].Content != "text one" {
		t.Errorf("first hit: got %+v", resp.Hits[0])
	}
	if resp.Hits[0].Metadata["lang"] != "en" {
		t.Errorf("first hit metadata: got %v", resp.Hits[0].Metadata)
	}
	second := resp.Hits[1]
	if second.Content != nil {
		t.Error("pointer hit must not carry inline content")
	}
	if second.Locator == nil || *second.Locator != "s3://bucket/doc-2" {
		t.Errorf("pointer hit locator: got %v", second.Locator)
	}
}

func TestSearch_InvalidBody_400(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	req := httptest.NewRequest("POST", "/search", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	srv.Search(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	assertErrorCode(t, rr, CodeBadRequest)
}

func TestSearch_MissingQuery_400(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	rr := postJSON(t, srv.Search, "/search", SearchRequestBody{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	assertErrorCode(t, rr, CodeValidationFailed)
}

func TestSearch_MalformedFilter_400(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	rr := postJSON(t, srv.Search, "/search", SearchRequestBody{
		Query:   "sepsis",
		Filters: map[string]any{"year": map[string]any{"$foo": 2020}},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	assertErrorCode(t, rr, CodeValidationFailed)
}

func TestSearch_AmbiguousMerge_400(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	rr := postJSON(t, srv.Search, "/search", SearchRequestBody{
		Query:      "sepsis",
		Strategies: []string{"dense", "sparse"},
		Fusion:     boolPtr(false),
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	assertErrorCode(t, rr, CodeAmbiguousMerge)
}

func TestSearch_SystematicMode_400(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	rr := postJSON(t, srv.Search, "/search", SearchRequestBody{
		BooleanQuery: map[string]string{"topic": "sepsis"},
		Mode:         "systematic",
		Strategies:   []string{"sparse"},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	assertErrorCode(t, rr, CodeValidationFailed)
}

func TestSearch_SoleRetrieverFailed_503(t *testing.T) {
	dense := &stubRetriever{strat: strategy.Dense, err: fmt.Errorf("index: %w", domain.ErrRetrieverUnavailable)}
	srv := newTestServer(t, []engine.Retriever{dense}, nil, nil)

	rr := postJSON(t, srv.Search, "/search", SearchRequestBody{
		Query:      "sepsis",
		Strategies: []string{"dense"},
		Rerank:     boolPtr(false),
		Distill:    boolPtr(false),
	})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
	assertErrorCode(t, rr, CodeRetrieverUnavailable)
}

func TestSearch_UnsupportedFilter_400_NamesStrategy(t *testing.T) {
	dense := &stubRetriever{strat: strategy.Dense, err: fmt.Errorf("%w: $regex", domain.ErrUnsupportedFilter)}
	srv := newTestServer(t, []engine.Retriever{dense}, nil, nil)

	rr := postJSON(t, srv.Search, "/search", SearchRequestBody{
		Query:      "sepsis",
		Strategies: []string{"dense"},
		Rerank:     boolPtr(false),
		Distill:    boolPtr(false),
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d (body: %s)", rr.Code, http.StatusBadRequest, rr.Body.String())
	}

	var payload map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["code"] != string(CodeUnsupportedFilter) {
		t.Errorf("code: got %v, want %s", payload["code"], CodeUnsupportedFilter)
	}
	if payload["strategy"] != "dense" {
		t.Errorf("strategy: got %v, want dense", payload["strategy"])
	}
}

func TestSearchSystematic_StreamsNDJSON(t *testing.T) {
	pager := &stubPager{hits: []hit.Hit{
		hit.New("doc-1", 0, strategy.Sparse, nil, hit.InlineSource("one")),
		hit.New("doc-2", 0, strategy.Sparse, nil, hit.InlineSource("two")),
		hit.New("doc-3", 0, strategy.Sparse, nil, hit.InlineSource("three")),
	}}
	srv := newTestServer(t, nil, pager, nil)

	rr := postJSON(t, srv.SearchSystematic, "/search/systematic", SearchRequestBody{
		BooleanQuery: map[string]string{"topic": "sepsis"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d (body: %s)", rr.Code, http.StatusOK, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("content type: got %q", ct)
	}

	lines := decodeStream(t, rr)
	if len(lines) != 4 {
		t.Fatalf("lines: got %d, want 4", len(lines))
	}
	for i, want := range []string{"doc-1", "doc-2", "doc-3"} {
		if lines[i].Type != "hit" || lines[i].Hit == nil || lines[i].Hit.ID != want {
			t.Errorf("line %d: got %+v, want hit %s", i, lines[i], want)
		}
	}
	summary := lines[3]
	if summary.Type != "summary" {
		t.Fatalf("last line type: got %q", summary.Type)
	}
	if summary.Streamed != 3 || summary.Total != 3 {
		t.Errorf("summary: got streamed=%d total=%d, want 3/3", summary.Streamed, summary.Total)
	}
	if summary.Error != "" {
		t.Errorf("summary error: got %q, want empty", summary.Error)
	}
}

func TestSearchSystematic_BackendFailure_SummaryCarriesError(t *testing.T) {
	pager := &stubPager{err: fmt.Errorf("search: %w", domain.ErrRetrieverUnavailable)}
	srv := newTestServer(t, nil, pager, nil)

	rr := postJSON(t, srv.SearchSystematic, "/search/systematic", SearchRequestBody{
		BooleanQuery: map[string]string{"topic": "sepsis"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}

	lines := decodeStream(t, rr)
	if len(lines) != 1 {
		t.Fatalf("lines: got %d, want 1", len(lines))
	}
	summary := lines[0]
	if summary.Type != "summary" || summary.Streamed != 0 {
		t.Fatalf("summary: got %+v", summary)
	}
	if summary.Error != domain.ErrRetrieverUnavailable.Error() {
		t.Errorf("summary error: got %q, want %q", summary.Error, domain.ErrRetrieverUnavailable)
	}
}

func TestSearchSystematic_NotConfigured_400(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	rr := postJSON(t, srv.SearchSystematic, "/search/systematic", SearchRequestBody{
		BooleanQuery: map[string]string{"topic": "sepsis"},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	assertErrorCode(t, rr, CodeValidationFailed)
}

func TestSearchSystematic_GraphStrategy_400(t *testing.T) {
	pager := &stubPager{}
	srv := newTestServer(t, nil, pager, nil)

	rr := postJSON(t, srv.SearchSystematic, "/search/systematic", SearchRequestBody{
		BooleanQuery: map[string]string{"topic": "sepsis"},
		Strategies:   []string{"graph"},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	assertErrorCode(t, rr, CodeValidationFailed)
}

func TestHealthCheck_Healthy_200(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	srv.HealthCheck(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestHealthCheck_BackendDown_503(t *testing.T) {
	srv := newTestServer(t, nil, nil, errors.New("connection refused"))

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	srv.HealthCheck(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func assertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, want ErrorCode) {
	t.Helper()
	var errResp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Code != want {
		t.Errorf("error code: got %s, want %s (message %q)", errResp.Code, want, errResp.Message)
	}
}

func decodeStream(t *testing.T, rr *httptest.ResponseRecorder) []StreamLine {
	t.Helper()
	var lines []StreamLine
	scanner := bufio.NewScanner(rr.Body)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}
		var line StreamLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("decode stream line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, line)
	}
	return lines
}

func boolPtr(v bool) *bool { return &v }
