// Package chi exposes the retrieval pipeline over HTTP: bounded ad-hoc
// search as a single JSON response, systematic search as an NDJSON stream.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/mode"
	"github.com/kailas-cloud/retrievex/internal/usecase/engine"
	healthuc "github.com/kailas-cloud/retrievex/internal/usecase/health"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server implements the HTTP API.
type Server struct {
	engine        *engine.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(eng *engine.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	s := &Server{
		engine: eng,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		strategyFailureHandler,
		sentinelHandler(domain.ErrAmbiguousMerge, http.StatusBadRequest, CodeAmbiguousMerge),
		sentinelHandler(domain.ErrUnsupportedFilter, http.StatusBadRequest, CodeUnsupportedFilter),
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrAccessDenied, http.StatusForbidden, CodeAccessDenied),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeProviderError),
		sentinelHandler(domain.ErrRetrieverUnavailable,
			http.StatusServiceUnavailable, CodeRetrieverUnavailable),
	}
	return s
}

// Register mounts the API routes on the router.
func (s *Server) Register(r chi.Router) {
	r.Post("/search", s.Search)
	r.Post("/search/systematic", s.SearchSystematic)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// Search handles POST /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var body SearchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	req, err := body.toRequest("")
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if req.Mode() == mode.Systematic {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			"systematic mode is served by /search/systematic")
		return
	}

	resp, err := s.engine.Execute(r.Context(), &req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, responseToBody(resp))
}

// SearchSystematic handles POST /search/systematic. The response is NDJSON:
// one "hit" line per result as it is pulled from the backend, then a single
// "summary" line. Failures after the first hit has been written can no
// longer change the HTTP status, so they travel on the summary line.
func (s *Server) SearchSystematic(w http.ResponseWriter, r *http.Request) {
	var body SearchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	req, err := body.toRequest(mode.Systematic)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	stream, err := s.engine.ExecuteSystematic(r.Context(), &req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	ctx := r.Context()
	for {
		h, ok := stream.Next(ctx)
		if !ok {
			break
		}
		hb := hitToBody(&h)
		if err := enc.Encode(StreamLine{Type: "hit", Hit: &hb}); err != nil {
			// Client went away; the deferred Close stops the producer.
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	summary := StreamLine{
		Type:     "summary",
		Streamed: stream.Streamed(),
		Total:    stream.Total(),
	}
	if err := stream.Err(); err != nil && !errors.Is(err, ctx.Err()) {
		s.logger.Warn("systematic stream aborted", zap.Error(err))
		summary.Error = safeDomainMessage(err)
	}
	_ = enc.Encode(summary)
	if flusher != nil {
		flusher.Flush()
	}
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	var strategyErr *domain.StrategyError
	if errors.As(err, &strategyErr) {
		return strategyErr.Error()
	}
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrAmbiguousMerge,
		domain.ErrUnsupportedFilter,
		domain.ErrAccessDenied,
		domain.ErrNotFound,
		domain.ErrEmbeddingProviderError,
		domain.ErrRetrieverUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// strategyFailureHandler surfaces which retriever branch failed when the
// error carries that attribution.
func strategyFailureHandler(w http.ResponseWriter, err error, msg string) bool {
	var strategyErr *domain.StrategyError
	if !errors.As(err, &strategyErr) {
		return false
	}
	status := http.StatusServiceUnavailable
	code := CodeRetrieverUnavailable
	if errors.Is(err, domain.ErrUnsupportedFilter) {
		status = http.StatusBadRequest
		code = CodeUnsupportedFilter
	}
	writeJSON(w, status, map[string]any{
		"code":     code,
		"message":  msg,
		"strategy": strategyErr.Strategy,
	})
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
