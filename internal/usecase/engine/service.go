// Package engine orchestrates the retrieval pipeline: concurrent strategy
// dispatch, rank fusion, re-ranking, and distillation for ad-hoc requests;
// lazy exhaustive streaming for systematic requests.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/hit"
	"github.com/kailas-cloud/retrievex/internal/domain/search/mode"
	"github.com/kailas-cloud/retrievex/internal/domain/search/provenance"
	"github.com/kailas-cloud/retrievex/internal/domain/search/request"
	"github.com/kailas-cloud/retrievex/internal/domain/search/strategy"
	"github.com/kailas-cloud/retrievex/internal/logger"
	"github.com/kailas-cloud/retrievex/internal/metrics"
	"github.com/kailas-cloud/retrievex/internal/usecase/fusion"
)

// DefaultPageSize is the systematic pagination size when none is configured.
const DefaultPageSize = 100

// Audit event names.
const (
	eventAdHocSearch         = "AD_HOC_SEARCH"
	eventSystematicStart     = "SYSTEMATIC_SEARCH_START"
	eventSystematicComplete  = "SYSTEMATIC_SEARCH_COMPLETE"
	snapshotUnknown    int64 = -1
)

// Response is the assembled result of an ad-hoc search.
type Response struct {
	Hits           []hit.Hit
	TotalFound     int
	ExecutionTime  time.Duration
	ProvenanceHash string
	Provenance     *provenance.Record
}

// Service composes retrievers and refinement stages into the pipeline.
// It holds no request-to-request mutable state: every injected capability
// must be safe for concurrent use.
type Service struct {
	retrievers map[strategy.Strategy]Retriever
	fuser      Fuser
	reranker   Reranker
	distiller  Distiller
	pager      Pager
	snapshots  Snapshotter
	audit      domain.AuditSink
	pageSize   int
}

// New creates the orchestration service.
func New(
	retrievers []Retriever,
	fuser Fuser,
	reranker Reranker,
	distiller Distiller,
	audit domain.AuditSink,
) *Service {
	byStrategy := make(map[strategy.Strategy]Retriever, len(retrievers))
	for _, r := range retrievers {
		byStrategy[r.Strategy()] = r
	}
	return &Service{
		retrievers: byStrategy,
		fuser:      fuser,
		reranker:   reranker,
		distiller:  distiller,
		audit:      audit,
		pageSize:   DefaultPageSize,
	}
}

// WithSystematic wires the exhaustive streaming path.
func (s *Service) WithSystematic(pager Pager, snapshots Snapshotter, pageSize int) *Service {
	s.pager = pager
	s.snapshots = snapshots
	if pageSize > 0 {
		s.pageSize = pageSize
	}
	return s
}

// Execute runs the ad-hoc pipeline: dispatch, fuse, rerank, distill.
// Partial retriever failure degrades the response and is recorded in
// provenance; failure of the only requested strategy fails the request.
func (s *Service) Execute(ctx context.Context, req *request.Request) (*Response, error) {
	if req.Mode() != mode.AdHoc {
		return nil, fmt.Errorf("%w: systematic requests go through ExecuteSystematic", domain.ErrValidation)
	}

	start := time.Now()
	log := logger.FromContext(ctx)
	record := &provenance.Record{}

	lists, err := s.dispatch(ctx, req, record)
	if err != nil {
		return nil, err
	}

	var fused []hit.Hit
	if req.FusionEnabled() {
		stageStart := time.Now()
		fused = s.fuser.Fuse(lists)
		metrics.StageDuration.WithLabelValues("fuse").Observe(time.Since(stageStart).Seconds())
	} else {
		fused = fusion.Flatten(lists)
	}
	totalFound := len(fused)

	final := fused
	if req.RerankEnabled() && len(fused) > 0 {
		stageStart := time.Now()
		ranked, dropped, rerankErr := s.reranker.Rerank(ctx, req.Query().Text(), fused, req.TopK())
		metrics.StageDuration.WithLabelValues("rerank").Observe(time.Since(stageStart).Seconds())
		if rerankErr != nil {
			return nil, fmt.Errorf("rerank: %w", rerankErr)
		}
		if dropped > 0 {
			record.AddNote("rerank: %d candidates dropped by cap", dropped)
		}
		final = ranked
	} else if len(final) > req.TopK() {
		final = final[:req.TopK()]
	}

	if req.DistillEnabled() && len(final) > 0 {
		stageStart := time.Now()
		distilled, notes := s.distiller.DistillAll(ctx, req.Query().Text(), final, req.Principal())
		metrics.StageDuration.WithLabelValues("distill").Observe(time.Since(stageStart).Seconds())
		for _, note := range notes {
			record.AddNote("%s", note)
		}
		final = distilled
	}

	ids := make([]string, len(final))
	for i := range final {
		ids[i] = final[i].ID()
	}

	resp := &Response{
		Hits:           final,
		TotalFound:     totalFound,
		ExecutionTime:  time.Since(start),
		ProvenanceHash: provenance.Hash(req, ids),
		Provenance:     record,
	}

	s.recordAudit(eventAdHocSearch, req, snapshotUnknown, len(final))

	log.Info("search completed",
		zap.Int("hits", len(final)),
		zap.Int("total_found", totalFound),
		zap.Bool("degraded", record.Degraded()),
		zap.Duration("elapsed", resp.ExecutionTime),
	)
	return resp, nil
}

// dispatch fans out to every requested strategy concurrently and joins all
// branches before returning. A failed branch contributes an empty list and a
// provenance flag; an untranslatable filter fails the whole request; a
// cancelled context abandons the remaining branches.
func (s *Service) dispatch(
	ctx context.Context, req *request.Request, record *provenance.Record,
) ([]fusion.List, error) {
	strategies := req.Strategies()
	results := make([][]hit.Hit, len(strategies))
	failures := make([]error, len(strategies))

	stageStart := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i, strat := range strategies {
		retr, ok := s.retrievers[strat]
		if !ok {
			return nil, fmt.Errorf("%w: no retriever registered for %q", domain.ErrValidation, strat)
		}
		g.Go(func() error {
			hits, err := retr.Retrieve(gctx, req, req.TopK())
			if err != nil {
				// Filter misconfiguration and caller cancellation abort the
				// whole request; backend trouble degrades only this branch.
				if errors.Is(err, domain.ErrUnsupportedFilter) || gctx.Err() != nil {
					return domain.NewStrategyError(strat.String(), err)
				}
				failures[i] = err
				metrics.StrategyFailuresTotal.WithLabelValues(strat.String()).Inc()
				return nil
			}
			results[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("retrieve").Observe(time.Since(stageStart).Seconds())

	log := logger.FromContext(ctx)
	lists := make([]fusion.List, 0, len(strategies))
	failed := 0
	for i, strat := range strategies {
		if failures[i] != nil {
			failed++
			record.MarkStrategyFailure(strat.String(), failures[i])
			log.Warn("strategy failed",
				zap.String("strategy", strat.String()),
				zap.Error(failures[i]),
			)
			continue
		}
		lists = append(lists, fusion.List{Strategy: strat, Hits: results[i]})
	}

	if failed == len(strategies) {
		return nil, fmt.Errorf("%w: all %d requested strategies failed: %w",
			domain.ErrRetrieverUnavailable, len(strategies), failures[0])
	}
	return lists, nil
}

// ExecuteSystematic runs the exhaustive streaming pipeline. The returned
// Stream pulls one backend page ahead of the consumer and stops paging when
// the consumer stops or ctx is cancelled.
func (s *Service) ExecuteSystematic(ctx context.Context, req *request.Request) (*Stream, error) {
	if req.Mode() != mode.Systematic {
		return nil, fmt.Errorf("%w: ad-hoc requests go through Execute", domain.ErrValidation)
	}
	if s.pager == nil {
		return nil, fmt.Errorf("%w: systematic mode is not configured", domain.ErrValidation)
	}

	snapshot := snapshotUnknown
	if s.snapshots != nil {
		if id, err := s.snapshots.Snapshot(ctx); err == nil {
			snapshot = id
		}
	}

	s.recordAudit(eventSystematicStart, req, snapshot, 0)
	logger.FromContext(ctx).Info("systematic search started",
		zap.String("query", req.Query().Text()),
		zap.Int64("snapshot_id", snapshot),
	)

	return newStream(ctx, s.pager, req, s.pageSize, func(count int) {
		s.recordAudit(eventSystematicComplete, req, snapshot, count)
	}), nil
}

// recordAudit emits a fire-and-forget audit record.
func (s *Service) recordAudit(event string, req *request.Request, snapshot int64, count int) {
	if s.audit == nil {
		return
	}
	strategies := make([]string, len(req.Strategies()))
	for i, st := range req.Strategies() {
		strategies[i] = st.String()
	}
	s.audit.Record(domain.AuditRecord{
		ID:         uuid.NewString(),
		Event:      event,
		Query:      req.Query().Text(),
		Mode:       req.Mode().String(),
		Strategies: strategies,
		SnapshotID: snapshot,
		HitCount:   count,
	})
}
