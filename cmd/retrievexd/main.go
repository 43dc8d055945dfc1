package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/retrievex/internal/audit"
	"github.com/kailas-cloud/retrievex/internal/backend/embcache"
	backendRedis "github.com/kailas-cloud/retrievex/internal/backend/redis"
	"github.com/kailas-cloud/retrievex/internal/config"
	"github.com/kailas-cloud/retrievex/internal/domain"
	logpkg "github.com/kailas-cloud/retrievex/internal/logger"
	"github.com/kailas-cloud/retrievex/internal/metrics"
	"github.com/kailas-cloud/retrievex/internal/retriever"
	chiTransport "github.com/kailas-cloud/retrievex/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/retrievex/internal/transport/openai"
	"github.com/kailas-cloud/retrievex/internal/usecase/engine"
	"github.com/kailas-cloud/retrievex/internal/usecase/fusion"
	healthuc "github.com/kailas-cloud/retrievex/internal/usecase/health"
	"github.com/kailas-cloud/retrievex/internal/usecase/rerank"
	"github.com/kailas-cloud/retrievex/internal/usecase/scout"
	"github.com/kailas-cloud/retrievex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting retrievex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("backend_addrs", cfg.Backend.Addrs),
	)

	store, err := backendRedis.NewStore(backendRedis.Config{
		Addrs:         cfg.Backend.Addrs,
		Username:      cfg.Backend.Username,
		Password:      cfg.Backend.Password,
		DB:            cfg.Backend.DB,
		KeyPrefix:     cfg.Backend.KeyPrefix,
		DocIndex:      cfg.Backend.DocIndex,
		NodeIndex:     cfg.Backend.NodeIndex,
		VectorDim:     cfg.Backend.VectorDim,
		TagFields:     cfg.Backend.TagFields,
		NumericFields: cfg.Backend.NumericFields,
	})
	if err != nil {
		logger.Fatal("Failed to create index backend", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Backend.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Index backend not ready", zap.Error(err))
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		logger.Fatal("Failed to ensure indexes", zap.Error(err))
	}
	logger.Info("Connected to index backend")

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	queryEmbedder := buildQueryEmbedder(cfg, store, logger)
	scoringEmbedder := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:  cfg.Scoring.APIKey,
		BaseURL: cfg.Scoring.BaseURL,
		Model:   cfg.Scoring.Model,
		Logger:  logger,
	})
	scorer := openaiTransport.NewScorer(scoringEmbedder)
	logger.Info("Model providers created",
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("scoring_model", cfg.Scoring.Model),
	)

	dense := retriever.NewDense(store, queryEmbedder)
	sparse := retriever.NewSparse(store, store)
	graph := retriever.NewGraph(store)

	fuser := fusion.New(cfg.Pipeline.RRFK)
	reranker := rerank.New(scorer, cfg.Pipeline.RerankCandidateCap)
	distiller := scout.New(scorer, store, nil, cfg.Pipeline.DistillThreshold)

	sink := audit.NewSink(logger, cfg.Audit.QueueSize)
	defer sink.Close()

	eng := engine.New(
		[]engine.Retriever{dense, sparse, graph},
		fuser, reranker, distiller, sink,
	).WithSystematic(sparse, store, cfg.Pipeline.SystematicPageSize)

	healthSvc := healthuc.New(store, newEmbeddingHealthChecker(queryEmbedder), scoringEmbedder)

	server := chiTransport.NewServer(eng, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		// No WriteTimeout: systematic responses stream for as long as the
		// corpus demands. Idle clients are cut by the consumer context.
		IdleTimeout: 120 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildQueryEmbedder assembles the decorator chain: OpenAI -> Cached -> Instruction.
func buildQueryEmbedder(cfg config.Config, store *backendRedis.Store, logger *zap.Logger) domain.Embedder {
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})

	var embedder domain.Embedder = base
	if cfg.Embedding.CacheEnabled {
		embedder = embcache.New(base, store, 0, metrics.EmbeddingCacheTotal, logger)
	}

	// Instruction prefix (outermost — cache key includes instruction)
	if cfg.Embedding.QueryInstruction != "" {
		return domain.NewInstructionEmbedder(embedder, cfg.Embedding.QueryInstruction)
	}

	return embedder
}

// embeddingHealthChecker wraps domain.Embedder to implement health.ProviderChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
