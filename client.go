// Package retrievex is the embedded SDK: the full retrieval pipeline wired
// in-process against a Redis backend, without the HTTP server.
package retrievex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/retrievex/internal/audit"
	backendRedis "github.com/kailas-cloud/retrievex/internal/backend/redis"
	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/retriever"
	openaiTransport "github.com/kailas-cloud/retrievex/internal/transport/openai"
	"github.com/kailas-cloud/retrievex/internal/usecase/engine"
	"github.com/kailas-cloud/retrievex/internal/usecase/fusion"
	"github.com/kailas-cloud/retrievex/internal/usecase/rerank"
	"github.com/kailas-cloud/retrievex/internal/usecase/scout"
)

const defaultReadinessTimeout = 10 * time.Second

// Option configures the Client.
type Option func(*clientConfig)

type clientConfig struct {
	addrs         []string
	username      string
	password      string
	db            int
	keyPrefix     string
	vectorDim     int
	tagFields     []string
	numericFields []string

	embedder  Embedder
	rrfK      int
	rerankCap int
	threshold float64
	pageSize  int
	logger    *zap.Logger
}

// WithRedis sets the backend address(es).
func WithRedis(addrs ...string) Option {
	return func(c *clientConfig) { c.addrs = addrs }
}

// WithAuth sets backend credentials.
func WithAuth(username, password string) Option {
	return func(c *clientConfig) { c.username, c.password = username, password }
}

// WithKeyPrefix namespaces every backend key.
func WithKeyPrefix(prefix string) Option {
	return func(c *clientConfig) { c.keyPrefix = prefix }
}

// WithVectorDim sets the embedding dimensionality of the document index.
func WithVectorDim(dim int) Option {
	return func(c *clientConfig) { c.vectorDim = dim }
}

// WithFilterFields declares which metadata fields are indexed for filtering.
func WithFilterFields(tags, numerics []string) Option {
	return func(c *clientConfig) { c.tagFields, c.numericFields = tags, numerics }
}

// WithEmbedder sets the text vectorizer. Without it, the dense strategy and
// the scoring stages fail on first use; sparse and graph retrieval still work.
func WithEmbedder(e Embedder) Option {
	return func(c *clientConfig) { c.embedder = e }
}

// WithRRFK overrides the reciprocal rank fusion constant.
func WithRRFK(k int) Option {
	return func(c *clientConfig) { c.rrfK = k }
}

// WithRerankCap overrides how many candidates reach the re-rank scorer.
func WithRerankCap(n int) Option {
	return func(c *clientConfig) { c.rerankCap = n }
}

// WithDistillThreshold overrides the distillation relevance cutoff.
func WithDistillThreshold(t float64) Option {
	return func(c *clientConfig) { c.threshold = t }
}

// WithPageSize overrides the systematic streaming page size.
func WithPageSize(n int) Option {
	return func(c *clientConfig) { c.pageSize = n }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = l }
}

// Client is the retrievex SDK entry point.
type Client struct {
	store  *backendRedis.Store
	engine *engine.Service
	sink   *audit.Sink
}

// New creates a Client and connects to the backend.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("retrievex: backend address required (use WithRedis)")
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	store, err := backendRedis.NewStore(backendRedis.Config{
		Addrs:         cfg.addrs,
		Username:      cfg.username,
		Password:      cfg.password,
		DB:            cfg.db,
		KeyPrefix:     cfg.keyPrefix,
		VectorDim:     cfg.vectorDim,
		TagFields:     cfg.tagFields,
		NumericFields: cfg.numericFields,
	})
	if err != nil {
		return nil, fmt.Errorf("retrievex: create store: %w", err)
	}

	ctx := context.Background()
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("retrievex: backend not ready: %w", err)
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("retrievex: ensure indexes: %w", err)
	}

	return wireClient(store, cfg), nil
}

func wireClient(store *backendRedis.Store, cfg *clientConfig) *Client {
	var emb domain.Embedder = &noopEmbedder{}
	if cfg.embedder != nil {
		emb = &embedderAdapter{inner: cfg.embedder}
	}
	scorer := openaiTransport.NewScorer(emb)

	dense := retriever.NewDense(store, emb)
	sparse := retriever.NewSparse(store, store)
	graph := retriever.NewGraph(store)

	sink := audit.NewSink(cfg.logger, 0)

	eng := engine.New(
		[]engine.Retriever{dense, sparse, graph},
		fusion.New(cfg.rrfK),
		rerank.New(scorer, cfg.rerankCap),
		scout.New(scorer, store, nil, cfg.threshold),
		sink,
	).WithSystematic(sparse, store, cfg.pageSize)

	return &Client{store: store, engine: eng, sink: sink}
}

// Close releases all resources.
func (c *Client) Close() {
	if c.sink != nil {
		c.sink.Close()
	}
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks backend connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Snapshot returns the current index revision.
func (c *Client) Snapshot(ctx context.Context) (int64, error) {
	return c.store.Snapshot(ctx)
}

// embedderAdapter wraps the public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// noopEmbedder returns an error on Embed call (used when no embedder configured).
type noopEmbedder struct{}

func (noopEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, errors.New(
		"retrievex: embedder not configured (use WithEmbedder for dense search and scoring)",
	)
}
