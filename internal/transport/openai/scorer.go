package openai

import (
	"context"
	"fmt"
	"math"

	"github.com/kailas-cloud/retrievex/internal/domain"
)

// Scorer grades (query, text) relevance as cosine similarity between
// embeddings, mapped to [0, 1]. The same instance serves both re-ranking and
// distillation; putting an embedding cache in front of the embedder makes the
// repeated query-side embedding free.
type Scorer struct {
	embedder domain.Embedder
}

// NewScorer creates an embedding-similarity scorer.
func NewScorer(embedder domain.Embedder) *Scorer {
	return &Scorer{embedder: embedder}
}

// Score implements domain.PairScorer.
func (s *Scorer) Score(ctx context.Context, query, text string) (float64, error) {
	return s.similarity(ctx, query, text)
}

// ScoreUnit implements domain.UnitScorer.
func (s *Scorer) ScoreUnit(ctx context.Context, query, unit string) (float64, error) {
	return s.similarity(ctx, query, unit)
}

func (s *Scorer) similarity(ctx context.Context, query, text string) (float64, error) {
	if text == "" {
		return 0, nil
	}

	q, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("embed query: %w", err)
	}
	d, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("embed text: %w", err)
	}

	sim, err := cosine(q.Embedding, d.Embedding)
	if err != nil {
		return 0, err
	}
	// Cosine lands in [-1, 1]; scores are defined on [0, 1].
	return (sim + 1) / 2, nil
}

func cosine(a, b []float32) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("embedding dimensions mismatch: %d vs %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
