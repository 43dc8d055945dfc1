package retrievex

import "context"

// Embedder vectorizes text. Implementations must be safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult carries the embedding vector and token usage.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Strategy names one retriever variant.
type Strategy string

// Retriever variants.
const (
	Dense  Strategy = "dense"
	Sparse Strategy = "sparse"
	Graph  Strategy = "graph"
)

// Principal identifies the caller for content access checks.
type Principal struct {
	Subject string
	Groups  []string
}

// Hit is a single retrieved unit of evidence.
type Hit struct {
	ID            string
	Score         float64
	Strategy      Strategy
	Contributors  []Strategy
	Content       string
	Locator       string
	DistilledText string
	Metadata      map[string]any
}

// StrategyFailure describes one degraded retriever branch.
type StrategyFailure struct {
	Strategy string
	Reason   string
}

// Result is the outcome of an ad-hoc search.
type Result struct {
	Hits            []Hit
	TotalFound      int
	ExecutionTimeMs int64
	ProvenanceHash  string
	Degraded        bool
	Failures        []StrategyFailure
	Notes           []string
}

// Document is one record to index. Exactly one of Content and Locator must
// be set: Content stores the text in the index, Locator registers a pointer
// to externally held content guarded by ACLs.
type Document struct {
	ID       string
	Content  string
	Locator  string
	ACLs     []string
	Vector   []float32
	Metadata map[string]any
}
