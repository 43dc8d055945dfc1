// Package redis implements the index backend on Redis 8+ via rueidis:
// vector KNN and BM25 text search through the Query Engine, graph adjacency
// through sets, and source content through hashes.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// Key layout under the configured prefix.
const (
	docKeyPart      = "doc:"
	contentKeyPart  = "content:"
	nodeKeyPart     = "node:"
	edgesKeyPart    = "edges:"
	revisionKeyPart = "index:revision"
)

// Config holds connection and index parameters for the Redis backend.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int

	// KeyPrefix namespaces every key this service touches.
	KeyPrefix string
	// DocIndex and NodeIndex are the FT index names for documents and graph nodes.
	DocIndex  string
	NodeIndex string
	// VectorDim is the embedding dimensionality of the document index.
	VectorDim int
	// TagFields and NumericFields are the metadata fields indexed for filtering.
	TagFields     []string
	NumericFields []string
}

// Store is the rueidis-backed index backend.
type Store struct {
	client rueidis.Client
	cfg    Config
}

// NewStore creates the backend client.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "retrievex:"
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Store{client: client, cfg: cfg}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady polls Ping until the backend responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for backend: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// Snapshot returns the current index revision. Writers bump the revision on
// every ingest batch; a backend that has never been written to reports 0.
func (s *Store) Snapshot(ctx context.Context) (int64, error) {
	cmd := s.b().Get().Key(s.key(revisionKeyPart)).Build()
	rev, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("snapshot: %w", err)
	}
	return rev, nil
}

func (s *Store) key(parts ...string) string {
	k := s.cfg.KeyPrefix
	for _, p := range parts {
		k += p
	}
	return k
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}

// isRedisErr checks if err is a Redis server error containing substr (case-insensitive).
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return containsIgnoreCase(re.Error(), substr)
}

func containsIgnoreCase(s, substr string) bool {
	ls := len(s)
	lsub := len(substr)
	if lsub > ls {
		return false
	}
	for i := 0; i <= ls-lsub; i++ {
		match := true
		for j := 0; j < lsub; j++ {
			sc := s[i+j]
			tc := substr[j]
			if sc >= 'A' && sc <= 'Z' {
				sc += 'a' - 'A'
			}
			if tc >= 'A' && tc <= 'Z' {
				tc += 'a' - 'A'
			}
			if sc != tc {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
