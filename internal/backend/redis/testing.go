package redis

import "github.com/redis/rueidis"

// NewStoreForTest wraps a mock client for unit tests.
func NewStoreForTest(c rueidis.Client, cfg Config) *Store {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "retrievex:"
	}
	if cfg.DocIndex == "" {
		cfg.DocIndex = "idx:docs"
	}
	if cfg.NodeIndex == "" {
		cfg.NodeIndex = "idx:nodes"
	}
	return &Store{client: c, cfg: cfg}
}
