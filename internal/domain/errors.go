package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals a malformed or contradictory request. Nothing runs after it.
	ErrValidation = errors.New("invalid request")
	// ErrRetrieverUnavailable signals that the sole requested strategy failed.
	ErrRetrieverUnavailable = errors.New("retriever unavailable")
	// ErrUnsupportedFilter signals a filter a requested strategy cannot translate.
	ErrUnsupportedFilter = errors.New("unsupported filter")
	// ErrAmbiguousMerge signals multiple strategies requested with fusion disabled.
	ErrAmbiguousMerge = errors.New("ambiguous merge: multiple strategies with fusion disabled")
	// ErrUnresolvableContent signals a hit with neither inline content nor a source pointer.
	ErrUnresolvableContent = errors.New("unresolvable content")
	// ErrAccessDenied signals an unauthorized content fetch.
	ErrAccessDenied = errors.New("access denied")
	// ErrNotFound signals a missing resource at the content source.
	ErrNotFound = errors.New("not found")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// StrategyError wraps a retriever failure with the strategy that produced it.
type StrategyError struct {
	Strategy string
	Err      error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy %s: %s", e.Strategy, e.Err.Error())
}

func (e *StrategyError) Unwrap() error { return e.Err }

// NewStrategyError creates a strategy failure error.
func NewStrategyError(strategy string, err error) error {
	return &StrategyError{Strategy: strategy, Err: err}
}
