// Package provenance records how a response was produced: a deterministic
// digest for audit replay plus degradation notes explaining any discrepancy
// between what was requested and what was returned.
package provenance

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/kailas-cloud/retrievex/internal/domain/search/request"
)

// Hash computes the deterministic digest over the request parameters and the
// final ordered result id list. Two identical requests over the same index
// state yield the same hash, which is what makes an audit replay checkable.
func Hash(req *request.Request, orderedIDs []string) string {
	var b strings.Builder
	b.WriteString(req.Query().Text())
	b.WriteByte('\n')
	b.WriteString(req.Mode().String())
	b.WriteByte('\n')
	for _, s := range req.Strategies() {
		b.WriteString(s.String())
		b.WriteByte(',')
	}
	b.WriteByte('\n')
	fmt.Fprintf(&b, "fusion=%t,rerank=%t,distill=%t,top_k=%d\n",
		req.FusionEnabled(), req.RerankEnabled(), req.DistillEnabled(), req.TopK())
	for _, id := range orderedIDs {
		b.WriteString(id)
		b.WriteByte('\n')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// StrategyFailure is a retriever that failed while at least one other succeeded.
type StrategyFailure struct {
	Strategy string
	Reason   string
}

// Record accumulates degradation evidence across pipeline stages.
type Record struct {
	failures []StrategyFailure
	notes    []string
}

// MarkStrategyFailure records a failed retriever branch.
func (r *Record) MarkStrategyFailure(strategy string, err error) {
	r.failures = append(r.failures, StrategyFailure{Strategy: strategy, Reason: err.Error()})
}

// AddNote records a stage-local degradation, e.g. a re-rank candidate dropped
// by the cap or a hit whose content could not be resolved.
func (r *Record) AddNote(format string, args ...any) {
	r.notes = append(r.notes, fmt.Sprintf(format, args...))
}

// Degraded reports whether any branch failed or any item was dropped.
func (r *Record) Degraded() bool {
	return len(r.failures) > 0 || len(r.notes) > 0
}

// Failures returns the recorded strategy failures.
func (r *Record) Failures() []StrategyFailure { return r.failures }

// Notes returns the recorded stage-local notes.
func (r *Record) Notes() []string { return r.notes }
