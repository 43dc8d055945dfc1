package domain

import "context"

// Principal identifies the caller on whose behalf content is fetched.
// Content fetches are re-authorized against it at read time, so ACL changes
// at the source take effect immediately.
type Principal struct {
	Subject string
	Groups  []string
}

// Allowed reports whether the principal satisfies an ACL list.
// An empty ACL list means the content is unrestricted.
func (p Principal) Allowed(acls []string) bool {
	if len(acls) == 0 {
		return true
	}
	for _, acl := range acls {
		if acl == p.Subject {
			return true
		}
		for _, g := range p.Groups {
			if acl == g {
				return true
			}
		}
	}
	return false
}

// PairScorer scores a (query, text) pair for re-ranking.
type PairScorer interface {
	Score(ctx context.Context, query, text string) (float64, error)
}

// UnitScorer scores a (query, unit) pair for distillation.
type UnitScorer interface {
	ScoreUnit(ctx context.Context, query, unit string) (float64, error)
}

// ContentFetcher resolves a source pointer to full text on behalf of a principal.
// Fails with ErrAccessDenied or ErrNotFound.
type ContentFetcher interface {
	Fetch(ctx context.Context, locator string, principal Principal) (string, error)
}

// AuditRecord is a single provenance event for the audit trail.
type AuditRecord struct {
	ID         string
	Event      string
	Query      string
	Mode       string
	Strategies []string
	SnapshotID int64
	HitCount   int
}

// AuditSink receives audit records. Implementations must never block the
// caller; records may be dropped under pressure.
type AuditSink interface {
	Record(rec AuditRecord)
}
