package redis

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/retrievex/internal/domain"
)

const fieldText = "__text"

// Fetch resolves a source locator to full text on behalf of a principal.
// The ACL list stored with the content is authoritative and re-checked on
// every read.
func (s *Store) Fetch(ctx context.Context, locator string, principal domain.Principal) (string, error) {
	if locator == "" {
		return "", fmt.Errorf("%w: empty locator", domain.ErrNotFound)
	}

	cmd := s.b().Hgetall().Key(s.key(contentKeyPart, locator)).Build()
	fields, err := s.do(ctx, cmd).AsStrMap()
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", locator, err)
	}
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: locator %s", domain.ErrNotFound, locator)
	}

	if !principal.Allowed(splitACLs(fields[fieldACLs])) {
		return "", fmt.Errorf("%w: locator %s", domain.ErrAccessDenied, locator)
	}

	text, ok := fields[fieldText]
	if !ok {
		return "", fmt.Errorf("%w: locator %s has no text", domain.ErrNotFound, locator)
	}
	return text, nil
}
