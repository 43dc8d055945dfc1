package retrievex

import (
	"context"
	"fmt"

	backendRedis "github.com/kailas-cloud/retrievex/internal/backend/redis"
)

// Upsert writes documents to the index and bumps the index revision.
func (c *Client) Upsert(ctx context.Context, docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}
	internal := make([]backendRedis.Document, len(docs))
	for i, d := range docs {
		internal[i] = backendRedis.Document{
			ID:       d.ID,
			Content:  d.Content,
			Locator:  d.Locator,
			ACLs:     d.ACLs,
			Vector:   d.Vector,
			Metadata: d.Metadata,
		}
	}
	if err := c.store.UpsertDocuments(ctx, internal); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}
