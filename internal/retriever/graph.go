package retriever

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/hit"
	"github.com/kailas-cloud/retrievex/internal/domain/search/request"
	"github.com/kailas-cloud/retrievex/internal/domain/search/strategy"
)

// documentLabel marks graph nodes that represent retrievable documents.
const documentLabel = "document"

// maxStartNodes bounds the entity-linking step so one broad query cannot
// fan out over the whole graph.
const maxStartNodes = 10

// Graph retrieves documents connected 1-hop to nodes matching the query.
// Score is derived from traversal distance: closer neighbors rank higher.
type Graph struct {
	store GraphStore
}

// NewGraph creates the symbolic-graph retriever.
func NewGraph(store GraphStore) *Graph {
	return &Graph{store: store}
}

// Strategy implements Retriever.
func (g *Graph) Strategy() strategy.Strategy { return strategy.Graph }

// Retrieve finds start nodes for the query and expands to their document
// neighbors. The graph backend has no filter pushdown, so any filter
// expression is rejected rather than silently ignored.
func (g *Graph) Retrieve(ctx context.Context, req *request.Request, topN int) ([]hit.Hit, error) {
	if !req.Filters().IsEmpty() {
		return nil, fmt.Errorf("%w: graph strategy does not support metadata filters",
			domain.ErrUnsupportedFilter)
	}

	startNodes, err := g.store.SearchNodes(ctx, req.Query().Text(), maxStartNodes)
	if err != nil {
		return nil, fmt.Errorf("search graph nodes: %w", err)
	}
	if len(startNodes) == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{})
	hits := make([]hit.Hit, 0, topN)

	for _, node := range startNodes {
		neighbors, err := g.store.Neighbors(ctx, node.ID, 1)
		if err != nil {
			return nil, fmt.Errorf("neighbors of %s: %w", node.ID, err)
		}

		for _, n := range neighbors {
			if n.Label != documentLabel {
				continue
			}
			if _, dup := seen[n.ID]; dup {
				continue
			}
			seen[n.ID] = struct{}{}

			hits = append(hits, docToHit(Doc{
				ID:       n.ID,
				Score:    traversalScore(n.Distance),
				Content:  n.Content,
				Locator:  n.Locator,
				ACLs:     n.ACLs,
				Metadata: n.Metadata,
			}, strategy.Graph))

			if len(hits) >= topN {
				return hits, nil
			}
		}
	}

	return hits, nil
}

// traversalScore maps hop distance to (0,1] with harmonic decay: distance 0
// (the node itself) scores 1, distance n scores 1/(n+1).
func traversalScore(distance int) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1.0 / float64(distance+1)
}
