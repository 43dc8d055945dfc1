package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/retriever"
)

// SearchNodes finds graph entry nodes whose name matches the query.
func (s *Store) SearchNodes(ctx context.Context, query string, limit int) ([]retriever.GraphNode, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	queryStr := fmt.Sprintf("@%s:(%s)", fieldName, escapeQuery(query))
	args := []string{
		s.cfg.NodeIndex, queryStr,
		"LIMIT", "0", strconv.Itoa(limit),
		"DIALECT", "2",
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("%w: node search: %w", domain.ErrRetrieverUnavailable, err)
	}

	return parseNodes(raw)
}

// parseNodes parses a 2-stride reply of node hashes.
func parseNodes(raw []rueidis.RedisMessage) ([]retriever.GraphNode, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	nodes := make([]retriever.GraphNode, 0, (len(raw)-1)/2)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		pairs := parseFieldPairs(fields)

		id := pairs[fieldDocID]
		if id == "" {
			if idx := strings.LastIndexByte(key, ':'); idx >= 0 {
				id = key[idx+1:]
			} else {
				id = key
			}
		}
		nodes = append(nodes, retriever.GraphNode{
			ID:       id,
			Label:    pairs[fieldLabel],
			Distance: 0,
			Content:  pairs[fieldContent],
			Locator:  pairs[fieldLocator],
			ACLs:     splitACLs(pairs[fieldACLs]),
			Metadata: parseMeta(pairs[fieldMeta]),
		})
	}
	return nodes, nil
}

// Neighbors expands adjacency sets breadth-first up to hops edges away from
// nodeID. The start node itself is not returned.
func (s *Store) Neighbors(ctx context.Context, nodeID string, hops int) ([]retriever.GraphNode, error) {
	if hops <= 0 {
		return nil, nil
	}

	visited := map[string]struct{}{nodeID: {}}
	frontier := []string{nodeID}
	var out []retriever.GraphNode

	for depth := 1; depth <= hops && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			cmd := s.b().Smembers().Key(s.key(edgesKeyPart, id)).Build()
			adjacent, err := s.do(ctx, cmd).AsStrSlice()
			if err != nil {
				return nil, fmt.Errorf("%w: edges of %s: %w", domain.ErrRetrieverUnavailable, id, err)
			}
			for _, adj := range adjacent {
				if _, seen := visited[adj]; seen {
					continue
				}
				visited[adj] = struct{}{}
				node, err := s.loadNode(ctx, adj, depth)
				if err != nil {
					return nil, err
				}
				out = append(out, node)
				next = append(next, adj)
			}
		}
		frontier = next
	}
	return out, nil
}

func (s *Store) loadNode(ctx context.Context, id string, distance int) (retriever.GraphNode, error) {
	cmd := s.b().Hgetall().Key(s.key(nodeKeyPart, id)).Build()
	fields, err := s.do(ctx, cmd).AsStrMap()
	if err != nil {
		return retriever.GraphNode{}, fmt.Errorf("%w: node %s: %w", domain.ErrRetrieverUnavailable, id, err)
	}
	return retriever.GraphNode{
		ID:       id,
		Label:    fields[fieldLabel],
		Distance: distance,
		Content:  fields[fieldContent],
		Locator:  fields[fieldLocator],
		ACLs:     splitACLs(fields[fieldACLs]),
		Metadata: parseMeta(fields[fieldMeta]),
	}, nil
}
