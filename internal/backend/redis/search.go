package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/filter"
	"github.com/kailas-cloud/retrievex/internal/retriever"
)

// Reserved hash fields on document and node keys.
const (
	fieldContent = "__content"
	fieldLocator = "__locator"
	fieldACLs    = "__acls"
	fieldMeta    = "__meta"
	fieldVector  = "__vector"
	fieldDocID   = "__id"
	fieldLabel   = "__label"
	fieldName    = "__name"

	aclSeparator = ","
)

// VectorSearch runs a KNN query against the document index.
func (s *Store) VectorSearch(
	ctx context.Context, vector []float32, topN int, filters filter.Expression,
) ([]retriever.Doc, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if topN <= 0 {
		return nil, fmt.Errorf("topN must be positive")
	}

	filterStr, err := buildFilterQuery(filters)
	if err != nil {
		return nil, err
	}

	knnPart := fmt.Sprintf("[KNN %d @%s $BLOB]", topN, fieldVector)
	queryStr := "*=>" + knnPart
	if filterStr != "" {
		queryStr = fmt.Sprintf("(%s)=>%s", filterStr, knnPart)
	}

	args := []string{
		s.cfg.DocIndex, queryStr,
		"PARAMS", "2", "BLOB", vectorToBytes(vector),
		"DIALECT", "2",
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %w", domain.ErrRetrieverUnavailable, err)
	}

	docs, _, err := parseKNNDocs(raw)
	return docs, err
}

// TextSearch runs a BM25 query against the document index.
func (s *Store) TextSearch(
	ctx context.Context, query string, topN int, filters filter.Expression,
) ([]retriever.Doc, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if topN <= 0 {
		return nil, fmt.Errorf("topN must be positive")
	}

	queryStr, err := s.textQuery(query, filters)
	if err != nil {
		return nil, err
	}

	args := []string{
		s.cfg.DocIndex, queryStr,
		"WITHSCORES",
		"LIMIT", "0", strconv.Itoa(topN),
		"DIALECT", "2",
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("%w: text search: %w", domain.ErrRetrieverUnavailable, err)
	}

	docs, _, err := parseScoredDocs(raw)
	return docs, err
}

// TextSearchPage fetches one page of an exhaustive text query in stable
// document-id order. The returned total is the full match count.
func (s *Store) TextSearchPage(
	ctx context.Context, query string, filters filter.Expression, offset, limit int,
) ([]retriever.Doc, int, error) {
	if query == "" {
		return nil, 0, fmt.Errorf("query is required")
	}

	queryStr, err := s.textQuery(query, filters)
	if err != nil {
		return nil, 0, err
	}

	args := []string{
		s.cfg.DocIndex, queryStr,
		"WITHSCORES",
		"SORTBY", fieldDocID, "ASC",
		"LIMIT", strconv.Itoa(offset), strconv.Itoa(limit),
		"DIALECT", "2",
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: paged search: %w", domain.ErrRetrieverUnavailable, err)
	}

	return parseScoredDocs(raw)
}

// textQuery combines the escaped user query with translated filters.
func (s *Store) textQuery(query string, filters filter.Expression) (string, error) {
	filterStr, err := buildFilterQuery(filters)
	if err != nil {
		return "", err
	}
	textPart := fmt.Sprintf("@%s:(%s)", fieldContent, escapeQuery(query))
	if filterStr != "" {
		return filterStr + " " + textPart, nil
	}
	return textPart, nil
}

// --- Result parsing ---

// parseKNNDocs parses a 2-stride reply: [total, key1, fields1, ...].
// A __vector_score field, when present, is converted from cosine distance
// to similarity.
func parseKNNDocs(raw []rueidis.RedisMessage) ([]retriever.Doc, int, error) {
	if len(raw) == 0 {
		return nil, 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, 0, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	docs := make([]retriever.Doc, 0, (len(raw)-1)/2)
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

		score := 0.0
		if scoreStr, ok := pairs["__vector_score"]; ok {
			if dist, err := strconv.ParseFloat(scoreStr, 64); err == nil {
				score = max(0, 1.0-dist)
			}
			delete(pairs, "__vector_score")
		}

		docs = append(docs, docFromFields(key, score, pairs))
	}
	return docs, int(total), nil
}

// parseScoredDocs parses a 3-stride WITHSCORES reply:
// [total, key1, score1, fields1, ...].
func parseScoredDocs(raw []rueidis.RedisMessage) ([]retriever.Doc, int, error) {
	if len(raw) == 0 {
		return nil, 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, 0, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	docs := make([]retriever.Doc, 0, (len(raw)-1)/3)
	for i := 1; i+2 < len(raw); i += 3 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		scoreStr, err := raw[i+1].ToString()
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(scoreStr, 64)
		if err != nil {
			continue
		}
		fields, err := raw[i+2].ToArray()
		if err != nil {
			continue
		}
		docs = append(docs, docFromFields(key, score, parseFieldPairs(fields)))
	}
	return docs, int(total), nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// docFromFields maps a document hash to a backend record. The document id is
// the __id field, falling back to the key's last path segment.
func docFromFields(key string, score float64, fields map[string]string) retriever.Doc {
	id := fields[fieldDocID]
	if id == "" {
		if idx := strings.LastIndexByte(key, ':'); idx >= 0 {
			id = key[idx+1:]
		} else {
			id = key
		}
	}

	doc := retriever.Doc{
		ID:       id,
		Score:    score,
		Content:  fields[fieldContent],
		Locator:  fields[fieldLocator],
		Metadata: parseMeta(fields[fieldMeta]),
	}
	if doc.Locator != "" {
		// Pointer records carry no inline text: the locator is authoritative.
		doc.Content = ""
		doc.ACLs = splitACLs(fields[fieldACLs])
	}
	return doc
}

func parseMeta(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil
	}
	return meta
}

func splitACLs(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, aclSeparator)
}
