package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/rueidis"
)

// Document is an ingest record. Exactly one of Content and Locator should be
// set; pointer documents carry their ACL list alongside the locator.
type Document struct {
	ID       string
	Content  string
	Locator  string
	ACLs     []string
	Vector   []float32
	Metadata map[string]any
}

// EnsureIndexes creates the document and node FT indexes if absent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	docSchema := []string{
		fieldDocID, "TAG", "SORTABLE",
		fieldContent, "TEXT",
	}
	for _, f := range s.cfg.TagFields {
		docSchema = append(docSchema, f, "TAG")
	}
	for _, f := range s.cfg.NumericFields {
		docSchema = append(docSchema, f, "NUMERIC")
	}
	if s.cfg.VectorDim > 0 {
		docSchema = append(docSchema,
			fieldVector, "VECTOR", "HNSW", "6",
			"TYPE", "FLOAT32",
			"DIM", strconv.Itoa(s.cfg.VectorDim),
			"DISTANCE_METRIC", "COSINE",
		)
	}
	if err := s.createIndex(ctx, s.cfg.DocIndex, s.key(docKeyPart), docSchema); err != nil {
		return err
	}

	nodeSchema := []string{
		fieldDocID, "TAG", "SORTABLE",
		fieldName, "TEXT",
		fieldLabel, "TAG",
	}
	return s.createIndex(ctx, s.cfg.NodeIndex, s.key(nodeKeyPart), nodeSchema)
}

func (s *Store) createIndex(ctx context.Context, name, prefix string, schema []string) error {
	args := []string{name, "ON", "HASH", "PREFIX", "1", prefix, "SCHEMA"}
	args = append(args, schema...)

	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return nil
		}
		return fmt.Errorf("create index %s: %w", name, err)
	}
	return nil
}

// UpsertDocuments writes a batch of documents in one round-trip and bumps the
// index revision, so audit snapshots taken before and after the batch differ.
func (s *Store) UpsertDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	cmds := make([]rueidis.Completed, 0, len(docs)+1)
	for _, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("document id is required")
		}
		fields, err := docFields(doc)
		if err != nil {
			return err
		}
		cmd := s.b().Hset().Key(s.key(docKeyPart, doc.ID)).FieldValue()
		for k, v := range fields {
			cmd = cmd.FieldValue(k, v)
		}
		cmds = append(cmds, cmd.Build())
	}
	cmds = append(cmds, s.b().Incr().Key(s.key(revisionKeyPart)).Build())

	for i, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			if i < len(docs) {
				return fmt.Errorf("upsert %s: %w", docs[i].ID, err)
			}
			return fmt.Errorf("bump revision: %w", err)
		}
	}
	return nil
}

func docFields(doc Document) (map[string]string, error) {
	fields := map[string]string{fieldDocID: doc.ID}

	switch {
	case doc.Locator != "":
		fields[fieldLocator] = doc.Locator
		if len(doc.ACLs) > 0 {
			fields[fieldACLs] = strings.Join(doc.ACLs, aclSeparator)
		}
	case doc.Content != "":
		fields[fieldContent] = doc.Content
	default:
		return nil, fmt.Errorf("document %s has neither content nor locator", doc.ID)
	}

	if len(doc.Vector) > 0 {
		fields[fieldVector] = vectorToBytes(doc.Vector)
	}
	if len(doc.Metadata) > 0 {
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return nil, fmt.Errorf("document %s metadata: %w", doc.ID, err)
		}
		fields[fieldMeta] = string(meta)
		// Scalar metadata is also written flat so FT filters can reach it.
		for k, v := range doc.Metadata {
			switch n := v.(type) {
			case string:
				fields[k] = n
			case float64:
				fields[k] = strconv.FormatFloat(n, 'g', -1, 64)
			case int:
				fields[k] = strconv.Itoa(n)
			case int64:
				fields[k] = strconv.FormatInt(n, 10)
			case bool:
				fields[k] = strconv.FormatBool(n)
			}
		}
	}
	return fields, nil
}
