package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/filter"
)

// --- client.go tests ---

func TestPing_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	s := NewStoreForTest(c, Config{})
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPing_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c, Config{})
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSnapshot_Missing(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "retrievex:index:revision")).
		Return(mock.Result(mock.RedisNil()))

	s := NewStoreForTest(c, Config{})
	rev, err := s.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rev != 0 {
		t.Errorf("expected revision 0, got %d", rev)
	}
}

func TestSnapshot_Value(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "retrievex:index:revision")).
		Return(mock.Result(mock.RedisString("17")))

	s := NewStoreForTest(c, Config{})
	rev, err := s.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rev != 17 {
		t.Errorf("expected revision 17, got %d", rev)
	}
}

func TestContainsIgnoreCase(t *testing.T) {
	tests := []struct {
		s, sub string
		want   bool
	}{
		{"Index Already Exists", "index already exists", true},
		{"UNKNOWN INDEX NAME", "unknown index name", true},
		{"hello world", "world", true},
		{"short", "longer than input", false},
		{"exact", "exact", true},
		{"", "", true},
		{"notempty", "", true},
	}
	for _, tc := range tests {
		got := containsIgnoreCase(tc.s, tc.sub)
		if got != tc.want {
			t.Errorf("containsIgnoreCase(%q, %q) = %v, want %v", tc.s, tc.sub, got, tc.want)
		}
	}
}

// --- query.go tests ---

func mustExpr(t *testing.T, raw map[string]any) filter.Expression {
	t.Helper()
	expr, err := filter.ParseMap(raw)
	if err != nil {
		t.Fatalf("parse filters: %v", err)
	}
	return expr
}

func TestBuildFilterQuery(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want string
	}{
		{"empty", nil, ""},
		{"eq_string", map[string]any{"lang": "en"}, "@lang:{en}"},
		{"eq_number", map[string]any{"year": 2023}, "@year:[2023 2023]"},
		{"ne", map[string]any{"lang": map[string]any{"$ne": "de"}}, "-@lang:{de}"},
		{"gt", map[string]any{"year": map[string]any{"$gt": 2020}}, "@year:[(2020 +inf]"},
		{"gte", map[string]any{"year": map[string]any{"$gte": 2020}}, "@year:[2020 +inf]"},
		{"lt", map[string]any{"year": map[string]any{"$lt": 2020}}, "@year:[-inf (2020]"},
		{"lte", map[string]any{"year": map[string]any{"$lte": 2020}}, "@year:[-inf 2020]"},
		{"in", map[string]any{"lang": map[string]any{"$in": []any{"en", "fr"}}}, "@lang:{en|fr}"},
		{"nin", map[string]any{"lang": map[string]any{"$nin": []any{"en", "fr"}}}, "-@lang:{en|fr}"},
		{
			"conjunction_sorted_by_key",
			map[string]any{"year": map[string]any{"$gte": 2020}, "lang": "en"},
			"@lang:{en} @year:[2020 +inf]",
		},
		{"tag_escaping", map[string]any{"topic": "sepsis care"}, `@topic:{sepsis\ care}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := buildFilterQuery(mustExpr(t, tc.raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBuildFilterQuery_Unsupported(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"eq_on_list", map[string]any{"tags": []any{"a"}}},
		{"in_with_number", map[string]any{"year": map[string]any{"$in": []any{2020}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := buildFilterQuery(mustExpr(t, tc.raw))
			if !errors.Is(err, domain.ErrUnsupportedFilter) {
				t.Fatalf("expected ErrUnsupportedFilter, got %v", err)
			}
		})
	}
}

func TestEscapeQuery(t *testing.T) {
	got := escapeQuery(`hello-world @field`)
	want := `hello\-world \@field`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestVectorToBytes(t *testing.T) {
	b := vectorToBytes([]float32{1.0})
	if len(b) != 4 {
		t.Fatalf("expected 4 bytes, got %d", len(b))
	}
	// float32(1.0) is 0x3f800000 little-endian
	if b[0] != 0x00 || b[1] != 0x00 || b[2] != 0x80 || b[3] != 0x3f {
		t.Errorf("unexpected encoding: %v", []byte(b))
	}
}

// --- search.go tests ---

func TestVectorSearch_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && cmd[1] == "idx:docs"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("retrievex:doc:alpha"),
			mock.RedisArray(
				mock.RedisString("__vector_score"),
				mock.RedisString("0.1"),
				mock.RedisString("__id"),
				mock.RedisString("alpha"),
				mock.RedisString("__content"),
				mock.RedisString("inline text"),
				mock.RedisString("__meta"),
				mock.RedisString(`{"lang":"en"}`),
			),
		)))

	s := NewStoreForTest(c, Config{})
	docs, err := s.VectorSearch(context.Background(), []float32{0.1, 0.2}, 10, filter.Expression{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 doc, got %d", len(docs))
	}
	d := docs[0]
	if d.ID != "alpha" {
		t.Errorf("expected id alpha, got %s", d.ID)
	}
	// cosine distance 0.1 maps to similarity 0.9
	if d.Score < 0.89 || d.Score > 0.91 {
		t.Errorf("expected score ~0.9, got %f", d.Score)
	}
	if d.Content != "inline text" {
		t.Errorf("unexpected content %q", d.Content)
	}
	if d.Metadata["lang"] != "en" {
		t.Errorf("unexpected metadata %v", d.Metadata)
	}
}

func TestVectorSearch_PointerDoc(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("retrievex:doc:beta"),
			mock.RedisArray(
				mock.RedisString("__id"),
				mock.RedisString("beta"),
				mock.RedisString("__locator"),
				mock.RedisString("s3://bucket/beta"),
				mock.RedisString("__acls"),
				mock.RedisString("group:researchers,alice"),
			),
		)))

	s := NewStoreForTest(c, Config{})
	docs, err := s.VectorSearch(context.Background(), []float32{0.1}, 5, filter.Expression{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := docs[0]
	if d.Locator != "s3://bucket/beta" {
		t.Errorf("unexpected locator %q", d.Locator)
	}
	if d.Content != "" {
		t.Errorf("pointer doc must carry no inline content, got %q", d.Content)
	}
	if len(d.ACLs) != 2 || d.ACLs[0] != "group:researchers" {
		t.Errorf("unexpected acls %v", d.ACLs)
	}
}

func TestVectorSearch_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c, Config{})
	_, err := s.VectorSearch(context.Background(), []float32{0.1}, 5, filter.Expression{})
	if !errors.Is(err, domain.ErrRetrieverUnavailable) {
		t.Fatalf("expected ErrRetrieverUnavailable, got %v", err)
	}
}

func TestTextSearch_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && assertHasArg(cmd, "WITHSCORES")
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("retrievex:doc:alpha"),
			mock.RedisString("3.5"),
			mock.RedisArray(
				mock.RedisString("__id"),
				mock.RedisString("alpha"),
				mock.RedisString("__content"),
				mock.RedisString("match text"),
			),
		)))

	s := NewStoreForTest(c, Config{})
	docs, err := s.TextSearch(context.Background(), "sepsis", 10, filter.Expression{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 || docs[0].Score != 3.5 {
		t.Fatalf("unexpected docs %+v", docs)
	}
}

func TestTextSearchPage(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" &&
				assertHasArg(cmd, "WITHSCORES") &&
				assertHasArg(cmd, "SORTBY") &&
				assertHasArgs(cmd, "LIMIT", "200", "100")
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(450),
			mock.RedisString("retrievex:doc:doc-200"),
			mock.RedisString("2.25"),
			mock.RedisArray(
				mock.RedisString("__id"),
				mock.RedisString("doc-200"),
				mock.RedisString("__content"),
				mock.RedisString("page text"),
			),
		)))

	s := NewStoreForTest(c, Config{})
	docs, total, err := s.TextSearchPage(context.Background(), "topic:sepsis", filter.Expression{}, 200, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 450 {
		t.Errorf("expected total 450, got %d", total)
	}
	if len(docs) != 1 || docs[0].ID != "doc-200" {
		t.Errorf("unexpected docs %+v", docs)
	}
	if docs[0].Score != 2.25 {
		t.Errorf("paged hit must carry the text score, got %v", docs[0].Score)
	}
}

func TestTextSearch_UnsupportedFilterRejected(t *testing.T) {
	s := NewStoreForTest(nil, Config{})
	expr := mustExpr(t, map[string]any{"tags": []any{"a"}})
	_, err := s.TextSearch(context.Background(), "q", 10, expr)
	if !errors.Is(err, domain.ErrUnsupportedFilter) {
		t.Fatalf("expected ErrUnsupportedFilter, got %v", err)
	}
}

// --- content.go tests ---

func TestFetch_Allowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "retrievex:content:s3://bucket/doc")).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
			"__text": mock.RedisString("full document text"),
			"__acls": mock.RedisString("group:researchers"),
		})))

	s := NewStoreForTest(c, Config{})
	text, err := s.Fetch(context.Background(), "s3://bucket/doc",
		domain.Principal{Subject: "alice", Groups: []string{"group:researchers"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "full document text" {
		t.Errorf("unexpected text %q", text)
	}
}

func TestFetch_Denied(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "HGETALL"
		})).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
			"__text": mock.RedisString("secret"),
			"__acls": mock.RedisString("group:admins"),
		})))

	s := NewStoreForTest(c, Config{})
	_, err := s.Fetch(context.Background(), "loc", domain.Principal{Subject: "mallory"})
	if !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

func TestFetch_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "HGETALL"
		})).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{})))

	s := NewStoreForTest(c, Config{})
	_, err := s.Fetch(context.Background(), "gone", domain.Principal{})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// --- graph.go tests ---

func TestSearchNodes(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && cmd[1] == "idx:nodes"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("retrievex:node:concept-1"),
			mock.RedisArray(
				mock.RedisString("__id"),
				mock.RedisString("concept-1"),
				mock.RedisString("__label"),
				mock.RedisString("concept"),
				mock.RedisString("__name"),
				mock.RedisString("sepsis"),
			),
		)))

	s := NewStoreForTest(c, Config{})
	nodes, err := s.SearchNodes(context.Background(), "sepsis", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 1 || nodes[0].ID != "concept-1" || nodes[0].Label != "concept" {
		t.Fatalf("unexpected nodes %+v", nodes)
	}
	if nodes[0].Distance != 0 {
		t.Errorf("entry node distance must be 0, got %d", nodes[0].Distance)
	}
}

func TestNeighbors_OneHop(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("SMEMBERS", "retrievex:edges:concept-1")).
		Return(mock.Result(mock.RedisArray(
			mock.RedisString("doc-9"),
		)))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "retrievex:node:doc-9")).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
			"__label":   mock.RedisString("document"),
			"__locator": mock.RedisString("s3://bucket/doc-9"),
		})))

	s := NewStoreForTest(c, Config{})
	nodes, err := s.Neighbors(context.Background(), "concept-1", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1 neighbor, got %d", len(nodes))
	}
	n := nodes[0]
	if n.ID != "doc-9" || n.Label != "document" || n.Distance != 1 {
		t.Errorf("unexpected node %+v", n)
	}
}

func TestNeighbors_ZeroHops(t *testing.T) {
	s := NewStoreForTest(nil, Config{})
	nodes, err := s.Neighbors(context.Background(), "n", 0)
	if err != nil || nodes != nil {
		t.Fatalf("expected no-op, got %v / %v", nodes, err)
	}
}

// --- index.go tests ---

func TestEnsureIndexes_AlreadyExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Times(2).
		Return(mock.Result(mock.RedisError("Index already exists")))

	s := NewStoreForTest(c, Config{VectorDim: 4})
	if err := s.EnsureIndexes(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpsertDocuments(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisInt64(5)),
			mock.Result(mock.RedisInt64(1)),
		}) // HSET + revision INCR

	s := NewStoreForTest(c, Config{})
	err := s.UpsertDocuments(context.Background(), []Document{
		{ID: "alpha", Content: "inline text", Metadata: map[string]any{"lang": "en", "year": 2023}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpsertDocuments_RequiresContentOrLocator(t *testing.T) {
	s := NewStoreForTest(nil, Config{})
	err := s.UpsertDocuments(context.Background(), []Document{{ID: "empty"}})
	if err == nil {
		t.Fatal("expected error")
	}
}

func assertHasArg(cmd []string, want string) bool {
	for _, a := range cmd {
		if a == want {
			return true
		}
	}
	return false
}

func assertHasArgs(cmd []string, want ...string) bool {
	for i := 0; i+len(want) <= len(cmd); i++ {
		match := true
		for j, w := range want {
			if cmd[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
