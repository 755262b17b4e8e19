package knowledge

import (
	"context"
	"testing"

	"github.com/BaSui01/skillflow/config"
	"github.com/BaSui01/skillflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), config.KnowledgeConfig{Driver: "sqlite", Path: ":memory:", Limit: 3}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	require.NoError(t, s.Add(context.Background(),
		Document{EntityID: "kb-go", Title: "Go concurrency", Content: "goroutines and channels make concurrency simple", ProjectID: "p1"},
		Document{EntityID: "kb-rust", Title: "Rust ownership", Content: "ownership and borrowing", ProjectID: "p1"},
		Document{EntityID: "kb-chan", Title: "Channels", Content: "buffered channels, unbuffered channels", ProjectID: "p2"},
		Document{EntityID: "kb-zh", Title: "并发", Content: "Go 语言的并发模型", Locale: "zh-CN"},
	))
}

func TestStore_SearchRanksByHits(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	got, err := s.Search(context.Background(), "channels concurrency", Options{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	// 同分时保持插入顺序
	assert.Equal(t, "kb-go", got[0].EntityID)
	assert.Equal(t, "kb-chan", got[1].EntityID)
	for _, src := range got {
		assert.Equal(t, types.SourceKindKnowledge, src.Kind)
		assert.Positive(t, src.Score)
		assert.NotEmpty(t, src.PageContent)
	}
}

func TestStore_SearchFilters(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	got, err := s.Search(ctx, "channels", Options{ProjectID: "p2"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "kb-chan", got[0].EntityID)

	got, err = s.Search(ctx, "并发", Options{Locale: "zh-CN"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "kb-zh", got[0].EntityID)

	got, err = s.Search(ctx, "ownership", Options{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = s.Search(ctx, "   ", Options{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_SearchEscapesWildcards(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	got, err := s.Search(context.Background(), "%", Options{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_AddUpsertsAndDeletes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, Document{EntityID: "a", Title: "old", Content: "alpha"}))
	require.NoError(t, s.Add(ctx, Document{EntityID: "a", Title: "new", Content: "alpha beta"}))
	require.NoError(t, s.Add(ctx, Document{Title: "generated", Content: "gamma"}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	got, err := s.Search(ctx, "beta", Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Title)

	require.NoError(t, s.Delete(ctx, "a"))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"go", "channels"}, Terms("Go, channels? go"))
	assert.Equal(t, []string{"并发", "模型"}, Terms("并发，模型"))
	assert.Empty(t, Terms(" \t "))
}

func TestNewStore_NilPool(t *testing.T) {
	_, err := NewStore(nil, 0, nil)
	assert.Error(t, err)
}
