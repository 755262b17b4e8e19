package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	manager, err := NewManager(context.Background(), Config{
		Addr:       mr.Addr(),
		KeyPrefix:  "test:",
		DefaultTTL: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	return mr, manager
}

func TestNewManager_ConnectFailure(t *testing.T) {
	_, err := NewManager(context.Background(), Config{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond}, nil)
	assert.Error(t, err)
}

func TestManager_SetGetWithPrefix(t *testing.T) {
	mr, m := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", 0))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	assert.True(t, mr.Exists("test:k"))
	assert.Equal(t, time.Minute, mr.TTL("test:k"))

	_, err = m.Get(ctx, "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestManager_JSONAndExpiry(t *testing.T) {
	mr, m := setupTestRedis(t)
	ctx := context.Background()

	type page struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}
	require.NoError(t, m.SetJSON(ctx, "page", page{URL: "https://a", Title: "A"}, 10*time.Second))

	var got page
	require.NoError(t, m.GetJSON(ctx, "page", &got))
	assert.Equal(t, "A", got.Title)

	mr.FastForward(11 * time.Second)
	assert.ErrorIs(t, m.GetJSON(ctx, "page", &got), ErrCacheMiss)
}

func TestManager_DeleteAndClose(t *testing.T) {
	_, m := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", "1", 0))
	require.NoError(t, m.Delete(ctx, "a"))
	_, err := m.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
	require.NoError(t, m.Ping(ctx))

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Set(ctx, "a", "1", 0), ErrClosed)
}
