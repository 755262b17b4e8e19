package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/BaSui01/skillflow/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestConfigFor(t *testing.T) {
	cfg := ConfigFor(config.ServerConfig{ReadTimeout: 5 * time.Second}, 9000)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Zero(t, cfg.WriteTimeout)
}

func TestManager_StartAndShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	m := NewManager("api", okHandler(), cfg, zap.NewNop())
	assert.False(t, m.IsRunning())

	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	assert.True(t, m.IsRunning())

	resp, err := http.Get("http://" + m.Addr() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
	assert.NoError(t, m.Shutdown(context.Background()))
	assert.ErrorIs(t, m.Start(), ErrServerClosed)
}

func TestManager_DoubleStart(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	m := NewManager("api", okHandler(), cfg, zap.NewNop())
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	assert.Error(t, m.Start())
}

func TestManager_RunStopsOnContextCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	m := NewManager("metrics", okHandler(), cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, m.IsRunning, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, m.IsRunning())
}

func TestManager_StartInvalidAddr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "invalid-addr-no-port"
	m := NewManager("api", okHandler(), cfg, zap.NewNop())
	assert.Error(t, m.Start())
}
