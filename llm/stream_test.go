package llm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/BaSui01/skillflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(chunks ...StreamChunk) <-chan StreamChunk {
	ch := make(chan StreamChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func TestAccumulateStream_ContinuationWithoutID(t *testing.T) {
	ch := feed(
		StreamChunk{Delta: types.Message{ToolCalls: []types.ToolCall{{ID: "a", Name: "f", Arguments: json.RawMessage(`{"x"`)}}}},
		StreamChunk{Delta: types.Message{ToolCalls: []types.ToolCall{{Arguments: json.RawMessage(`:1}`)}}}},
		StreamChunk{Delta: types.Message{ToolCalls: []types.ToolCall{{ID: "b", Name: "g"}}}},
	)
	msg, _, err := AccumulateStream(context.Background(), ch, nil)
	require.NoError(t, err)
	require.Len(t, msg.ToolCalls, 2)
	assert.JSONEq(t, `{"x":1}`, string(msg.ToolCalls[0].Arguments))
	assert.Equal(t, "g", msg.ToolCalls[1].Name)
	assert.Nil(t, msg.ToolCalls[1].Arguments)
	assert.Equal(t, types.RoleAssistant, msg.Role)
}

func TestAccumulateStream_InvalidArguments(t *testing.T) {
	ch := feed(StreamChunk{Delta: types.Message{ToolCalls: []types.ToolCall{{ID: "a", Name: "f", Arguments: json.RawMessage(`{"x"`)}}}})
	_, _, err := AccumulateStream(context.Background(), ch, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrUpstreamError))
}

func TestAccumulateStream_ChunkError(t *testing.T) {
	ch := feed(
		StreamChunk{Delta: types.Message{Content: "partial"}},
		StreamChunk{Err: types.NewError(types.ErrStreamReadFailed, "reset")},
	)
	_, _, err := AccumulateStream(context.Background(), ch, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrStreamReadFailed))
}

func TestAccumulateStream_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := AccumulateStream(ctx, make(chan StreamChunk), nil)
	assert.True(t, types.IsErrorCode(err, types.ErrCanceled))
}

type namedProvider struct {
	Provider
	name string
}

func (p namedProvider) Name() string { return p.name }

func TestStaticFactory(t *testing.T) {
	f := NewStaticFactory(nil)
	_, err := f.ProviderFor(ModelInfo{Name: "m"})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))

	f.Register("local", namedProvider{name: "local"})
	p, err := f.ProviderFor(ModelInfo{Name: "m", Provider: "local"})
	require.NoError(t, err)
	assert.Equal(t, "local", p.Name())

	f = NewStaticFactory(namedProvider{name: "default"})
	p, err = f.ProviderFor(ModelInfo{Name: "m", Provider: "unknown"})
	require.NoError(t, err)
	assert.Equal(t, "default", p.Name())
}

func TestModelMap_FallsBackToChat(t *testing.T) {
	m := ModelMap{ModelRoleChat: {Name: "chat", ContextLimit: 8000}}
	info, ok := m.Get(ModelRoleQueryAnalysis)
	require.True(t, ok)
	assert.Equal(t, "chat", info.Name)

	_, ok = ModelMap{}.Get(ModelRoleChat)
	assert.False(t, ok)
}
