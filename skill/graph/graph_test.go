package graph

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/BaSui01/skillflow/internal/metrics"
	"github.com/BaSui01/skillflow/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"
)

func toolCallMessage(id string) types.Message {
	return types.NewAssistantMessage("").WithToolCalls([]types.ToolCall{
		{ID: id, Name: "search", Arguments: json.RawMessage(`{}`)},
	})
}

// agentGraph 构造 llm ⇄ tools 循环。llm 按给定脚本依次返回消息。
func agentGraph(t *testing.T, limit int, script func(step int) types.Message, visits *[]string) *Graph {
	t.Helper()
	calls := 0
	g, err := NewBuilder("agent").
		WithLogger(zaptest.NewLogger(t)).
		WithRecursionLimit(limit).
		AddNode("llm", func(ctx context.Context, s *State) (Update, error) {
			*visits = append(*visits, "llm")
			msg := script(calls)
			calls++
			return Update{Messages: []types.Message{msg}, PendingToolCalls: append([]types.ToolCall{}, msg.ToolCalls...)}, nil
		}).
		AddNode(ToolsNode, func(ctx context.Context, s *State) (Update, error) {
			*visits = append(*visits, ToolsNode)
			var msgs []types.Message
			for _, tc := range s.PendingToolCalls {
				msgs = append(msgs, types.NewToolMessage(tc.ID, tc.Name, "ok"))
			}
			return Update{Messages: msgs, PendingToolCalls: []types.ToolCall{}}, nil
		}).
		AddEdge(Start, "llm").
		AddConditionalEdge("llm", ToolsCondition).
		AddEdge(ToolsNode, "llm").
		Build()
	require.NoError(t, err)
	return g
}

func TestRun_FinalAnswerTerminates(t *testing.T) {
	var visits []string
	g := agentGraph(t, 100, func(int) types.Message { return types.NewAssistantMessage("done") }, &visits)

	state, err := g.Run(context.Background(), &State{Messages: []types.Message{types.NewUserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"llm"}, visits)
	assert.Equal(t, 1, state.Steps)
	require.Len(t, state.Messages, 2)
	assert.Equal(t, "done", state.Messages[1].Content)
}

func TestRun_ToolLoopThenAnswer(t *testing.T) {
	var visits []string
	g := agentGraph(t, 100, func(step int) types.Message {
		if step < 2 {
			return toolCallMessage("call_" + string(rune('a'+step)))
		}
		return types.NewAssistantMessage("answer")
	}, &visits)

	state, err := g.Run(context.Background(), &State{})
	require.NoError(t, err)
	assert.Equal(t, []string{"llm", "tools", "llm", "tools", "llm"}, visits)
	assert.Empty(t, state.PendingToolCalls)

	roles := make([]types.Role, len(state.Messages))
	for i, m := range state.Messages {
		roles[i] = m.Role
	}
	assert.Equal(t, []types.Role{
		types.RoleAssistant, types.RoleTool,
		types.RoleAssistant, types.RoleTool,
		types.RoleAssistant,
	}, roles)
}

func TestRun_RecursionLimit(t *testing.T) {
	var visits []string
	g := agentGraph(t, 100, func(int) types.Message { return toolCallMessage("loop") }, &visits)

	state, err := g.Run(context.Background(), &State{})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrRecursionLimit))
	assert.Equal(t, 100, state.Steps)
	assert.Len(t, visits, 100)
}

func TestRun_RecursionLimitProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		limit := rapid.IntRange(1, 40).Draw(rt, "limit")
		var visits []string
		g := agentGraph(t, limit, func(int) types.Message { return toolCallMessage("x") }, &visits)
		state, err := g.Run(context.Background(), nil)
		if !types.IsErrorCode(err, types.ErrRecursionLimit) {
			rt.Fatalf("expected recursion limit error, got %v", err)
		}
		if state.Steps != limit {
			rt.Fatalf("steps = %d, want %d", state.Steps, limit)
		}
	})
}

func TestRun_NoToolCallsNeverRoutesToTools(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		content := rapid.String().Draw(rt, "content")
		s := &State{Messages: []types.Message{types.NewUserMessage("q"), types.NewAssistantMessage(content)}}
		if ToolsCondition(s) != End {
			rt.Fatalf("expected End for a plain answer")
		}
	})
}

func TestRun_NodeErrorHalts(t *testing.T) {
	boom := errors.New("boom")
	var after bool
	g, err := NewBuilder("failing").
		AddNode("a", func(context.Context, *State) (Update, error) {
			return Update{Messages: []types.Message{types.NewAssistantMessage("lost")}}, boom
		}).
		AddNode("b", func(context.Context, *State) (Update, error) { after = true; return Update{}, nil }).
		AddEdge(Start, "a").
		AddEdge("a", "b").
		Build()
	require.NoError(t, err)

	state, err := g.Run(context.Background(), &State{})
	require.ErrorIs(t, err, boom)
	assert.False(t, after)
	assert.Empty(t, state.Messages)
}

func TestRun_ContextCanceled(t *testing.T) {
	var visits []string
	g := agentGraph(t, 100, func(int) types.Message { return types.NewAssistantMessage("x") }, &visits)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Run(ctx, &State{})
	assert.True(t, types.IsErrorCode(err, types.ErrCanceled))
	assert.Empty(t, visits)
}

func TestRun_ListenerAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollectorWith(reg, "test", nil)

	var started, ended []string
	g, err := NewBuilder("single").
		WithMetrics(collector).
		WithListener(ListenerFuncs{
			Start: func(_ context.Context, node string, _ *State) { started = append(started, node) },
			End:   func(_ context.Context, node string, _ *State, err error) { ended = append(ended, node) },
		}).
		AddNode("generate", func(context.Context, *State) (Update, error) {
			return Update{ContextualQuery: "cq", Artifacts: []types.Artifact{{EntityID: "img-1"}}}, nil
		}).
		AddEdge(Start, "generate").
		AddEdge("generate", End).
		Build()
	require.NoError(t, err)

	state, err := g.Run(context.Background(), &State{ContextualQuery: "old"})
	require.NoError(t, err)
	assert.Equal(t, []string{"generate"}, started)
	assert.Equal(t, []string{"generate"}, ended)
	assert.Equal(t, "cq", state.ContextualQuery)
	assert.Len(t, state.Artifacts, 1)
	n, err := testutil.GatherAndCount(reg, "test_graph_steps_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBuilder_Validation(t *testing.T) {
	noop := func(context.Context, *State) (Update, error) { return Update{}, nil }

	_, err := NewBuilder("empty").Build()
	assert.Error(t, err)

	_, err = NewBuilder("no-entry").AddNode("a", noop).Build()
	assert.ErrorContains(t, err, "entry node not set")

	_, err = NewBuilder("bad-edge").AddNode("a", noop).AddEdge(Start, "a").AddEdge("a", "missing").Build()
	assert.ErrorContains(t, err, "missing")

	_, err = NewBuilder("dup").AddNode("a", noop).AddNode("a", noop).AddEdge(Start, "a").Build()
	assert.ErrorContains(t, err, "duplicate")

	_, err = NewBuilder("reserved").AddNode(End, noop).Build()
	assert.Error(t, err)
}

func TestState_Reducers(t *testing.T) {
	s := &State{}
	s.Apply(Update{
		Messages:         []types.Message{types.NewUserMessage("a")},
		PendingToolCalls: []types.ToolCall{{ID: "1"}},
		ContextualQuery:  "q1",
	})
	s.Apply(Update{Messages: []types.Message{types.NewAssistantMessage("b")}})
	assert.Len(t, s.Messages, 2)
	assert.Len(t, s.PendingToolCalls, 1, "nil update keeps tool calls")
	assert.Equal(t, "q1", s.ContextualQuery, "empty query keeps previous")

	s.Apply(Update{PendingToolCalls: []types.ToolCall{}, ContextualQuery: "q2"})
	assert.Empty(t, s.PendingToolCalls)
	assert.Equal(t, "q2", s.ContextualQuery)

	last, ok := s.LastAssistantMessage()
	require.True(t, ok)
	assert.Equal(t, "b", last.Content)
}

func TestAppendReducer_DoesNotAlias(t *testing.T) {
	r := AppendReducer[int]()
	base := make([]int, 1, 4)
	a := r(base, []int{1})
	b := r(base, []int{2})
	assert.Equal(t, []int{0, 1}, a)
	assert.Equal(t, []int{0, 2}, b)
}
