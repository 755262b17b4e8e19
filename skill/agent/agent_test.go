package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BaSui01/skillflow/config"
	"github.com/BaSui01/skillflow/llm"
	"github.com/BaSui01/skillflow/skill"
	"github.com/BaSui01/skillflow/skill/crawler"
	"github.com/BaSui01/skillflow/skill/event"
	"github.com/BaSui01/skillflow/skill/knowledge"
	"github.com/BaSui01/skillflow/testutil"
	"github.com/BaSui01/skillflow/testutil/fixtures"
	"github.com/BaSui01/skillflow/testutil/mocks"
	"github.com/BaSui01/skillflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// providersFor 分析模型与对话模型使用不同的 mock
func providersFor(chat, analysis llm.Provider) llm.ProviderFactory {
	return llm.ProviderFactoryFunc(func(m llm.ModelInfo) (llm.Provider, error) {
		if m.Name == "mock-analysis" && analysis != nil {
			return analysis, nil
		}
		return chat, nil
	})
}

func toolClients(c *mocks.MockToolClient) skill.ToolClientFactory {
	return func(context.Context) (skill.ToolClient, error) { return c, nil }
}

func invoke(t *testing.T, s *Skill, q string, cfg *skill.RunConfig) (*skill.Output, *event.Recorder, error) {
	t.Helper()
	rec := event.NewRecorder()
	if cfg == nil {
		cfg = &skill.RunConfig{}
	}
	if cfg.Models == nil {
		cfg.Models = fixtures.DefaultModelMap()
	}
	cfg.Emitter = rec
	reg := skill.NewRegistry(nil, 0, nil)
	require.NoError(t, reg.Register(s))
	out, err := reg.Invoke(testutil.TestContext(t), Name, &skill.Input{Query: q}, cfg)
	return out, rec, err
}

func skipAnalysis() *skill.RunConfig {
	return &skill.RunConfig{Runtime: skill.RuntimeFlags{ShouldSkipAnalysis: true}}
}

func TestInvoke_FinalAnswerStreams(t *testing.T) {
	chat := mocks.NewStreamProvider([]string{"Hello", " world"})
	client := mocks.NewMockToolClient()
	s := New(skill.Deps{Providers: providersFor(chat, nil), ToolClients: toolClients(client)})

	out, rec, err := invoke(t, s, "say hi", skipAnalysis())
	require.NoError(t, err)

	assert.Equal(t, "Hello world", out.Answer)
	assert.Equal(t, 1, out.Steps)
	assert.Equal(t, 30, out.Usage.TotalTokens)
	assert.Equal(t, 1, client.CloseCount())

	streams := rec.OfKind(event.KindStream)
	require.Len(t, streams, 2)
	assert.Equal(t, "Hello", streams[0].Content)
	kinds := rec.Kinds()
	assert.Equal(t, event.KindEnd, kinds[len(kinds)-1])
	assert.Empty(t, rec.OfKind(event.KindError))
}

func TestInvoke_ToolLoopThenAnswer(t *testing.T) {
	chat := mocks.NewMockProvider().WithScript(
		fixtures.ToolCallMessage(fixtures.SearchToolCall("call-1", "goroutines")),
		types.NewAssistantMessage("Goroutines are cheap."),
	)
	client := mocks.NewSearchToolClient([]string{"result one"})
	s := New(skill.Deps{Providers: providersFor(chat, nil), ToolClients: toolClients(client)})

	out, rec, err := invoke(t, s, "what are goroutines", skipAnalysis())
	require.NoError(t, err)

	assert.Equal(t, "Goroutines are cheap.", out.Answer)
	assert.Equal(t, 3, out.Steps)
	assert.Equal(t, 1, client.GetCallCount())
	assert.Equal(t, 1, client.CloseCount())

	var toolMsg *types.Message
	for i := range out.Messages {
		if out.Messages[i].Role == types.RoleTool {
			toolMsg = &out.Messages[i]
		}
	}
	require.NotNil(t, toolMsg)
	assert.Equal(t, "call-1", toolMsg.ToolCallID)
	assert.Contains(t, toolMsg.Content, "result one")

	// 第二次模型调用带着工具结果与工具定义
	last := chat.GetLastCall()
	require.NotNil(t, last)
	require.Len(t, last.Request.Tools, 1)
	assert.Equal(t, "search", last.Request.Tools[0].Name)
	assert.NotEmpty(t, rec.OfKind(event.KindLog))
}

func TestInvoke_RecursionLimitIsFatal(t *testing.T) {
	chat := mocks.NewToolCallProvider([]types.ToolCall{fixtures.SearchToolCall("c", "loop")})
	client := mocks.NewSearchToolClient([]string{"again"})
	s := New(skill.Deps{
		Providers:   providersFor(chat, nil),
		ToolClients: toolClients(client),
		Settings:    config.SkillConfig{RecursionLimit: 5},
	})

	_, rec, err := invoke(t, s, "loop forever", skipAnalysis())
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrRecursionLimit))
	assert.Equal(t, 1, client.CloseCount())
	assert.Len(t, rec.OfKind(event.KindError), 1)
	assert.LessOrEqual(t, chat.GetCallCount(), 3)
}

func TestInvoke_ToolClientClosedOnceOnEveryPath(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		fail := rapid.Bool().Draw(rt, "fail")
		toolRounds := rapid.IntRange(0, 3).Draw(rt, "toolRounds")

		script := make([]types.Message, 0, toolRounds+1)
		for i := 0; i < toolRounds; i++ {
			script = append(script, fixtures.ToolCallMessage(fixtures.SearchToolCall("c", "q")))
		}
		script = append(script, types.NewAssistantMessage("final"))
		chat := mocks.NewMockProvider().WithScript(script...)
		switch {
		case fail && toolRounds == 0:
			chat.WithError(errors.New("model unavailable"))
		case fail:
			chat.WithFailAfter(toolRounds)
		}
		client := mocks.NewSearchToolClient([]string{"r"})
		s := New(skill.Deps{Providers: providersFor(chat, nil), ToolClients: toolClients(client)})

		reg := skill.NewRegistry(nil, 0, nil)
		if err := reg.Register(s); err != nil {
			rt.Fatal(err)
		}
		_, err := reg.Invoke(context.Background(), Name, &skill.Input{Query: "q"}, &skill.RunConfig{
			Models:  fixtures.DefaultModelMap(),
			Runtime: skill.RuntimeFlags{ShouldSkipAnalysis: true},
		})
		if fail != (err != nil) {
			rt.Fatalf("fail=%v err=%v", fail, err)
		}
		if n := client.CloseCount(); n != 1 {
			rt.Fatalf("tool client closed %d times", n)
		}
	})
}

func TestInvoke_ToolClientUnavailableDegrades(t *testing.T) {
	chat := mocks.NewSuccessProvider("no tools needed")
	s := New(skill.Deps{
		Providers: providersFor(chat, nil),
		ToolClients: func(context.Context) (skill.ToolClient, error) {
			return nil, errors.New("mcp down")
		},
	})

	out, _, err := invoke(t, s, "hi", skipAnalysis())
	require.NoError(t, err)
	assert.Equal(t, "no tools needed", out.Answer)
	assert.Empty(t, chat.GetLastCall().Request.Tools)
}

func TestInvoke_ContextSourcesInOrder(t *testing.T) {
	analysis := mocks.NewSuccessProvider(`{"optimizedQuery":"how do goroutines work","rewrittenQueries":["goroutine scheduling"],"mentionedEntityIds":["content-1"]}`)
	chat := mocks.NewSuccessProvider("answer")
	kb := knowledge.SearcherFunc(func(_ context.Context, q string, _ knowledge.Options) ([]types.Source, error) {
		return []types.Source{fixtures.KnowledgeSource("kb-"+strings.ReplaceAll(q, " ", "-"), "KB", "kb text for "+q)}, nil
	})
	fetcher := crawler.FetcherFunc(func(_ context.Context, u string) (types.Source, error) {
		return fixtures.URLSource(u, "page "+u), nil
	})

	s := New(skill.Deps{
		Providers: providersFor(chat, analysis),
		Knowledge: kb,
		Crawler:   crawler.New(fetcher, nil, nil),
	})
	bundle := fixtures.SampleContext()
	bundle.URLs = []string{"https://ctx.example.com/a"}

	out, rec, err := invoke(t, s, "see https://query.example.com/b how do they work?", &skill.RunConfig{
		Context: bundle,
		Runtime: skill.DefaultRuntimeFlags(),
	})
	require.NoError(t, err)

	var keys []string
	for _, src := range out.Sources {
		keys = append(keys, src.Key())
	}
	assert.Equal(t, []string{
		"mentioned:content-1",
		"knowledgeBase:kb-how-do-goroutines-work",
		"knowledgeBase:kb-goroutine-scheduling",
		"url:https://ctx.example.com/a",
		"url:https://query.example.com/b",
	}, keys)

	data := rec.OfKind(event.KindStructuredData)
	require.NotEmpty(t, data)
	assert.Equal(t, SourcesKey, data[0].StructuredData.Key)

	req := chat.GetLastCall().Request
	testutil.AssertMessageRoles(t, []types.Role{types.RoleSystem, types.RoleUser, types.RoleUser}, req.Messages)
	assert.Contains(t, req.Messages[1].Content, "context_item")
	assert.Contains(t, req.Messages[2].Content, "how do goroutines work")
}

func TestInvoke_KnowledgeBaseDisabledByConfig(t *testing.T) {
	called := false
	kb := knowledge.SearcherFunc(func(context.Context, string, knowledge.Options) ([]types.Source, error) {
		called = true
		return nil, nil
	})
	s := New(skill.Deps{Providers: providersFor(mocks.NewSuccessProvider("ok"), nil), Knowledge: kb})

	cfg := skipAnalysis()
	cfg.Config = map[string]any{ConfigEnableKnowledgeBase: false}
	_, _, err := invoke(t, s, "q", cfg)
	require.NoError(t, err)
	assert.False(t, called)
}

func TestInvoke_NoBudgetSkipsContext(t *testing.T) {
	called := false
	kb := knowledge.SearcherFunc(func(context.Context, string, knowledge.Options) ([]types.Source, error) {
		called = true
		return nil, nil
	})
	s := New(skill.Deps{Providers: providersFor(mocks.NewSuccessProvider("ok"), nil), Knowledge: kb})

	cfg := skipAnalysis()
	cfg.Models = fixtures.ModelMap(2000, 1000)
	out, rec, err := invoke(t, s, "q", cfg)
	require.NoError(t, err)
	assert.False(t, called)
	assert.Empty(t, out.Sources)
	assert.Empty(t, rec.OfKind(event.KindStructuredData))
}

func TestInvoke_EmptyQuery(t *testing.T) {
	client := mocks.NewMockToolClient()
	s := New(skill.Deps{Providers: providersFor(mocks.NewSuccessProvider("x"), nil), ToolClients: toolClients(client)})

	_, _, err := invoke(t, s, "   ", nil)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
	assert.Equal(t, 0, client.CloseCount())
}

func TestParseTemperature(t *testing.T) {
	assert.Equal(t, 0.0, parseTemperature(""))
	assert.InDelta(t, 0.7, parseTemperature("0.7"), 1e-6)
	assert.Equal(t, 0.0, parseTemperature("9"))
	assert.Equal(t, 0.0, parseTemperature("hot"))
}
