package prompt

import (
	"strings"
	"testing"

	"github.com/BaSui01/skillflow/llm"
	"github.com/BaSui01/skillflow/testutil"
	"github.com/BaSui01/skillflow/testutil/fixtures"
	"github.com/BaSui01/skillflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_OrderWithContext(t *testing.T) {
	b := NewBuilder(nil, nil)
	res, err := b.Build(Input{
		Locale:         "en",
		ChatHistory:    fixtures.SimpleConversation(),
		Messages:       []types.Message{types.NewAssistantMessage("partial")},
		ContextStr:     "<context_item index=\"1\">facts</context_item>",
		OriginalQuery:  "and channels?",
		OptimizedQuery: "How do Go channels work?",
		Model:          fixtures.DefaultModelMap()[llm.ModelRoleChat],
	})
	require.NoError(t, err)
	assert.True(t, res.UsedContext)

	testutil.AssertMessageRoles(t, []types.Role{
		types.RoleSystem, types.RoleUser, types.RoleUser, types.RoleAssistant, types.RoleAssistant, types.RoleUser,
	}, res.Messages)
	assert.Contains(t, res.Messages[1].Content, "facts")
	last := res.Messages[len(res.Messages)-1].Content
	assert.True(t, strings.HasPrefix(last, "How do Go channels work?"))
	assert.Contains(t, last, "and channels?")
	assert.Positive(t, res.PromptTokens)
}

func TestBuild_FallsBackWhenContextDoesNotFit(t *testing.T) {
	b := NewBuilder(nil, nil)
	res, err := b.Build(Input{
		ContextStr:     fixtures.LongText(2000),
		OptimizedQuery: "q",
		Model:          fixtures.ModelMap(1000, 200)[llm.ModelRoleChat],
	})
	require.NoError(t, err)
	assert.False(t, res.UsedContext)
	testutil.AssertMessageRoles(t, []types.Role{types.RoleSystem, types.RoleUser}, res.Messages)
	assert.Equal(t, "q", res.Messages[1].Content)
}

func TestBuild_NoContextUsesPlainBuilder(t *testing.T) {
	res, err := NewBuilder(nil, nil).Build(Input{OriginalQuery: "hi", OptimizedQuery: "hi"})
	require.NoError(t, err)
	assert.False(t, res.UsedContext)
	testutil.AssertMessageRoles(t, []types.Role{types.RoleSystem, types.RoleUser}, res.Messages)
	assert.Equal(t, "hi", res.Messages[1].Content)
}

func TestBuild_EmptyQuery(t *testing.T) {
	_, err := NewBuilder(nil, nil).Build(Input{})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestBuild_CustomModule(t *testing.T) {
	module := ModuleFuncs{
		System: func(string) string { return "custom system" },
		User:   func(in PromptInput) string { return "Q: " + in.OptimizedQuery },
	}
	res, err := NewBuilder(nil, nil).Build(Input{Module: module, OptimizedQuery: "x", ContextStr: "ctx"})
	require.NoError(t, err)
	require.Len(t, res.Messages, 3)
	assert.Equal(t, "custom system", res.Messages[0].Content)
	assert.Contains(t, res.Messages[1].Content, "ctx")
	assert.Equal(t, "Q: x", res.Messages[2].Content)
}

func TestDefaultModule_Localized(t *testing.T) {
	m := DefaultModule{}
	assert.Contains(t, m.BuildSystemPrompt("zh-CN"), "助手")
	assert.Contains(t, m.BuildSystemPrompt("zh-TW"), "助手")
	assert.Contains(t, m.BuildSystemPrompt("fr"), "helpful assistant")
	assert.Contains(t, m.BuildContextUserPrompt(PromptInput{Locale: "zh-CN", ContextStr: "c"}), "上下文")
	assert.Equal(t, "q", m.BuildUserPrompt(PromptInput{OriginalQuery: "q"}))
}
