package prompt

import (
	"fmt"
	"strings"

	"github.com/BaSui01/skillflow/types"
)

// PromptInput 传给提示词模块的数据
type PromptInput struct {
	Locale           string
	OriginalQuery    string
	OptimizedQuery   string
	RewrittenQueries []string
	ContextStr       string
}

// Module 技能的提示词模块
type Module interface {
	// BuildSystemPrompt 返回系统提示词
	BuildSystemPrompt(locale string) string
	// BuildContextUserPrompt 返回携带上下文的用户消息
	BuildContextUserPrompt(in PromptInput) string
	// BuildUserPrompt 返回当前查询的用户消息
	BuildUserPrompt(in PromptInput) string
}

// ModuleFuncs 用函数组装 Module，为 nil 的字段回退到 DefaultModule
type ModuleFuncs struct {
	System      func(locale string) string
	ContextUser func(in PromptInput) string
	User        func(in PromptInput) string
}

func (m ModuleFuncs) BuildSystemPrompt(locale string) string {
	if m.System == nil {
		return DefaultModule{}.BuildSystemPrompt(locale)
	}
	return m.System(locale)
}

func (m ModuleFuncs) BuildContextUserPrompt(in PromptInput) string {
	if m.ContextUser == nil {
		return DefaultModule{}.BuildContextUserPrompt(in)
	}
	return m.ContextUser(in)
}

func (m ModuleFuncs) BuildUserPrompt(in PromptInput) string {
	if m.User == nil {
		return DefaultModule{}.BuildUserPrompt(in)
	}
	return m.User(in)
}

// =============================================================================
// 🌐 默认模块
// =============================================================================

// DefaultModule 内置的问答提示词，支持 en 与 zh-CN
type DefaultModule struct{}

type texts struct {
	system       string
	contextIntro string
	original     string
}

var localized = map[string]texts{
	types.DefaultLocale: {
		system: "You are a helpful assistant. Answer the user's question accurately and concisely.\n" +
			"When context items are provided, ground your answer in them and cite them as [index]. " +
			"If the context does not contain the answer, say so before answering from general knowledge.",
		contextIntro: "Here is the context you can use for the following question:",
		original:     "Original question",
	},
	"zh-CN": {
		system: "你是一个乐于助人的助手，请准确、简洁地回答用户的问题。\n" +
			"如果提供了上下文条目，请基于上下文作答，并以 [index] 的形式标注引用。" +
			"上下文中没有答案时，先说明这一点再根据常识回答。",
		contextIntro: "以下是回答接下来的问题时可以参考的上下文：",
		original:     "原始问题",
	},
}

func textsFor(locale string) texts {
	if t, ok := localized[locale]; ok {
		return t
	}
	if strings.HasPrefix(strings.ToLower(locale), "zh") {
		return localized["zh-CN"]
	}
	return localized[types.DefaultLocale]
}

func (DefaultModule) BuildSystemPrompt(locale string) string {
	return textsFor(locale).system
}

func (DefaultModule) BuildContextUserPrompt(in PromptInput) string {
	return fmt.Sprintf("%s\n<context>\n%s\n</context>", textsFor(in.Locale).contextIntro, in.ContextStr)
}

func (DefaultModule) BuildUserPrompt(in PromptInput) string {
	query := in.OptimizedQuery
	if query == "" {
		query = in.OriginalQuery
	}
	if in.OriginalQuery == "" || in.OriginalQuery == query {
		return query
	}
	return fmt.Sprintf("%s\n\n(%s: %s)", query, textsFor(in.Locale).original, in.OriginalQuery)
}
