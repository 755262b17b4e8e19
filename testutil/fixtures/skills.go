// Package fixtures 提供技能测试用的样例数据：模型表、上下文包、来源与对话。
package fixtures

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/skillflow/llm"
	"github.com/BaSui01/skillflow/types"
)

// =============================================================================
// 🧠 模型
// =============================================================================

// ModelMap 返回窗口为 contextLimit 的聊天与分析模型表
func ModelMap(contextLimit, maxOutput int) llm.ModelMap {
	chat := llm.ModelInfo{
		Name:         "mock-chat",
		Provider:     "mock",
		ContextLimit: contextLimit,
		MaxOutput:    maxOutput,
		Capabilities: llm.ModelCapabilities{ToolCalling: true},
	}
	analysis := chat
	analysis.Name = "mock-analysis"
	return llm.ModelMap{
		llm.ModelRoleChat:          chat,
		llm.ModelRoleQueryAnalysis: analysis,
	}
}

// DefaultModelMap 128k 窗口
func DefaultModelMap() llm.ModelMap {
	return ModelMap(128000, 4096)
}

// =============================================================================
// 📚 上下文与来源
// =============================================================================

// SampleContext 返回包含每种条目的上下文包
func SampleContext() *types.Context {
	return &types.Context{
		ContentItems: []types.ContextItem{{EntityID: "content-1", Title: "Selected note", Content: "Go channels coordinate goroutines."}},
		Resources:    []types.ContextItem{{EntityID: "resource-1", Title: "Design doc", Content: "The crawler fetches at most five pages at once."}},
		Canvases:     []types.ContextItem{{EntityID: "canvas-1", Title: "Roadmap", Content: "Q3: ship the image skill."}},
		Messages:     []types.ContextItem{{EntityID: "msg-1", Title: "Earlier answer", Content: "Use errgroup for bounded fan-out."}},
	}
}

// URLSource 构造 URL 来源
func URLSource(url, content string) types.Source {
	return types.Source{URL: url, Title: url, PageContent: content, Kind: types.SourceKindURL}
}

// KnowledgeSource 构造知识库来源
func KnowledgeSource(id, title, content string) types.Source {
	return types.Source{EntityID: id, Title: title, PageContent: content, Kind: types.SourceKindKnowledge}
}

// LongText 返回约 n 个单词的文本
func LongText(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("word%d", i)
	}
	return strings.Join(words, " ")
}

// =============================================================================
// 💬 对话与工具
// =============================================================================

// SimpleConversation 返回一问一答的历史
func SimpleConversation() []types.Message {
	return []types.Message{
		types.NewUserMessage("What is a goroutine?"),
		types.NewAssistantMessage("A goroutine is a lightweight thread managed by the Go runtime."),
	}
}

// SearchToolCall 构造 search 工具调用
func SearchToolCall(id, query string) types.ToolCall {
	args, _ := json.Marshal(map[string]any{"query": query})
	return types.ToolCall{ID: id, Name: "search", Arguments: args}
}

// ToolCallMessage 构造携带工具调用的 assistant 消息
func ToolCallMessage(calls ...types.ToolCall) types.Message {
	return types.NewAssistantMessage("").WithToolCalls(calls)
}
