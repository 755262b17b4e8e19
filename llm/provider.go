package llm

import (
	"context"
	"time"

	"github.com/BaSui01/skillflow/types"
)

// ChatRequest 一次模型调用请求。Messages 按顺序提交，Tools 为可选的绑定工具。
type ChatRequest struct {
	TraceID     string             `json:"trace_id,omitempty"`
	Model       string             `json:"model"`
	Messages    []types.Message    `json:"messages"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Temperature float32            `json:"temperature,omitempty"`
	Stop        []string           `json:"stop,omitempty"`
	Tools       []types.ToolSchema `json:"tools,omitempty"`
	ToolChoice  string             `json:"tool_choice,omitempty"` // auto/none/<tool name>
	Timeout     time.Duration      `json:"timeout,omitempty"`
	Metadata    map[string]string  `json:"metadata,omitempty"`
}

// ChatChoice 单个候选结果
type ChatChoice struct {
	Index        int           `json:"index"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Message      types.Message `json:"message"`
}

// ChatResponse 模型返回：最终回答，或一组工具调用请求。
type ChatResponse struct {
	ID        string           `json:"id,omitempty"`
	Provider  string           `json:"provider,omitempty"`
	Model     string           `json:"model"`
	Choices   []ChatChoice     `json:"choices"`
	Usage     types.TokenUsage `json:"usage,omitempty"`
	CreatedAt time.Time        `json:"created_at,omitempty"`
}

// FirstMessage returns the message of the first choice, or an empty assistant message.
func (r *ChatResponse) FirstMessage() types.Message {
	if r == nil || len(r.Choices) == 0 {
		return types.Message{Role: types.RoleAssistant}
	}
	msg := r.Choices[0].Message
	if msg.Role == "" {
		msg.Role = types.RoleAssistant
	}
	return msg
}

// StreamChunk 流式增量。Delta.ToolCalls 中的 Arguments 为原始参数片段，需要累积后才是合法 JSON。
type StreamChunk struct {
	ID           string            `json:"id,omitempty"`
	Provider     string            `json:"provider,omitempty"`
	Model        string            `json:"model,omitempty"`
	Index        int               `json:"index,omitempty"`
	Delta        types.Message     `json:"delta"`
	FinishReason string            `json:"finish_reason,omitempty"`
	Usage        *types.TokenUsage `json:"usage,omitempty"` // 最终 chunk 可带 usage
	Err          *types.Error      `json:"error,omitempty"`
}

// Provider 定义了统一的模型调用接口。
// 工具调用通过 ChatRequest.Tools 传递，模型在响应中返回 ToolCalls，
// 具体的工具执行由独立的 tools.Executor 负责。
type Provider interface {
	// Completion 发起同步聊天请求，返回完整响应
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream 发起流式聊天请求，返回增量响应通道
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)

	// Name 返回 Provider 的唯一标识
	Name() string

	// SupportsNativeFunctionCalling 返回是否支持原生 Function Calling
	SupportsNativeFunctionCalling() bool
}
