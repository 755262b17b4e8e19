// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持固定响应、按脚本逐次返回、流式输出与错误注入场景。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/skillflow/llm"
	"github.com/BaSui01/skillflow/types"
)

// --- MockProvider 结构 ---

// MockProvider 是 llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.RWMutex

	// 响应配置
	response     string
	script       []types.Message
	streamChunks []string
	toolCalls    []types.ToolCall
	err          error

	// Token 使用统计
	promptTokens     int
	completionTokens int

	// 调用记录
	calls          []MockProviderCall
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
	streamFunc     func(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error)

	// 行为控制
	delay     time.Duration
	failAfter int
	callCount int
	native    bool
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request  *llm.ChatRequest
	Response *llm.ChatResponse
	Error    error
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		response:         "Mock response",
		promptTokens:     10,
		completionTokens: 20,
		native:           true,
	}
}

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithScript 按顺序返回给定消息，脚本耗尽后重复最后一条。
func (m *MockProvider) WithScript(msgs ...types.Message) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = msgs
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithStreamChunks 设置流式响应块
func (m *MockProvider) WithStreamChunks(chunks []string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamChunks = chunks
	return m
}

// WithToolCalls 设置工具调用响应
func (m *MockProvider) WithToolCalls(toolCalls []types.ToolCall) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolCalls = toolCalls
	return m
}

// WithTokenUsage 设置 Token 使用量
func (m *MockProvider) WithTokenUsage(prompt, completion int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens = prompt
	m.completionTokens = completion
	return m
}

// WithDelay 设置响应延迟
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 设置在第 N 次调用后失败
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithNativeFunctionCalling 设置是否声明原生函数调用能力
func (m *MockProvider) WithNativeFunctionCalling(ok bool) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.native = ok
	return m
}

// WithCompletionFunc 设置自定义 Completion 函数
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// WithStreamFunc 设置自定义 Stream 函数
func (m *MockProvider) WithStreamFunc(fn func(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamFunc = fn
	return m
}

// --- Provider 接口实现 ---

// Name 返回 Provider 名称
func (m *MockProvider) Name() string {
	return "mock"
}

// SupportsNativeFunctionCalling 返回是否支持原生函数调用
func (m *MockProvider) SupportsNativeFunctionCalling() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.native
}

// nextMessage 在持锁状态下计算本次调用应返回的消息
func (m *MockProvider) nextMessage() (types.Message, error) {
	m.callCount++
	if m.failAfter > 0 && m.callCount > m.failAfter {
		return types.Message{}, errors.New("mock provider: configured to fail after N calls")
	}
	if m.err != nil {
		return types.Message{}, m.err
	}
	if len(m.script) > 0 {
		idx := min(m.callCount-1, len(m.script)-1)
		msg := m.script[idx]
		if msg.Role == "" {
			msg.Role = types.RoleAssistant
		}
		return msg, nil
	}
	return types.Message{Role: types.RoleAssistant, Content: m.response, ToolCalls: m.toolCalls}, nil
}

func (m *MockProvider) sleep(ctx context.Context) error {
	if m.delay <= 0 {
		return nil
	}
	select {
	case <-time.After(m.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Completion 生成响应
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fn := m.completionFunc; fn != nil {
		m.callCount++
		resp, err := fn(ctx, req)
		m.calls = append(m.calls, MockProviderCall{Request: req, Response: resp, Error: err})
		return resp, err
	}

	msg, err := m.nextMessage()
	if err == nil {
		err = m.sleep(ctx)
	}
	if err != nil {
		m.calls = append(m.calls, MockProviderCall{Request: req, Error: err})
		return nil, err
	}

	finish := "stop"
	if len(msg.ToolCalls) > 0 {
		finish = "tool_calls"
	}
	resp := &llm.ChatResponse{
		ID:       "mock-response-id",
		Provider: "mock",
		Model:    req.Model,
		Choices:  []llm.ChatChoice{{Index: 0, FinishReason: finish, Message: msg}},
		Usage: types.TokenUsage{
			PromptTokens:     m.promptTokens,
			CompletionTokens: m.completionTokens,
			TotalTokens:      m.promptTokens + m.completionTokens,
		},
		CreatedAt: time.Now(),
	}
	m.calls = append(m.calls, MockProviderCall{Request: req, Response: resp})
	return resp, nil
}

// Stream 流式生成响应。内容按 streamChunks 切分（未设置时整段发送），工具调用放在最后一块。
func (m *MockProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fn := m.streamFunc; fn != nil {
		m.callCount++
		m.calls = append(m.calls, MockProviderCall{Request: req})
		return fn(ctx, req)
	}

	msg, err := m.nextMessage()
	if err != nil {
		m.calls = append(m.calls, MockProviderCall{Request: req, Error: err})
		return nil, err
	}
	m.calls = append(m.calls, MockProviderCall{Request: req})

	pieces := m.streamChunks
	if len(m.script) > 0 || len(pieces) == 0 {
		pieces = []string{msg.Content}
	}
	usage := &types.TokenUsage{
		PromptTokens:     m.promptTokens,
		CompletionTokens: m.completionTokens,
		TotalTokens:      m.promptTokens + m.completionTokens,
	}
	delay := m.delay

	ch := make(chan llm.StreamChunk, len(pieces)+1)
	go func() {
		defer close(ch)
		for i, piece := range pieces {
			chunk := llm.StreamChunk{
				ID:       "mock-chunk-id",
				Provider: "mock",
				Model:    req.Model,
				Index:    i,
				Delta:    types.Message{Role: types.RoleAssistant, Content: piece},
			}
			if i == len(pieces)-1 {
				chunk.Delta.ToolCalls = msg.ToolCalls
				chunk.FinishReason = "stop"
				if len(msg.ToolCalls) > 0 {
					chunk.FinishReason = "tool_calls"
				}
				chunk.Usage = usage
			}
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case ch <- chunk:
			}
		}
	}()
	return ch, nil
}

// --- 查询方法 ---

// GetCalls 获取所有调用记录
func (m *MockProvider) GetCalls() []MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockProviderCall{}, m.calls...)
}

// GetCallCount 获取调用次数
func (m *MockProvider) GetCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount
}

// GetLastCall 获取最后一次调用
func (m *MockProvider) GetLastCall() *MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.calls) == 0 {
		return nil
	}
	call := m.calls[len(m.calls)-1]
	return &call
}

// Reset 重置所有状态
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.callCount = 0
	m.err = nil
}

// --- 预设 Provider 工厂 ---

// Factory 对任意模型返回同一个 Provider
func Factory(p llm.Provider) llm.ProviderFactory {
	return llm.ProviderFactoryFunc(func(llm.ModelInfo) (llm.Provider, error) { return p, nil })
}

// NewSuccessProvider 创建总是成功的 Provider
func NewSuccessProvider(response string) *MockProvider {
	return NewMockProvider().WithResponse(response)
}

// NewErrorProvider 创建总是失败的 Provider
func NewErrorProvider(err error) *MockProvider {
	return NewMockProvider().WithError(err)
}

// NewToolCallProvider 创建总是返回工具调用的 Provider
func NewToolCallProvider(toolCalls []types.ToolCall) *MockProvider {
	return NewMockProvider().WithResponse("").WithToolCalls(toolCalls)
}

// NewStreamProvider 创建流式响应的 Provider
func NewStreamProvider(chunks []string) *MockProvider {
	return NewMockProvider().WithStreamChunks(chunks)
}
