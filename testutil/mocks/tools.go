package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/BaSui01/skillflow/llm/tools"
	"go.uber.org/zap"
)

// --- MockToolClient 结构 ---

// MockToolClient 模拟一次调用持有的外部工具客户端，记录工具调用与 Close 次数。
type MockToolClient struct {
	mu         sync.Mutex
	registry   *tools.DefaultRegistry
	calls      []ToolCall
	closeCount int
	closeErr   error
}

// ToolCall 记录单次工具调用
type ToolCall struct {
	Name   string
	Args   json.RawMessage
	Result json.RawMessage
	Error  error
}

// NewMockToolClient 创建空工具客户端
func NewMockToolClient() *MockToolClient {
	return &MockToolClient{registry: tools.NewDefaultRegistry(zap.NewNop())}
}

// WithTool 注册工具，fn 返回的结果与错误都会被记录。
func (m *MockToolClient) WithTool(name, description string, fn tools.ToolFunc) *MockToolClient {
	wrapped := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		res, err := fn(ctx, args)
		m.mu.Lock()
		m.calls = append(m.calls, ToolCall{Name: name, Args: args, Result: res, Error: err})
		m.mu.Unlock()
		return res, err
	}
	meta := tools.ToolMetadata{}
	meta.Schema.Name = name
	meta.Schema.Description = description
	_ = m.registry.Register(name, wrapped, meta)
	return m
}

// WithToolResult 注册返回固定 JSON 结果的工具
func (m *MockToolClient) WithToolResult(name string, result any) *MockToolClient {
	raw, _ := json.Marshal(result)
	return m.WithTool(name, "mock tool "+name, func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return raw, nil
	})
}

// WithToolError 注册总是失败的工具
func (m *MockToolClient) WithToolError(name string, err error) *MockToolClient {
	return m.WithTool(name, "failing tool "+name, func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return nil, err
	})
}

// WithCloseError 设置 Close 返回的错误
func (m *MockToolClient) WithCloseError(err error) *MockToolClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeErr = err
	return m
}

// Registry 返回工具注册表
func (m *MockToolClient) Registry() tools.Registry {
	return m.registry
}

// Close 记录关闭次数
func (m *MockToolClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCount++
	return m.closeErr
}

// --- 查询方法 ---

// CloseCount 返回 Close 被调用的次数
func (m *MockToolClient) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCount
}

// GetCalls 获取所有调用记录
func (m *MockToolClient) GetCalls() []ToolCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ToolCall{}, m.calls...)
}

// GetCallCount 获取调用次数
func (m *MockToolClient) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// ErrMockTool 预设工具错误
var ErrMockTool = errors.New("mock tool failure")

// NewSearchToolClient 创建带 search 工具的客户端
func NewSearchToolClient(results []string) *MockToolClient {
	return NewMockToolClient().WithToolResult("search", map[string]any{"results": results})
}
