package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
	"go.uber.org/zap"

	"github.com/BaSui01/skillflow/types"
)

// ToolFunc defines the tool function signature.
type ToolFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// ToolMetadata describes tool metadata.
type ToolMetadata struct {
	Schema    types.ToolSchema // Tool JSON Schema
	Timeout   time.Duration    // Execution timeout (default 30s)
	RateLimit *RateLimitConfig // Rate limit config (optional)
}

// RateLimitConfig defines rate limit configuration.
type RateLimitConfig struct {
	MaxCalls int           // Maximum calls
	Window   time.Duration // Time window
}

// Registry defines tool registry interface.
type Registry interface {
	Register(name string, fn ToolFunc, metadata ToolMetadata) error
	Unregister(name string) error
	Get(name string) (ToolFunc, ToolMetadata, error)
	List() []types.ToolSchema
	Has(name string) bool
}

// Executor defines tool executor interface.
type Executor interface {
	Execute(ctx context.Context, calls []types.ToolCall) []types.ToolResult
	ExecuteOne(ctx context.Context, call types.ToolCall) types.ToolResult
}

const defaultToolTimeout = 30 * time.Second

// ====== 实现：DefaultRegistry ======

type DefaultRegistry struct {
	mu       sync.RWMutex
	tools    map[string]ToolFunc
	metadata map[string]ToolMetadata
	limiters map[string]*rate.Limiter // 工具级别的速率限制器
	logger   *zap.Logger
}

// NewDefaultRegistry 创建默认的工具注册中心。
func NewDefaultRegistry(logger *zap.Logger) *DefaultRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultRegistry{
		tools:    make(map[string]ToolFunc),
		metadata: make(map[string]ToolMetadata),
		limiters: make(map[string]*rate.Limiter),
		logger:   logger.With(zap.String("component", "tool_registry")),
	}
}

func (r *DefaultRegistry) Register(name string, fn ToolFunc, metadata ToolMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	if metadata.Schema.Name == "" {
		metadata.Schema.Name = name
	}
	if metadata.Schema.Name != name {
		return fmt.Errorf("tool name mismatch: schema.Name=%s, register name=%s", metadata.Schema.Name, name)
	}
	if len(metadata.Schema.Parameters) == 0 {
		metadata.Schema.Parameters = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	if metadata.Timeout == 0 {
		metadata.Timeout = defaultToolTimeout
	}

	r.tools[name] = fn
	r.metadata[name] = metadata
	if rl := metadata.RateLimit; rl != nil && rl.MaxCalls > 0 && rl.Window > 0 {
		every := rl.Window / time.Duration(rl.MaxCalls)
		r.limiters[name] = rate.NewLimiter(rate.Every(every), rl.MaxCalls)
	}

	r.logger.Debug("tool registered", zap.String("name", name), zap.Duration("timeout", metadata.Timeout))
	return nil
}

func (r *DefaultRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return types.NewError(types.ErrToolNotFound, fmt.Sprintf("tool %s not found", name))
	}
	delete(r.tools, name)
	delete(r.metadata, name)
	delete(r.limiters, name)
	return nil
}

func (r *DefaultRegistry) Get(name string) (ToolFunc, ToolMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.tools[name]
	if !ok {
		return nil, ToolMetadata{}, types.NewError(types.ErrToolNotFound, fmt.Sprintf("tool %s not found", name))
	}
	return fn, r.metadata[name], nil
}

// List returns schemas sorted by name so requests are stable across calls.
func (r *DefaultRegistry) List() []types.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]types.ToolSchema, 0, len(r.metadata))
	for _, meta := range r.metadata {
		schemas = append(schemas, meta.Schema)
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

func (r *DefaultRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// allow 检查是否触发速率限制
func (r *DefaultRegistry) allow(name string) bool {
	r.mu.RLock()
	limiter, ok := r.limiters[name]
	r.mu.RUnlock()
	return !ok || limiter.Allow()
}

// ====== 实现：DefaultExecutor ======

type DefaultExecutor struct {
	registry    Registry
	logger      *zap.Logger
	parallelism int64
}

// NewDefaultExecutor 创建默认的工具执行器。parallelism <= 0 表示不限制并发。
func NewDefaultExecutor(registry Registry, parallelism int, logger *zap.Logger) *DefaultExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultExecutor{
		registry:    registry,
		logger:      logger.With(zap.String("component", "tool_executor")),
		parallelism: int64(parallelism),
	}
}

// Execute runs calls concurrently and returns results in call order.
func (e *DefaultExecutor) Execute(ctx context.Context, calls []types.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))
	limit := e.parallelism
	if limit <= 0 || limit > int64(len(calls)) {
		limit = int64(len(calls))
	}
	if limit == 0 {
		return results
	}
	sem := semaphore.NewWeighted(limit)

	var wg sync.WaitGroup
	for i, call := range calls {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = types.ToolResult{ToolCallID: call.ID, Name: call.Name, Error: "canceled: " + err.Error()}
			continue
		}
		wg.Add(1)
		go func(idx int, c types.ToolCall) {
			defer wg.Done()
			defer sem.Release(1)
			results[idx] = e.ExecuteOne(ctx, c)
		}(i, call)
	}
	wg.Wait()
	return results
}

func (e *DefaultExecutor) ExecuteOne(ctx context.Context, call types.ToolCall) types.ToolResult {
	start := time.Now()
	result := types.ToolResult{ToolCallID: call.ID, Name: call.Name}
	fail := func(msg string, fields ...zap.Field) types.ToolResult {
		result.Error = msg
		result.Duration = time.Since(start)
		e.logger.Warn("tool call failed", append(fields, zap.String("name", call.Name), zap.String("error", msg))...)
		return result
	}

	// 1. 获取工具函数和元数据
	fn, meta, err := e.registry.Get(call.Name)
	if err != nil {
		return fail(fmt.Sprintf("tool not found: %s", call.Name))
	}

	// 2. 检查速率限制
	if reg, ok := e.registry.(*DefaultRegistry); ok && !reg.allow(call.Name) {
		return fail("rate limit exceeded")
	}

	// 3. 参数校验
	if len(call.Arguments) > 0 && !json.Valid(call.Arguments) {
		return fail("invalid arguments: not valid JSON")
	}

	// 4. 执行工具（带超时控制）
	execCtx, cancel := context.WithTimeout(ctx, meta.Timeout)
	defer cancel()

	type outcome struct {
		res json.RawMessage
		err error
	}
	// 带缓冲，超时后工具 goroutine 仍能退出
	done := make(chan outcome, 1)
	go func() {
		res, err := fn(execCtx, call.Arguments)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return fail(o.err.Error())
		}
		result.Result = o.res
		result.Duration = time.Since(start)
		e.logger.Debug("tool executed", zap.String("name", call.Name), zap.Duration("duration", result.Duration))
		return result
	case <-execCtx.Done():
		return fail(fmt.Sprintf("execution timeout after %s", meta.Timeout), zap.Duration("timeout", meta.Timeout))
	}
}
