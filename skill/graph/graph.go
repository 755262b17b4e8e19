package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/skillflow/internal/metrics"
	"github.com/BaSui01/skillflow/internal/telemetry"
	"github.com/BaSui01/skillflow/types"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// 保留节点名
const (
	Start = "__start__"
	End   = "__end__"
)

// DefaultRecursionLimit 默认最大步数
const DefaultRecursionLimit = 100

// NodeFunc 节点处理函数。返回错误即终止整张图。
type NodeFunc func(ctx context.Context, s *State) (Update, error)

// EdgeFunc 纯条件边：根据状态返回下一节点名或 End。
type EdgeFunc func(s *State) string

// Listener 节点钩子。OnNodeEnd 的 err 非 nil 表示节点失败。
type Listener interface {
	OnNodeStart(ctx context.Context, node string, s *State)
	OnNodeEnd(ctx context.Context, node string, s *State, err error)
}

// ListenerFuncs 以可选函数实现 Listener
type ListenerFuncs struct {
	Start func(ctx context.Context, node string, s *State)
	End   func(ctx context.Context, node string, s *State, err error)
}

func (l ListenerFuncs) OnNodeStart(ctx context.Context, node string, s *State) {
	if l.Start != nil {
		l.Start(ctx, node, s)
	}
}

func (l ListenerFuncs) OnNodeEnd(ctx context.Context, node string, s *State, err error) {
	if l.End != nil {
		l.End(ctx, node, s, err)
	}
}

// Graph 显式有限状态机：节点名到处理函数的映射，加静态边与条件边。
// Graph 构建后只读，可被多个调用并发使用；每次 Run 持有独立的 State。
type Graph struct {
	name           string
	nodes          map[string]NodeFunc
	edges          map[string]string
	conditional    map[string]EdgeFunc
	entry          string
	recursionLimit int
	listeners      []Listener
	logger         *zap.Logger
	metrics        *metrics.Collector
}

// Name 返回图名
func (g *Graph) Name() string { return g.name }

// RecursionLimit 返回最大步数
func (g *Graph) RecursionLimit() int { return g.recursionLimit }

// Run 从入口节点开始顺序执行，直到边指向 End。
// 每执行一个节点计一步；第 RecursionLimit+1 步之前返回 RECURSION_LIMIT 错误。
func (g *Graph) Run(ctx context.Context, state *State) (*State, error) {
	if state == nil {
		state = &State{}
	}
	tracer := telemetry.Tracer()
	current := g.entry

	for current != End {
		if err := ctx.Err(); err != nil {
			return state, types.NewError(types.ErrCanceled, "graph run canceled").WithCause(err)
		}
		if state.Steps >= g.recursionLimit {
			g.logger.Warn("recursion limit reached",
				zap.Int("limit", g.recursionLimit),
				zap.String("next_node", current),
			)
			return state, types.Errorf(types.ErrRecursionLimit,
				"graph %s exceeded recursion limit of %d steps", g.name, g.recursionLimit)
		}

		fn, ok := g.nodes[current]
		if !ok {
			return state, types.Errorf(types.ErrInternalError, "graph %s routed to unknown node %q", g.name, current)
		}
		state.Steps++

		if err := g.runNode(ctx, tracer, current, fn, state); err != nil {
			return state, err
		}

		next, err := g.next(current, state)
		if err != nil {
			return state, err
		}
		g.logger.Debug("graph transition", zap.String("from", current), zap.String("to", next), zap.Int("step", state.Steps))
		current = next
	}
	return state, nil
}

func (g *Graph) runNode(ctx context.Context, tracer trace.Tracer, node string, fn NodeFunc, state *State) error {
	ctx, span := tracer.Start(ctx, "skill.node."+node, trace.WithAttributes(
		attribute.String("skill.graph", g.name),
		attribute.String("skill.node", node),
		attribute.Int("skill.step", state.Steps),
	))
	defer span.End()

	for _, l := range g.listeners {
		l.OnNodeStart(ctx, node, state)
	}
	start := time.Now()
	update, err := fn(ctx, state)
	if err == nil {
		state.Apply(update)
	}
	for _, l := range g.listeners {
		l.OnNodeEnd(ctx, node, state, err)
	}

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Error("node failed", zap.String("node", node), zap.Error(err))
	} else {
		g.logger.Debug("node completed", zap.String("node", node), zap.Duration("duration", time.Since(start)))
	}
	g.metrics.RecordGraphStep(g.name, node, status)

	if err != nil {
		return fmt.Errorf("node %s: %w", node, err)
	}
	return nil
}

func (g *Graph) next(node string, state *State) (string, error) {
	if fn, ok := g.conditional[node]; ok {
		to := fn(state)
		if to == End {
			return End, nil
		}
		if _, ok := g.nodes[to]; !ok {
			return "", types.Errorf(types.ErrInternalError, "conditional edge from %s returned unknown node %q", node, to)
		}
		return to, nil
	}
	if to, ok := g.edges[node]; ok {
		return to, nil
	}
	// 没有出边的节点视为终点
	return End, nil
}

// ToolsNode 是 ToolsCondition 路由到的节点名。
const ToolsNode = "tools"

// ToolsCondition 最后一条 assistant 消息带工具调用时路由到 tools，否则结束。
func ToolsCondition(s *State) string {
	last, ok := s.LastMessage()
	if ok && last.HasToolCalls() {
		return ToolsNode
	}
	return End
}
