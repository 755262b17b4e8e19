package graph

import (
	"errors"
	"fmt"

	"github.com/BaSui01/skillflow/internal/metrics"
	"go.uber.org/zap"
)

// Builder 以链式 API 构造 Graph，错误在 Build 时统一返回。
type Builder struct {
	g    *Graph
	errs []error
}

// NewBuilder 创建构造器。默认 RecursionLimit 为 DefaultRecursionLimit。
func NewBuilder(name string) *Builder {
	return &Builder{g: &Graph{
		name:           name,
		nodes:          make(map[string]NodeFunc),
		edges:          make(map[string]string),
		conditional:    make(map[string]EdgeFunc),
		recursionLimit: DefaultRecursionLimit,
		logger:         zap.NewNop(),
	}}
}

// AddNode 注册节点
func (b *Builder) AddNode(name string, fn NodeFunc) *Builder {
	switch {
	case name == "" || name == Start || name == End:
		b.errs = append(b.errs, fmt.Errorf("invalid node name %q", name))
	case fn == nil:
		b.errs = append(b.errs, fmt.Errorf("node %s has nil handler", name))
	default:
		if _, dup := b.g.nodes[name]; dup {
			b.errs = append(b.errs, fmt.Errorf("duplicate node %s", name))
		}
		b.g.nodes[name] = fn
	}
	return b
}

// AddEdge 添加静态边。from 为 Start 时设置入口节点。
func (b *Builder) AddEdge(from, to string) *Builder {
	if from == Start {
		b.g.entry = to
		return b
	}
	if _, ok := b.g.conditional[from]; ok {
		b.errs = append(b.errs, fmt.Errorf("node %s already has a conditional edge", from))
	}
	b.g.edges[from] = to
	return b
}

// AddConditionalEdge 添加条件边，fn 必须是纯函数并返回目标节点名或 End。
func (b *Builder) AddConditionalEdge(from string, fn EdgeFunc) *Builder {
	if fn == nil {
		b.errs = append(b.errs, fmt.Errorf("conditional edge from %s is nil", from))
		return b
	}
	if _, ok := b.g.edges[from]; ok {
		b.errs = append(b.errs, fmt.Errorf("node %s already has a static edge", from))
	}
	b.g.conditional[from] = fn
	return b
}

// WithRecursionLimit 设置最大步数，<= 0 时使用默认值。
func (b *Builder) WithRecursionLimit(limit int) *Builder {
	if limit <= 0 {
		limit = DefaultRecursionLimit
	}
	b.g.recursionLimit = limit
	return b
}

// WithListener 注册节点钩子
func (b *Builder) WithListener(l Listener) *Builder {
	if l != nil {
		b.g.listeners = append(b.g.listeners, l)
	}
	return b
}

// WithLogger sets a custom logger
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	if logger != nil {
		b.g.logger = logger
	}
	return b
}

// WithMetrics 记录每个节点步的 prometheus 计数
func (b *Builder) WithMetrics(c *metrics.Collector) *Builder {
	b.g.metrics = c
	return b
}

// Build 校验节点与边并返回 Graph。
func (b *Builder) Build() (*Graph, error) {
	errs := append([]error(nil), b.errs...)
	g := b.g
	if len(g.nodes) == 0 {
		errs = append(errs, errors.New("graph has no nodes"))
	}
	if g.entry == "" {
		errs = append(errs, errors.New("entry node not set"))
	} else if _, ok := g.nodes[g.entry]; !ok {
		errs = append(errs, fmt.Errorf("entry node does not exist: %s", g.entry))
	}
	for from, to := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("edge references non-existent source node: %s", from))
		}
		if _, ok := g.nodes[to]; !ok && to != End {
			errs = append(errs, fmt.Errorf("edge references non-existent target node: %s", to))
		}
	}
	for from := range g.conditional {
		if _, ok := g.nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("conditional edge references non-existent source node: %s", from))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("graph %s validation failed: %w", g.name, err)
	}
	g.logger = g.logger.With(zap.String("component", "skill_graph"), zap.String("graph", g.name))
	return g, nil
}
