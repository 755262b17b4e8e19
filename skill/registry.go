package skill

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/skillflow/internal/metrics"
	"github.com/BaSui01/skillflow/skill/event"
	"github.com/BaSui01/skillflow/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Descriptor 技能的对外描述
type Descriptor struct {
	Name         string             `json:"name"`
	Description  string             `json:"description"`
	ConfigSchema types.ConfigSchema `json:"configSchema"`
}

// Registry 管理技能注册与调用
type Registry struct {
	mu      sync.RWMutex
	skills  map[string]Skill
	metrics *metrics.Collector
	timeout time.Duration
	logger  *zap.Logger
}

// NewRegistry 创建技能注册表。timeout > 0 时为每次调用设置整体超时。
func NewRegistry(collector *metrics.Collector, timeout time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		skills:  make(map[string]Skill),
		metrics: collector,
		timeout: timeout,
		logger:  logger.With(zap.String("component", "skill_registry")),
	}
}

// Register 注册技能，重名返回错误
func (r *Registry) Register(s Skill) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if name == "" {
		return fmt.Errorf("skill name cannot be empty")
	}
	if _, exists := r.skills[name]; exists {
		return fmt.Errorf("skill %q already registered", name)
	}
	r.skills[name] = s
	r.logger.Info("skill registered", zap.String("skill", name))
	return nil
}

// Get 按名字查找技能
func (r *Registry) Get(name string) (Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.skills[name]
	if !ok {
		return nil, types.Errorf(types.ErrSkillNotFound, "skill %q not found", name).WithHTTPStatus(404)
	}
	return s, nil
}

// List 按名字排序返回全部技能描述
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.skills))
	for _, s := range r.skills {
		out = append(out, Descriptor{Name: s.Name(), Description: s.Description(), ConfigSchema: s.ConfigSchema()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke 解析配置、设置运行 ID 与技能名后执行技能。
// 技能返回的错误会作为 error 事件发出；无论成功与否最后都发出 end 事件。
func (r *Registry) Invoke(ctx context.Context, name string, in *Input, cfg *RunConfig) (*Output, error) {
	s, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if in == nil {
		in = &Input{}
	}
	run := RunConfig{}
	if cfg != nil {
		run = *cfg
	}
	if run.Emitter == nil {
		run.Emitter = event.Nop
	}
	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}

	ctx = types.WithRunID(ctx, run.RunID)
	ctx = types.WithSkillName(ctx, name)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	logger := r.logger.With(zap.String("skill", name), zap.String("run_id", run.RunID))

	// 超时或取消后仍要送达 error 与 end 事件
	emitCtx := context.WithoutCancel(ctx)
	start := time.Now()
	defer event.EmitEnd(emitCtx, run.Emitter)

	resolved, err := s.ConfigSchema().Resolve(run.Config)
	if err != nil {
		r.metrics.RecordSkillInvocation(name, "invalid", time.Since(start))
		event.EmitError(emitCtx, run.Emitter, "", err)
		return nil, err
	}
	run.Resolved = resolved

	out, err := s.Invoke(ctx, in, &run)
	duration := time.Since(start)
	if err != nil {
		r.metrics.RecordSkillInvocation(name, "error", duration)
		logger.Error("skill invocation failed", zap.Error(err), zap.Duration("duration", duration))
		event.EmitError(emitCtx, run.Emitter, "", err)
		return nil, err
	}

	if out == nil {
		out = &Output{}
	}
	out.Skill = name
	out.RunID = run.RunID
	r.metrics.RecordSkillInvocation(name, "success", duration)
	logger.Info("skill invocation finished",
		zap.Duration("duration", duration),
		zap.Int("steps", out.Steps),
		zap.Int("total_tokens", out.Usage.TotalTokens),
	)
	return out, nil
}
