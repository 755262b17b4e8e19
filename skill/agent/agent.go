package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/skillflow/llm"
	"github.com/BaSui01/skillflow/llm/tools"
	"github.com/BaSui01/skillflow/skill"
	"github.com/BaSui01/skillflow/skill/contextprep"
	"github.com/BaSui01/skillflow/skill/crawler"
	"github.com/BaSui01/skillflow/skill/event"
	"github.com/BaSui01/skillflow/skill/graph"
	"github.com/BaSui01/skillflow/skill/prompt"
	"github.com/BaSui01/skillflow/skill/query"
	"github.com/BaSui01/skillflow/types"
	"go.uber.org/zap"
)

// Name 技能名
const Name = "commonQnA"

// 配置项
const (
	ConfigEnableKnowledgeBase = "enableKnowledgeBaseSearch"
	ConfigTemperature         = "temperature"
)

// 图节点
const (
	NodeLLM   = "llm"
	NodeTools = graph.ToolsNode
)

// SourcesKey 来源列表 structuredData 的 key
const SourcesKey = "sources"

// Skill 通用问答：查询分析 → URL 抓取 → 上下文准备 → 消息组装 → llm ⇄ tools 循环
type Skill struct {
	deps      skill.Deps
	processor *query.Processor
	preparer  *contextprep.Preparer
	builder   *prompt.Builder
	module    prompt.Module
	logger    *zap.Logger
}

// Option 可选配置
type Option func(*Skill)

// WithPromptModule 替换默认提示词模块
func WithPromptModule(m prompt.Module) Option {
	return func(s *Skill) { s.module = m }
}

// New 创建问答技能
func New(deps skill.Deps, opts ...Option) *Skill {
	deps = deps.WithDefaults()
	s := &Skill{
		deps:      deps,
		processor: query.NewProcessor(deps.Providers, deps.Tokenizer, deps.Logger),
		preparer:  contextprep.NewPreparer(deps.Knowledge, deps.Tokenizer, deps.Logger),
		builder:   prompt.NewBuilder(deps.Tokenizer, deps.Logger),
		module:    prompt.DefaultModule{},
		logger:    deps.Logger.With(zap.String("skill", Name)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Skill) Name() string { return Name }

func (s *Skill) Description() string {
	return "Answer questions using mentioned context, the knowledge base, crawled URLs and external tools."
}

func (s *Skill) ConfigSchema() types.ConfigSchema {
	return types.ConfigSchema{Items: []types.ConfigItem{
		{
			Key:          ConfigEnableKnowledgeBase,
			InputMode:    types.InputModeSwitch,
			DefaultValue: true,
			Labels:       types.LocalizedText{"en": "Knowledge base search", "zh-CN": "知识库检索"},
			Descriptions: types.LocalizedText{"en": "Search the knowledge base for relevant documents", "zh-CN": "从知识库中检索相关文档"},
		},
		{
			Key:          ConfigTemperature,
			InputMode:    types.InputModeText,
			Labels:       types.LocalizedText{"en": "Temperature", "zh-CN": "温度"},
			Descriptions: types.LocalizedText{"en": "Sampling temperature, empty for the model default", "zh-CN": "采样温度，留空使用模型默认值"},
		},
	}}
}

// Invoke 执行一次问答。工具客户端在本次调用内独占，所有退出路径上都只关闭一次。
func (s *Skill) Invoke(ctx context.Context, in *skill.Input, cfg *skill.RunConfig) (*skill.Output, error) {
	if s.deps.Providers == nil {
		return nil, types.NewError(types.ErrInternalError, "no provider factory configured")
	}
	if cfg == nil {
		cfg = &skill.RunConfig{}
	}
	if cfg.Resolved == nil {
		resolved, err := s.ConfigSchema().Resolve(cfg.Config)
		if err != nil {
			return nil, err
		}
		cfg.Resolved = resolved
	}
	emitter := cfg.Emitter
	locale := cfg.LocaleOr(s.deps.Settings.Locale)

	// 1. 查询分析
	event.EmitLog(ctx, emitter, "analyzeQuery", "analyzeQuery.start", nil)
	qres, err := s.processor.Process(ctx, query.Input{
		Query:              in.Query,
		ChatHistory:        cfg.ChatHistory,
		Context:            cfg.Context,
		Models:             cfg.Models,
		Locale:             locale,
		ProjectID:          cfg.ProjectID,
		ShouldSkipAnalysis: cfg.Runtime.ShouldSkipAnalysis,
	}, query.Options{HistoryRatio: s.deps.Settings.HistoryRatio, SystemReserve: s.deps.Settings.SystemReserve})
	if err != nil {
		return nil, err
	}
	event.EmitLog(ctx, emitter, "analyzeQuery", "analyzeQuery.done", map[string]any{
		"optimizedQuery":   qres.OptimizedQuery,
		"rewrittenQueries": qres.RewrittenQueries,
		"remainingTokens":  qres.RemainingTokens,
	})

	// 2. URL 抓取，失败降级为无 URL 来源
	urlSources := s.crawl(ctx, emitter, in.Query, cfg)

	// 3. 上下文准备，预算不足时跳过
	var prepared contextprep.Result
	if !qres.SkipContext() {
		res, err := s.preparer.Prepare(ctx, contextprep.Input{
			Query:                     qres.OptimizedQuery,
			RewrittenQueries:          qres.RewrittenQueries,
			MentionedContext:          qres.MentionedContext,
			MaxTokens:                 qres.RemainingTokens,
			EnableMentionedContext:    cfg.Runtime.EnableMentionedContext,
			URLSources:                urlSources,
			EnableKnowledgeBaseSearch: cfg.Resolved.Bool(ConfigEnableKnowledgeBase),
			Locale:                    locale,
			ProjectID:                 cfg.ProjectID,
		}, contextprep.Options{MinBlockTokens: s.deps.Settings.MinBlockTokens})
		if err != nil {
			return nil, err
		}
		prepared = *res
		event.EmitLog(ctx, emitter, "prepareContext", "prepareContext.done", map[string]any{
			"sources":    len(res.Sources),
			"usedTokens": res.UsedTokens,
		})
	} else {
		event.EmitLog(ctx, emitter, "prepareContext", "prepareContext.skipped", map[string]any{"remainingTokens": qres.RemainingTokens})
	}
	if len(prepared.Sources) > 0 {
		event.EmitStructuredData(ctx, emitter, SourcesKey, prepared.Sources, s.deps.Settings.StructuredChunkSize)
	}

	// 4. 消息组装
	chat, _ := cfg.Models.Get(llm.ModelRoleChat)
	built, err := s.builder.Build(prompt.Input{
		Module:           s.module,
		Locale:           locale,
		ChatHistory:      qres.UsedChatHistory,
		ContextStr:       prepared.ContextStr,
		OriginalQuery:    qres.OriginalQuery,
		OptimizedQuery:   qres.OptimizedQuery,
		RewrittenQueries: qres.RewrittenQueries,
		Model:            chat,
	})
	if err != nil {
		return nil, err
	}

	// 5. 工具客户端
	var registry tools.Registry
	if s.deps.ToolClients != nil {
		client, err := s.deps.ToolClients(ctx)
		if err != nil {
			s.logger.Warn("tool client unavailable, answering without tools", zap.Error(err))
			event.EmitLog(ctx, emitter, "tools", "tools.unavailable", map[string]any{"error": err.Error()})
		} else {
			defer func() {
				if cerr := client.Close(); cerr != nil {
					s.logger.Warn("failed to close tool client", zap.Error(cerr))
				}
			}()
			registry = client.Registry()
		}
	}

	// 6. llm ⇄ tools
	provider, err := s.deps.Providers.ProviderFor(chat)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "resolve chat provider").WithCause(err)
	}
	run := &runner{
		skill:       s,
		provider:    provider,
		model:       chat,
		registry:    registry,
		emitter:     emitter,
		temperature: float32(parseTemperature(cfg.Resolved.String(ConfigTemperature))),
	}
	g, err := run.graph()
	if err != nil {
		return nil, err
	}
	state, err := g.Run(ctx, &graph.State{Messages: built.Messages, ContextualQuery: qres.OptimizedQuery})
	if err != nil {
		return nil, err
	}

	out := &skill.Output{
		Messages:  state.Messages,
		Artifacts: state.Artifacts,
		Sources:   prepared.Sources,
		Usage:     run.usage,
		Steps:     state.Steps,
	}
	if last, ok := state.LastAssistantMessage(); ok {
		out.Answer = last.Content
	}
	return out, nil
}

func (s *Skill) crawl(ctx context.Context, emitter event.Emitter, q string, cfg *skill.RunConfig) []types.Source {
	if !cfg.Runtime.EnableWebCrawl || s.deps.Crawler == nil {
		return nil
	}
	var contextURLs []string
	if cfg.Context != nil {
		contextURLs = cfg.Context.URLs
	}
	res, err := s.deps.Crawler.Process(ctx, q, contextURLs, crawler.Options{})
	if err != nil {
		s.logger.Warn("url crawl failed, continuing without url sources", zap.Error(err))
		event.EmitLog(ctx, emitter, "crawl", "crawl.failed", map[string]any{"error": err.Error()})
		return nil
	}
	if len(res.Sources) > 0 || len(res.DetectedURLs) > 0 {
		event.EmitLog(ctx, emitter, "crawl", "crawl.done", map[string]any{
			"detected": len(res.DetectedURLs),
			"fetched":  len(res.Sources),
		})
	}
	return res.Sources
}

// =============================================================================
// 🔁 llm ⇄ tools 图
// =============================================================================

type runner struct {
	skill       *Skill
	provider    llm.Provider
	model       llm.ModelInfo
	registry    tools.Registry
	emitter     event.Emitter
	temperature float32
	usage       types.TokenUsage
}

func (r *runner) graph() (*graph.Graph, error) {
	b := graph.NewBuilder(Name).
		AddNode(NodeLLM, r.llmNode).
		AddEdge(graph.Start, NodeLLM).
		AddConditionalEdge(NodeLLM, graph.ToolsCondition).
		AddNode(NodeTools, r.toolsNode).
		AddEdge(NodeTools, NodeLLM).
		WithRecursionLimit(r.skill.deps.Settings.RecursionLimit).
		WithLogger(r.skill.logger).
		WithMetrics(r.skill.deps.Metrics).
		WithListener(graph.ListenerFuncs{
			Start: func(ctx context.Context, node string, s *graph.State) {
				event.EmitLog(ctx, r.emitter, node, node+".start", map[string]any{"step": s.Steps})
			},
		})
	return b.Build()
}

func (r *runner) llmNode(ctx context.Context, s *graph.State) (graph.Update, error) {
	req := &llm.ChatRequest{
		Model:       r.model.Name,
		Messages:    s.Messages,
		MaxTokens:   r.model.MaxOutput,
		Temperature: r.temperature,
	}
	if r.registry != nil {
		req.Tools = r.registry.List()
	}
	if id, ok := types.RunID(ctx); ok {
		req.TraceID = id
	}

	start := time.Now()
	ch, err := r.provider.Stream(ctx, req)
	if err != nil {
		r.skill.deps.Metrics.RecordLLMRequest(r.provider.Name(), r.model.Name, "error", time.Since(start), 0, 0)
		return graph.Update{}, fmt.Errorf("model request: %w", err)
	}
	msg, usage, err := llm.AccumulateStream(ctx, ch, func(delta string) {
		event.EmitStream(ctx, r.emitter, NodeLLM, delta)
	})
	if err != nil {
		r.skill.deps.Metrics.RecordLLMRequest(r.provider.Name(), r.model.Name, "error", time.Since(start), 0, 0)
		return graph.Update{}, fmt.Errorf("model stream: %w", err)
	}
	var promptTokens, completionTokens int
	if usage != nil {
		r.usage.Add(*usage)
		promptTokens, completionTokens = usage.PromptTokens, usage.CompletionTokens
	}
	r.skill.deps.Metrics.RecordLLMRequest(r.provider.Name(), r.model.Name, "success", time.Since(start), promptTokens, completionTokens)

	calls := msg.ToolCalls
	if calls == nil {
		calls = []types.ToolCall{}
	}
	return graph.Update{Messages: []types.Message{msg}, PendingToolCalls: calls}, nil
}

// toolsNode 执行待处理的工具调用，失败的调用以错误文本作为工具消息返回给模型
func (r *runner) toolsNode(ctx context.Context, s *graph.State) (graph.Update, error) {
	calls := s.PendingToolCalls
	if r.registry == nil {
		msgs := make([]types.Message, 0, len(calls))
		for _, c := range calls {
			msgs = append(msgs, types.ToolResult{ToolCallID: c.ID, Name: c.Name, Error: "no tools available"}.ToMessage())
		}
		return graph.Update{Messages: msgs, PendingToolCalls: []types.ToolCall{}}, nil
	}

	exec := tools.NewDefaultExecutor(r.registry, r.skill.deps.Settings.ToolParallelism, r.skill.logger)
	results := exec.Execute(ctx, calls)
	msgs := make([]types.Message, 0, len(results))
	for _, res := range results {
		status := "success"
		if res.IsError() {
			status = "error"
		}
		r.skill.deps.Metrics.RecordToolCall(res.Name, status)
		event.EmitLog(ctx, r.emitter, NodeTools, "tools.call", map[string]any{"tool": res.Name, "status": status})
		msgs = append(msgs, res.ToMessage())
	}
	return graph.Update{Messages: msgs, PendingToolCalls: []types.ToolCall{}}, nil
}
