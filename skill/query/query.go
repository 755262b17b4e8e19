package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/skillflow/llm"
	"github.com/BaSui01/skillflow/llm/tokenizer"
	"github.com/BaSui01/skillflow/types"
	"go.uber.org/zap"
)

// 默认参数
const (
	DefaultHistoryRatio  = 0.4
	DefaultSystemReserve = 1024
	// DefaultContextWindow 模型未声明窗口时的预算基数
	DefaultContextWindow = 32768
)

// Input 查询处理输入
type Input struct {
	Query              string
	ChatHistory        []types.Message
	Context            *types.Context
	Models             llm.ModelMap
	Locale             string
	ProjectID          string
	ShouldSkipAnalysis bool
}

// Options 预算参数，零值使用默认值
type Options struct {
	HistoryRatio  float64
	SystemReserve int
}

func (o Options) withDefaults() Options {
	if o.HistoryRatio <= 0 || o.HistoryRatio > 1 {
		o.HistoryRatio = DefaultHistoryRatio
	}
	if o.SystemReserve <= 0 {
		o.SystemReserve = DefaultSystemReserve
	}
	return o
}

// Result 查询处理结果
type Result struct {
	OptimizedQuery   string          `json:"optimizedQuery"`
	OriginalQuery    string          `json:"originalQuery"`
	RewrittenQueries []string        `json:"rewrittenQueries,omitempty"`
	UsedChatHistory  []types.Message `json:"usedChatHistory,omitempty"`
	HasContext       bool            `json:"hasContext"`
	RemainingTokens  int             `json:"remainingTokens"`
	MentionedContext *types.Context  `json:"mentionedContext,omitempty"`
	// Analyzed 为 true 表示分析模型给出了可用结果
	Analyzed bool `json:"analyzed"`
}

// SkipContext 预算不足时调用方应跳过上下文准备。
func (r *Result) SkipContext() bool {
	return r.RemainingTokens <= 0
}

// Processor 规范化查询、截取聊天历史、计算 token 预算，并可选调用分析模型改写查询。
type Processor struct {
	providers llm.ProviderFactory
	tokenizer tokenizer.Tokenizer
	logger    *zap.Logger
}

// NewProcessor 创建查询处理器。tok 为 nil 时使用估算分词器。
func NewProcessor(providers llm.ProviderFactory, tok tokenizer.Tokenizer, logger *zap.Logger) *Processor {
	if tok == nil {
		tok = tokenizer.NewEstimatorTokenizer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		providers: providers,
		tokenizer: tok,
		logger:    logger.With(zap.String("component", "query_processor")),
	}
}

// Process 执行查询处理。
// 空查询返回 INVALID_REQUEST；分析模型失败时降级为原始查询，不返回错误。
func (p *Processor) Process(ctx context.Context, in Input, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	q := strings.TrimSpace(in.Query)
	if q == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "query is empty")
	}
	chat, ok := in.Models.Get(llm.ModelRoleChat)
	if !ok {
		return nil, types.NewError(types.ErrInvalidRequest, "chat model is required")
	}
	if chat.ContextLimit <= 0 {
		// 窗口未知：与消息构建的容量检查一致视为可容纳，预算按默认窗口计算
		p.logger.Debug("chat model has no context limit, using default window",
			zap.String("model", chat.Name), zap.Int("window", DefaultContextWindow))
		chat.ContextLimit = DefaultContextWindow
	}

	history := p.truncateHistory(in.ChatHistory, int(float64(chat.ContextLimit)*opts.HistoryRatio))
	remaining := chat.ContextLimit - chat.MaxOutput - opts.SystemReserve -
		p.tokenizer.CountMessages(history) - p.tokenizer.CountTokens(q)

	hasContext := !in.Context.IsEmpty()
	res := &Result{
		OptimizedQuery:   q,
		OriginalQuery:    q,
		UsedChatHistory:  history,
		HasContext:       hasContext,
		RemainingTokens:  remaining,
		MentionedContext: in.Context,
	}

	if in.ShouldSkipAnalysis && !hasContext && len(history) == 0 {
		p.logger.Debug("query analysis skipped")
		return res, nil
	}

	analysis, err := p.analyze(ctx, in, q, history)
	if err != nil {
		// 分析失败降级为原始查询
		p.logger.Warn("query analysis failed, using raw query", zap.Error(err))
		return res, nil
	}

	res.Analyzed = true
	if opt := strings.TrimSpace(analysis.OptimizedQuery); opt != "" {
		res.OptimizedQuery = opt
	}
	res.RewrittenQueries = dedupeQueries(analysis.RewrittenQueries, res.OptimizedQuery)
	if hasContext && len(analysis.MentionedEntityIDs) > 0 {
		res.MentionedContext = in.Context.Filter(analysis.MentionedEntityIDs)
	}
	return res, nil
}

// truncateHistory 从最新消息向前保留，直到超出 budget；保持原有顺序。
func (p *Processor) truncateHistory(history []types.Message, budget int) []types.Message {
	if len(history) == 0 || budget <= 0 {
		return nil
	}
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		if p.tokenizer.CountMessages(history[i:]) > budget {
			break
		}
		start = i
	}
	if start == len(history) {
		return nil
	}
	return append([]types.Message(nil), history[start:]...)
}

// analysis 分析模型返回的 JSON
type analysis struct {
	OptimizedQuery     string   `json:"optimizedQuery"`
	RewrittenQueries   []string `json:"rewrittenQueries"`
	MentionedEntityIDs []string `json:"mentionedEntityIds"`
}

func (p *Processor) analyze(ctx context.Context, in Input, q string, history []types.Message) (*analysis, error) {
	if p.providers == nil {
		return nil, types.NewError(types.ErrInternalError, "no provider factory configured")
	}
	model, ok := in.Models.Get(llm.ModelRoleQueryAnalysis)
	if !ok {
		return nil, types.NewError(types.ErrInvalidRequest, "no query analysis model")
	}
	provider, err := p.providers.ProviderFor(model)
	if err != nil {
		return nil, fmt.Errorf("resolve query analysis provider: %w", err)
	}

	resp, err := provider.Completion(ctx, &llm.ChatRequest{
		Model: model.Name,
		Messages: []types.Message{
			types.NewSystemMessage(analysisSystemPrompt(in.Locale)),
			types.NewUserMessage(analysisUserPrompt(q, history, in.Context)),
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("query analysis completion: %w", err)
	}

	var out analysis
	if err := decodeJSONObject(resp.FirstMessage().Content, &out); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "query analysis returned unparsable output").WithCause(err)
	}
	return &out, nil
}

// decodeJSONObject 提取文本中第一个 {...} 并解码，兼容 ```json 围栏。
func decodeJSONObject(text string, v any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in output")
	}
	return json.Unmarshal([]byte(text[start:end+1]), v)
}

func dedupeQueries(queries []string, optimized string) []string {
	seen := map[string]struct{}{optimized: {}}
	var out []string
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}
