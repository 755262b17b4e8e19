package prompt

import (
	"strings"

	"github.com/BaSui01/skillflow/llm"
	"github.com/BaSui01/skillflow/llm/tokenizer"
	"github.com/BaSui01/skillflow/types"
	"go.uber.org/zap"
)

// Input 组装最终请求消息的输入
type Input struct {
	Module           Module
	Locale           string
	ChatHistory      []types.Message
	Messages         []types.Message
	ContextStr       string
	OriginalQuery    string
	OptimizedQuery   string
	RewrittenQueries []string
	// Model 目标模型，ContextLimit ≤ 0 表示窗口未知，不做容量检查
	Model llm.ModelInfo
}

// Result 组装结果
type Result struct {
	Messages []types.Message
	// UsedContext 为 true 表示使用了带上下文的构建器
	UsedContext  bool
	PromptTokens int
}

// Builder 按 system → context → history → messages → query 的顺序组装消息
type Builder struct {
	tokenizer tokenizer.Tokenizer
	logger    *zap.Logger
}

// NewBuilder 创建消息构建器
func NewBuilder(tok tokenizer.Tokenizer, logger *zap.Logger) *Builder {
	if tok == nil {
		tok = tokenizer.NewEstimatorTokenizer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{tokenizer: tok, logger: logger.With(zap.String("component", "message_builder"))}
}

// Build 组装消息。只有存在上下文且带上下文的结果放得进模型窗口时才使用上下文构建器，
// 否则回退到不含上下文消息的普通构建。
func (b *Builder) Build(in Input) (*Result, error) {
	if strings.TrimSpace(in.OptimizedQuery) == "" && strings.TrimSpace(in.OriginalQuery) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "query is empty")
	}
	module := in.Module
	if module == nil {
		module = DefaultModule{}
	}
	pi := PromptInput{
		Locale:           in.Locale,
		OriginalQuery:    in.OriginalQuery,
		OptimizedQuery:   in.OptimizedQuery,
		RewrittenQueries: in.RewrittenQueries,
		ContextStr:       in.ContextStr,
	}

	if strings.TrimSpace(in.ContextStr) != "" {
		msgs := assemble(module, pi, in, true)
		tokens := b.tokenizer.CountMessages(msgs)
		if fits(in.Model, tokens) {
			return &Result{Messages: msgs, UsedContext: true, PromptTokens: tokens}, nil
		}
		b.logger.Warn("context does not fit the model window, building without it",
			zap.String("model", in.Model.Name),
			zap.Int("prompt_tokens", tokens),
			zap.Int("context_limit", in.Model.ContextLimit),
		)
	}

	msgs := assemble(module, pi, in, false)
	return &Result{Messages: msgs, PromptTokens: b.tokenizer.CountMessages(msgs)}, nil
}

func assemble(module Module, pi PromptInput, in Input, withContext bool) []types.Message {
	msgs := make([]types.Message, 0, 3+len(in.ChatHistory)+len(in.Messages))
	msgs = append(msgs, types.NewSystemMessage(module.BuildSystemPrompt(in.Locale)))
	if withContext {
		msgs = append(msgs, types.NewUserMessage(module.BuildContextUserPrompt(pi)))
	}
	msgs = append(msgs, in.ChatHistory...)
	msgs = append(msgs, in.Messages...)
	msgs = append(msgs, types.NewUserMessage(module.BuildUserPrompt(pi)))
	return msgs
}

func fits(model llm.ModelInfo, promptTokens int) bool {
	if model.ContextLimit <= 0 {
		return true
	}
	return promptTokens+model.MaxOutput <= model.ContextLimit
}
