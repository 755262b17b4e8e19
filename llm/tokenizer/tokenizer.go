package tokenizer

import (
	"strings"
	"sync"

	"github.com/BaSui01/skillflow/types"
)

// Tokenizer 统一的 token 计数接口。计数失败时实现应自行降级为估算，而不是返回错误。
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数
	CountTokens(text string) int

	// CountMessages 返回消息列表的总 token 数，含每条消息的角色与分隔符开销
	CountMessages(messages []types.Message) int

	// Truncate 返回 token 数不超过 maxTokens 的最长前缀
	Truncate(text string, maxTokens int) string

	// Name 返回分词器名称
	Name() string
}

const (
	messageOverhead      = 4
	conversationOverhead = 3
)

// countMessages 按 OpenAI 的消息开销规则累加
func countMessages(t Tokenizer, messages []types.Message) int {
	if len(messages) == 0 {
		return 0
	}
	total := conversationOverhead
	for _, msg := range messages {
		total += messageOverhead + t.CountTokens(msg.Content) + t.CountTokens(string(msg.Role))
		if msg.Name != "" {
			total += t.CountTokens(msg.Name)
		}
		for _, tc := range msg.ToolCalls {
			total += t.CountTokens(tc.Name) + t.CountTokens(string(tc.Arguments))
		}
	}
	return total
}

// truncatePrefix 二分查找满足预算的最长 rune 前缀。
// 只接受经过实际计数验证的长度，因此结果一定不超过预算。
func truncatePrefix(t Tokenizer, text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return ""
	}
	if t.CountTokens(text) <= maxTokens {
		return text
	}
	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if t.CountTokens(string(runes[:mid])) <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return strings.TrimRightFunc(string(runes[:lo]), func(r rune) bool { return r == '�' })
}

// Registry maps model names to tokenizers, with prefix matching
// (e.g. "gpt-4o" matches "gpt-4o-mini").
type Registry struct {
	mu         sync.RWMutex
	tokenizers map[string]Tokenizer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tokenizers: make(map[string]Tokenizer)}
}

// Register binds a tokenizer to a model name or prefix.
func (r *Registry) Register(model string, t Tokenizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokenizers[model] = t
}

// Get returns the tokenizer registered for model. The longest matching prefix wins.
func (r *Registry) Get(model string) (Tokenizer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.tokenizers[model]; ok {
		return t, true
	}
	var (
		best    Tokenizer
		bestLen int
	)
	for prefix, t := range r.tokenizers {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = t, len(prefix)
		}
	}
	return best, best != nil
}

// ForModel returns the registered tokenizer for model, then a tiktoken
// tokenizer for OpenAI-family names, then the estimator.
func (r *Registry) ForModel(model string) Tokenizer {
	if r != nil {
		if t, ok := r.Get(model); ok {
			return t
		}
	}
	if IsOpenAIModel(model) {
		return NewTiktokenTokenizer(model)
	}
	return NewEstimatorTokenizer()
}
