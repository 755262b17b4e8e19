package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/BaSui01/skillflow/types"
)

// TiktokenTokenizer 为 OpenAI 系列模型包装 tiktoken。
// 编码数据首次使用时加载，加载失败则降级为估算器。
type TiktokenTokenizer struct {
	model    string
	encoding string

	once     sync.Once
	enc      *tiktoken.Tiktoken
	fallback *EstimatorTokenizer
}

// modelEncodings 将模型名前缀映射到 tiktoken 编码
var modelEncodings = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4o", "o200k_base"},
	{"gpt-4.1", "o200k_base"},
	{"o1", "o200k_base"},
	{"o3", "o200k_base"},
	{"gpt-4", "cl100k_base"},
	{"gpt-3.5", "cl100k_base"},
	{"text-embedding-3", "cl100k_base"},
}

// IsOpenAIModel reports whether model has a known tiktoken encoding.
func IsOpenAIModel(model string) bool {
	_, ok := encodingFor(model)
	return ok
}

func encodingFor(model string) (string, bool) {
	for _, m := range modelEncodings {
		if strings.HasPrefix(model, m.prefix) {
			return m.encoding, true
		}
	}
	return "", false
}

// NewTiktokenTokenizer 创建基于 tiktoken 的分词器，未知模型使用 cl100k_base。
func NewTiktokenTokenizer(model string) *TiktokenTokenizer {
	encoding, ok := encodingFor(model)
	if !ok {
		encoding = "cl100k_base"
	}
	return &TiktokenTokenizer{model: model, encoding: encoding}
}

func (t *TiktokenTokenizer) init() {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.fallback = NewEstimatorTokenizer()
			return
		}
		t.enc = enc
	})
}

// Ready reports whether the real encoding loaded.
func (t *TiktokenTokenizer) Ready() bool {
	t.init()
	return t.enc != nil
}

func (t *TiktokenTokenizer) CountTokens(text string) int {
	t.init()
	if t.enc == nil {
		return t.fallback.CountTokens(text)
	}
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

func (t *TiktokenTokenizer) CountMessages(messages []types.Message) int {
	return countMessages(t, messages)
}

func (t *TiktokenTokenizer) Truncate(text string, maxTokens int) string {
	t.init()
	if t.enc == nil {
		return t.fallback.Truncate(text, maxTokens)
	}
	if maxTokens <= 0 {
		return ""
	}
	ids := t.enc.Encode(text, nil, nil)
	if len(ids) <= maxTokens {
		return text
	}
	// 截断处可能切开多字节字符，交给前缀查找收尾
	head := t.enc.Decode(ids[:maxTokens])
	return truncatePrefix(t, strings.ToValidUTF8(head, ""), maxTokens)
}

func (t *TiktokenTokenizer) Name() string { return "tiktoken:" + t.encoding }
