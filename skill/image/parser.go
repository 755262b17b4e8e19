package image

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/BaSui01/skillflow/llm/sse"
	"github.com/BaSui01/skillflow/types"
)

var (
	// ![alt](https://host/path.png)
	imageURLPattern = regexp.MustCompile(`!\[[^\]]*\]\((https://[^\s)]+)\)`)
	// gen_id: `abc123`
	genIDPattern = regexp.MustCompile("gen_id:\\s*`([^`\\s]+)`")
)

// Result 从生成流中提取的结果
type Result struct {
	URL   string `json:"url"`
	GenID string `json:"genId,omitempty"`
}

// StreamParser 累积生成服务返回的文本，每次写入后对完整缓冲区重新匹配，
// 因此标记被分块切开也能识别。缓冲区超过上限返回 BUFFER_OVERFLOW。
type StreamParser struct {
	buf      strings.Builder
	maxBytes int
	result   Result
}

// NewStreamParser 创建解析器，maxBytes <= 0 表示不限制
func NewStreamParser(maxBytes int) *StreamParser {
	return &StreamParser{maxBytes: maxBytes}
}

// Write 追加一段文本并重新匹配
func (p *StreamParser) Write(text string) error {
	if text == "" {
		return nil
	}
	if p.maxBytes > 0 && p.buf.Len()+len(text) > p.maxBytes {
		return types.Errorf(types.ErrBufferOverflow,
			"image stream exceeded %d bytes without a complete result", p.maxBytes)
	}
	p.buf.WriteString(text)
	p.scan()
	return nil
}

// Feed 解码一个 SSE 事件：OpenAI 风格 chunk 取 delta 内容，无法解析的数据按原文处理。
func (p *StreamParser) Feed(ev sse.Event) error {
	return p.Write(decodeEvent(ev))
}

func (p *StreamParser) scan() {
	text := p.buf.String()
	if p.result.URL == "" {
		if m := imageURLPattern.FindStringSubmatch(text); m != nil {
			p.result.URL = m[1]
		}
	}
	if p.result.GenID == "" {
		if m := genIDPattern.FindStringSubmatch(text); m != nil {
			p.result.GenID = m[1]
		}
	}
}

// Result 返回目前已提取的结果
func (p *StreamParser) Result() Result { return p.result }

// Complete 两个标记都已找到
func (p *StreamParser) Complete() bool {
	return p.result.URL != "" && p.result.GenID != ""
}

// Text 返回累积的文本
func (p *StreamParser) Text() string { return p.buf.String() }

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func decodeEvent(ev sse.Event) string {
	if ev.Raw {
		return ev.Data + "\n"
	}
	var chunk streamChunk
	if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
		return ev.Data
	}
	var sb strings.Builder
	for _, c := range chunk.Choices {
		sb.WriteString(c.Delta.Content)
		sb.WriteString(c.Message.Content)
	}
	return sb.String()
}

// fencedPayload 生成请求中的 JSON 代码块
func fencedPayload(prompt, ratio, genID string) (string, error) {
	payload := map[string]string{"prompt": prompt, "ratio": ratio}
	if genID != "" {
		payload["gen_id"] = genID
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal image payload: %w", err)
	}
	return "```json\n" + string(data) + "\n```", nil
}
