package openaicompat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/skillflow/types"
)

// OpenAI 兼容 API 线上格式

type wireMessage struct {
	Role       string         `json:"role,omitempty"`
	Content    string         `json:"content,omitempty"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	Index    *int         `json:"index,omitempty"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function wireFunction `json:"function"`
}

// Arguments 在 OpenAI 协议中是 JSON 字符串
type wireFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type wireToolDef struct {
	Type     string          `json:"type"`
	Function wireFunctionDef `json:"function"`
}

type wireFunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireToolDef `json:"tools,omitempty"`
	ToolChoice  any           `json:"tool_choice,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireChoice struct {
	Index        int          `json:"index"`
	FinishReason string       `json:"finish_reason"`
	Message      wireMessage  `json:"message"`
	Delta        *wireMessage `json:"delta,omitempty"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type wireResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   *wireUsage   `json:"usage,omitempty"`
	Created int64        `json:"created,omitempty"`
}

func toWireMessages(msgs []types.Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := wireMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			args := string(tc.Arguments)
			if args == "" {
				args = "{}"
			}
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: wireFunction{Name: tc.Name, Arguments: args},
			})
		}
		out = append(out, wm)
	}
	return out
}

func toWireTools(tools []types.ToolSchema) []wireToolDef {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireToolDef, 0, len(tools))
	for _, t := range tools {
		out = append(out, wireToolDef{
			Type:     "function",
			Function: wireFunctionDef{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	return out
}

func fromWireMessage(wm wireMessage) types.Message {
	msg := types.NewMessage(types.Role(wm.Role), wm.Content)
	if msg.Role == "" {
		msg.Role = types.RoleAssistant
	}
	for _, tc := range wm.ToolCalls {
		var args json.RawMessage
		if tc.Function.Arguments != "" {
			args = json.RawMessage(tc.Function.Arguments)
		}
		msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	return msg
}

// readErrorMessage 读取错误响应体，优先解析 {"error":{"message":...}}
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return strings.TrimSpace(string(data))
}

// mapHTTPError 将上游 HTTP 状态映射为结构化错误
func mapHTTPError(status int, msg, provider string) *types.Error {
	var e *types.Error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e = types.NewError(types.ErrAuthentication, msg)
	case status == http.StatusTooManyRequests:
		e = types.NewError(types.ErrRateLimited, msg).WithRetryable(true)
	case status == http.StatusBadRequest || status == http.StatusNotFound || status == http.StatusUnprocessableEntity:
		e = types.NewError(types.ErrInvalidRequest, msg)
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		e = types.NewError(types.ErrUpstreamTimeout, msg).WithRetryable(true)
	case status >= 500:
		e = types.NewError(types.ErrUpstreamError, msg).WithRetryable(true)
	default:
		e = types.NewError(types.ErrUpstreamStatus, msg)
	}
	return e.WithHTTPStatus(status).WithProvider(provider)
}
