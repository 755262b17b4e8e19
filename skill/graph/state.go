package graph

import (
	"github.com/BaSui01/skillflow/types"
)

// Reducer 定义如何把节点返回的更新合并进当前值。
type Reducer[T any] func(current T, update T) T

// AppendReducer 追加切片，不修改 current 的底层数组。
func AppendReducer[T any]() Reducer[[]T] {
	return func(current, update []T) []T {
		if len(update) == 0 {
			return current
		}
		result := make([]T, 0, len(current)+len(update))
		result = append(result, current...)
		return append(result, update...)
	}
}

// ReplaceReducer 以 update 整体替换；nil 表示"未更新"，空切片表示清空。
func ReplaceReducer[T any]() Reducer[[]T] {
	return func(current, update []T) []T {
		if update == nil {
			return current
		}
		return update
	}
}

// LastNonEmptyReducer 取最后一次非空写入。
func LastNonEmptyReducer() Reducer[string] {
	return func(current, update string) string {
		if update == "" {
			return current
		}
		return update
	}
}

var (
	messagesReducer  = AppendReducer[types.Message]()
	toolCallsReducer = ReplaceReducer[types.ToolCall]()
	queryReducer     = LastNonEmptyReducer()
	artifactsReducer = AppendReducer[types.Artifact]()
)

// State 在一次调用内贯穿所有节点，调用结束即丢弃。
type State struct {
	// 累计消息，只追加
	Messages []types.Message `json:"messages"`
	// 待执行的工具调用，整体替换
	PendingToolCalls []types.ToolCall `json:"pendingToolCalls,omitempty"`
	// 派生的上下文化查询
	ContextualQuery string `json:"contextualQuery,omitempty"`
	// 本次调用产出的 artifact
	Artifacts []types.Artifact `json:"artifacts,omitempty"`
	// 已执行的节点步数
	Steps int `json:"steps"`
}

// Update 是节点返回的部分状态。
type Update struct {
	Messages         []types.Message
	PendingToolCalls []types.ToolCall
	ContextualQuery  string
	Artifacts        []types.Artifact
}

// Apply 用各字段的 reducer 合并更新。
func (s *State) Apply(u Update) {
	s.Messages = messagesReducer(s.Messages, u.Messages)
	s.PendingToolCalls = toolCallsReducer(s.PendingToolCalls, u.PendingToolCalls)
	s.ContextualQuery = queryReducer(s.ContextualQuery, u.ContextualQuery)
	s.Artifacts = artifactsReducer(s.Artifacts, u.Artifacts)
}

// LastMessage 返回最后一条消息。
func (s *State) LastMessage() (types.Message, bool) {
	if len(s.Messages) == 0 {
		return types.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// LastAssistantMessage 返回最后一条 assistant 消息。
func (s *State) LastAssistantMessage() (types.Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == types.RoleAssistant {
			return s.Messages[i], true
		}
	}
	return types.Message{}, false
}
