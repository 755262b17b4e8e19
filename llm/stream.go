package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/skillflow/types"
)

// AccumulateStream folds streamed chunks into one assistant message.
// onDelta, when non-nil, receives every non-empty content delta in order.
func AccumulateStream(ctx context.Context, ch <-chan StreamChunk, onDelta func(string)) (types.Message, *types.TokenUsage, error) {
	type toolAcc struct {
		id   string
		name string
		args strings.Builder
	}
	var (
		content strings.Builder
		order   []string
		byID    = make(map[string]*toolAcc)
		usage   *types.TokenUsage
	)

	for {
		select {
		case <-ctx.Done():
			return types.Message{}, nil, types.NewError(types.ErrCanceled, "stream canceled").WithCause(ctx.Err())
		case chunk, ok := <-ch:
			if !ok {
				msg := types.NewAssistantMessage(content.String())
				for _, id := range order {
					acc := byID[id]
					raw := strings.TrimSpace(acc.args.String())
					var args json.RawMessage
					if raw != "" {
						if !json.Valid([]byte(raw)) {
							return types.Message{}, nil, types.NewError(types.ErrUpstreamError,
								fmt.Sprintf("invalid tool call arguments (id=%s tool=%s): %s", acc.id, acc.name, raw))
						}
						args = json.RawMessage(raw)
					}
					msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{ID: acc.id, Name: acc.name, Arguments: args})
				}
				return msg, usage, nil
			}
			if chunk.Err != nil {
				return types.Message{}, nil, chunk.Err
			}
			if chunk.Usage != nil {
				usage = chunk.Usage
			}
			if chunk.Delta.Content != "" {
				content.WriteString(chunk.Delta.Content)
				if onDelta != nil {
					onDelta(chunk.Delta.Content)
				}
			}
			for _, tc := range chunk.Delta.ToolCalls {
				id := strings.TrimSpace(tc.ID)
				if id == "" {
					if len(order) == 0 {
						id = "call_1"
					} else {
						id = order[len(order)-1]
					}
				}
				acc := byID[id]
				if acc == nil {
					acc = &toolAcc{id: id}
					byID[id] = acc
					order = append(order, id)
				}
				if name := strings.TrimSpace(tc.Name); name != "" {
					acc.name = name
				}
				acc.args.Write(tc.Arguments)
			}
		}
	}
}
