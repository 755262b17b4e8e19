// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供技能测试共用的上下文、断言与流式辅助
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertMessageRoles(t, []types.Role{types.RoleSystem, types.RoleUser}, msgs)
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BaSui01/skillflow/llm"
	"github.com/BaSui01/skillflow/skill/event"
	"github.com/BaSui01/skillflow/types"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertMessageRoles 断言消息的角色序列
func AssertMessageRoles(t *testing.T, expected []types.Role, actual []types.Message) {
	t.Helper()

	if len(expected) != len(actual) {
		t.Errorf("message count mismatch: expected %d, got %d", len(expected), len(actual))
		return
	}
	for i := range expected {
		if expected[i] != actual[i].Role {
			t.Errorf("message[%d] role mismatch: expected %q, got %q", i, expected[i], actual[i].Role)
		}
	}
}

// AssertEventKinds 断言记录到的事件类型序列
func AssertEventKinds(t *testing.T, expected []event.Kind, rec *event.Recorder) {
	t.Helper()

	actual := rec.Kinds()
	if len(expected) != len(actual) {
		t.Errorf("event kinds mismatch:\nexpected: %v\nactual:   %v", expected, actual)
		return
	}
	for i := range expected {
		if expected[i] != actual[i] {
			t.Errorf("event kinds mismatch at %d:\nexpected: %v\nactual:   %v", i, expected, actual)
			return
		}
	}
}

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("condition did not become true within %v", timeout)
}

// =============================================================================
// 🔧 数据工具
// =============================================================================

// MustJSON 序列化为 JSON，失败时 panic
func MustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// =============================================================================
// 🎭 流式辅助
// =============================================================================

// CollectStreamContent 收集流式内容到字符串
func CollectStreamContent(ch <-chan llm.StreamChunk) string {
	var content string
	for chunk := range ch {
		content += chunk.Delta.Content
	}
	return content
}

// SendChunksToChannel 发送块到通道
func SendChunksToChannel(chunks []llm.StreamChunk) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk, len(chunks))
	go func() {
		defer close(ch)
		for _, chunk := range chunks {
			ch <- chunk
		}
	}()
	return ch
}
