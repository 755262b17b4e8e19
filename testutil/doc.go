/*
Package testutil 提供 skillflow 测试的共享工具和辅助函数。

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext
  - 断言工具: AssertMessageRoles / AssertEventKinds / AssertEventuallyTrue
  - 流式辅助: CollectStreamContent / SendChunksToChannel

# 子包

  - testutil/mocks: MockProvider（可脚本化的 llm.Provider）与 MockToolClient
    （记录 Close 次数的工具客户端）
  - testutil/fixtures: 模型表、上下文包、来源与对话样例

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider().WithScript(fixtures.ToolCallMessage(call), types.NewAssistantMessage("done"))
	factory := mocks.Factory(provider)
*/
package testutil
