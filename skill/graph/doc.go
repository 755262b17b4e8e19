// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package graph 提供技能执行用的显式有限状态机。

Graph 由节点（名称 → NodeFunc）、静态边与纯条件边组成，Start/End 为保留节点。
Run 顺序执行节点并用 reducer 合并每步返回的 Update：

  - Messages：追加
  - PendingToolCalls：整体替换（nil 表示未更新）
  - ContextualQuery：最后一次非空写入
  - Artifacts：追加

每执行一个节点计一步，超过 RecursionLimit（默认 100）返回 RECURSION_LIMIT 错误。
每个节点在 OpenTelemetry span 中运行，并通过 Listener 钩子与 metrics 计数对外可见。

典型的工具调用循环：

	g, err := graph.NewBuilder("agent").
		AddNode("llm", callModel).
		AddNode(graph.ToolsNode, runTools).
		AddEdge(graph.Start, "llm").
		AddConditionalEdge("llm", graph.ToolsCondition).
		AddEdge(graph.ToolsNode, "llm").
		Build()
*/
package graph
