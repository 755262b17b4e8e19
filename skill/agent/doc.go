// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package agent 实现通用问答技能 commonQnA。

一次调用依次经过查询分析、URL 抓取、上下文准备与消息组装，然后运行 llm ⇄ tools
两节点图：模型响应带工具调用时进入 tools 节点执行并回到 llm，否则结束；超过步数上限
返回 RECURSION_LIMIT 错误。工具客户端由调用独占，在所有退出路径上只关闭一次。
*/
package agent
