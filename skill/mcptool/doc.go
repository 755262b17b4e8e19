// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package mcptool 把多个 MCP 工具服务器聚合成一个 tools.Registry。

每个服务器通过 stdio 命令或 streamable HTTP 连接，工具以 <server>__<tool>
的名字注册。Client 由单次技能调用独占，Close 可重复调用，会话只释放一次。
*/
package mcptool
