// Package tools 提供模型工具调用的注册表与执行器。
// 执行器按调用顺序返回结果，工具失败转换为携带错误信息的 ToolResult，不中断调用方的流程。
package tools
