// Package query 实现技能的查询处理节点。
//
// Processor 对原始查询做规范化，按 HistoryRatio 截取最新的聊天历史，
// 并计算剩余 token 预算：
//
//	remaining = ContextLimit - MaxOutput - SystemReserve - tokens(history) - tokens(query)
//
// 预算 <= 0 时调用方应跳过上下文准备。设置了 ShouldSkipAnalysis 且既无上下文也无历史时
// 不调用分析模型，原样返回查询；分析失败或输出无法解析时降级为原始查询。
package query
