// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package contextprep 把检索到的材料组装成送给模型的上下文字符串。

块的优先级依次为：用户提及的内容（内容、资源、画布、项目、历史消息、网页搜索结果）、
知识库命中（优化查询与改写查询，按 Source.Key 去重）、URL 抓取结果。每加入一个块都会
重新计数，结果的 UsedTokens 永远不超过 MaxTokens；最后一个放不下的块在剩余预算不少于
MinBlockTokens 时被截断后加入。预算 ≤ 0 时直接返回空结果并且不调用知识库。
*/
package contextprep
