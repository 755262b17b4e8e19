// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 llm 定义技能引擎与大语言模型之间的边界。

# 概述

上层技能只依赖 [Provider] 接口：提交有序消息列表与可选的工具定义，
得到最终回答或一组工具调用请求。具体的模型服务由 [ProviderFactory]
按 [ModelInfo] 注入，不通过全局变量获取。

# 核心类型

  - [Provider]：Completion / Stream / Name / SupportsNativeFunctionCalling
  - [ChatRequest] / [ChatResponse] / [StreamChunk]：请求与响应模型
  - [ModelInfo] / [ModelMap]：模型上下文窗口、输出上限与按用途的模型映射
  - [ProviderFactory] / [StaticFactory]：模型工厂

# 流式累积

[AccumulateStream] 将增量分片折叠为一条 assistant 消息，拼接工具调用参数
片段并校验为合法 JSON。

# 子包

  - providers/openaicompat：OpenAI 兼容 HTTP Provider
  - sse：SSE 行读取
  - tokenizer：tiktoken 与估算分词器
  - tools：工具注册表与并发执行器
*/
package llm
