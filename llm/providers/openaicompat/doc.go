// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package openaicompat 提供 OpenAI 兼容接口的模型 Provider 实现。

# 概述

Provider 通过 /v1/chat/completions 发起同步或 SSE 流式请求，将线上格式
转换为 types.Message，并把上游 HTTP 状态映射为结构化的 types.Error。

# 核心类型

  - Config   - 名称、BaseURL、APIKey、默认模型与超时
  - Provider - 实现 llm.Provider（Completion / Stream）
*/
package openaicompat
