// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package prompt 组装发送给对话模型的最终消息列表，并提供内置的本地化提示词模块。
package prompt
