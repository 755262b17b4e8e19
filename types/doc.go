// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 skillflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 llm、skill、api 等上层
模块提供统一的类型契约，避免循环依赖。

# 核心类型

  - Message / ToolCall  - 对话消息与模型发起的工具调用
  - ToolSchema          - 工具定义（name + description + JSON Schema parameters）
  - ToolResult          - 工具执行结果，可转换为 tool 角色消息
  - Error / ErrorCode   - 结构化错误体系，含 HTTP 状态码与 Retryable 标记
  - Context             - 一次技能调用的上下文包（内容、资源、画布、项目、历史消息、网页来源）
  - Source              - 归一化的检索内容（URL、标题、正文），供模型上下文与 UI 引用
  - Artifact / CanvasNode - 技能执行产出的 UI 结果描述
  - ConfigSchema        - 技能的只读配置项声明（输入模式、默认值、本地化标签）

# 主要能力

  - Context 传播：WithTraceID / WithRunID / WithUserID / WithSkillName
  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode
*/
package types
