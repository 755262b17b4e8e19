// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 skillflow 服务端程序入口。

# 概述

cmd/skillflow 组装技能执行图所需的全部依赖（LLM provider、URL 抓取与
Redis 缓存、GORM 知识库、MCP 工具客户端），注册 agent 与 generateImage
两个技能，并通过 HTTP、SSE 与 WebSocket 对外提供调用接口。

# 核心类型

  - Server: 管理 API 与 Metrics 双端口、可选依赖及优雅关闭
  - Middleware: HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、version、health（--ready 检查依赖就绪）
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    MetricsMiddleware、RequestLogger、CORS、RateLimiter、APIKeyAuth
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
