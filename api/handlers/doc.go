// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 skillflow HTTP API 的请求处理器实现。

# 核心类型

  - SkillHandler   - 技能列表与调用：JSON、SSE（text/event-stream）与 WebSocket 三种返回方式
  - HealthHandler  - 服务健康检查（/health, /healthz, /ready, /version）
  - Response       - 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo      - 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter - 包装 http.ResponseWriter 以捕获状态码

# 错误映射

types.Error 自带 HTTPStatus 时直接使用，否则按错误码映射：输入校验类为 400，
SKILL_NOT_FOUND 为 404，上游失败为 502/504，其余为 500。
流式调用开始后的失败以 error 事件推送，HTTP 状态保持 200。
*/
package handlers
