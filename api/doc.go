// Package api 定义 skillflow HTTP API 的请求与响应类型。
//
// # API Overview
//
//   - GET  /api/v1/skills                列出已注册的技能与配置项
//   - POST /api/v1/skills/{name}/invoke  调用技能；Accept: text/event-stream 时以 SSE 推送事件
//   - GET  /api/v1/skills/{name}/ws      WebSocket：发送一条 InvokeRequest，接收事件流
//   - GET  /health, /healthz, /ready     健康检查
//
// # Authentication
//
// 配置了 server.api_keys 时，除健康检查外的端点需要 X-API-Key 头。
package api
