// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、技能调用、图节点、工具调用、URL 抓取、LLM 与缓存。

# 概述

Collector 通过 promauto 注册指标，按 namespace 隔离。nil Collector
上的记录方法均为空操作，技能组件在未注入指标时无需判空。

# 主要能力

  - HTTP 指标：请求总数与耗时，状态码归类为 2xx/3xx/4xx/5xx
  - 技能指标：调用次数与耗时、每个节点的执行次数、工具调用结果
  - 抓取指标：按 ok/error/cached 统计
  - LLM 指标：请求总数、耗时与 prompt/completion Token 用量
  - 缓存指标：命中与未命中
*/
package metrics
