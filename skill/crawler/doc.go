// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package crawler 识别并抓取查询与上下文中的 URL，产出 types.Source。

# 核心类型

  - Crawler：按 BatchSize 分批、批内最多 Concurrency 个并发请求（errgroup.SetLimit），
    失败的 URL 被丢弃，结果保持输入顺序。Process 先抓上下文 URL 再抓查询 URL。
  - HTTPFetcher：net/http GET，带超时、User-Agent、内容长度上限与全局速率限制，
    使用 golang.org/x/net/html 提取标题与可见文本。
  - CachedFetcher / RedisSourceCache：基于 Redis 的抓取缓存，缓存故障时自动绕过。

# 辅助函数

  - ExtractURLs：从自由文本中识别 http(s) URL，去除结尾标点并去重
  - ValidateURL：拒绝非 http(s)、缺少主机名或格式错误的 URL
*/
package crawler
