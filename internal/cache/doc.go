// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 cache 提供基于 Redis 的缓存管理能力，用于缓存已抓取的 URL 来源。

# 核心类型

  - Manager：缓存管理器，持有 Redis 客户端，提供 Get/Set/Delete/Ping
    以及 GetJSON/SetJSON 便捷序列化方法，所有 key 自动加前缀。
  - Config：地址、密码、连接池、默认 TTL 与 key 前缀。

# 错误语义

  - ErrCacheMiss：键不存在或已过期
  - ErrClosed：管理器已关闭，Close 可重复调用
*/
package cache
