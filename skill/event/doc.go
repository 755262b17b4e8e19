// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package event 定义技能运行期间推送给 UI 的事件流。

事件类型包括 log、structuredData（isPartial/chunkIndex/totalChunks 分块）、
artifact、create_node、error、stream 以及 end。

Emitter 的实现：

  - ChannelEmitter：带缓冲通道，供 WebSocket 推送使用，Close 只关闭一次
  - Recorder：内存记录，供同步 HTTP 响应与测试使用
  - Nop：丢弃全部事件
  - WithLogger：通过 zap 记录后转发
*/
package event
