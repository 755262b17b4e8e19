// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package image 实现图片生成技能 generateImage。

技能是单节点图：向外部服务发送流式请求，边读边把文本累积进 StreamParser，
每个分块之后在完整缓冲区上匹配 ![...](https://...) 与 gen_id: `...`，两者都找到即停止读取。
读取受超时与缓冲区上限约束。成功时依次发送 artifact、create_node 与助手消息；
失败时发送一个 error 事件和按错误类别区分的文字回复，不自动重试。
*/
package image
