// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package skill 定义技能接口、单次调用的运行配置与依赖注入结构，以及技能注册表。

# 核心类型

  - Skill：Name/Description/ConfigSchema/Invoke。
  - RunConfig：语言、模型表、上下文包、聊天历史、运行开关、解析后的配置与事件发射器。
  - Deps：日志、模型工厂、分词器、抓取器、知识库、工具客户端工厂与指标采集器，
    全部在构造时注入，不使用包级全局状态。
  - Registry：注册、查找、列出技能；Invoke 负责运行 ID、配置解析、指标、error 与 end 事件。

具体技能见 skill/agent（commonQnA）与 skill/image（generateImage）。
*/
package skill
