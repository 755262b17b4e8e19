// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package knowledge 提供知识库检索。

Store 把文档保存在 GORM 管理的表中（默认纯 Go sqlite，也可配置 postgres、mysql），
Search 对查询分词后用 LIKE 取候选，再按命中次数打分排序，结果以
KindKnowledge 类型的 types.Source 返回。上下文准备只依赖 Searcher 接口。
*/
package knowledge
