// Package config 提供 skillflow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序加载，
// 覆盖服务、日志、遥测、模型、技能图、抓取、缓存、知识库、图片生成与 MCP 工具服务器。
package config
