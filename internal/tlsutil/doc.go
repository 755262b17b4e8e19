// Package tlsutil 提供集中式 TLS 配置，
// 为模型 Provider、URL 抓取和图片生成使用的 HTTP 客户端提供安全加固（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
