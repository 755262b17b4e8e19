package api

import (
	"github.com/BaSui01/skillflow/skill"
	"github.com/BaSui01/skillflow/skill/event"
	"github.com/BaSui01/skillflow/types"
)

// =============================================================================
// 技能调用类型
// =============================================================================

// SkillInfo 描述一个已注册的技能
// @Description 技能描述与配置项
type SkillInfo struct {
	// 技能名
	Name string `json:"name" example:"commonQnA"`
	// 说明
	Description string `json:"description"`
	// 可配置项
	ConfigSchema types.ConfigSchema `json:"configSchema"`
}

// RuntimeFlags 每次调用的开关，未设置的字段使用默认值
type RuntimeFlags struct {
	EnableWebCrawl         *bool `json:"enableWebCrawl,omitempty"`
	EnableMentionedContext *bool `json:"enableMentionedContext,omitempty"`
	ShouldSkipAnalysis     *bool `json:"shouldSkipAnalysis,omitempty"`
}

// Apply 把已设置的开关覆盖到 base 上
func (f *RuntimeFlags) Apply(base skill.RuntimeFlags) skill.RuntimeFlags {
	if f == nil {
		return base
	}
	if f.EnableWebCrawl != nil {
		base.EnableWebCrawl = *f.EnableWebCrawl
	}
	if f.EnableMentionedContext != nil {
		base.EnableMentionedContext = *f.EnableMentionedContext
	}
	if f.ShouldSkipAnalysis != nil {
		base.ShouldSkipAnalysis = *f.ShouldSkipAnalysis
	}
	return base
}

// InvokeRequest 调用技能的请求体
// @Description 技能调用请求
type InvokeRequest struct {
	// 用户查询（图片技能为提示词）
	Query string `json:"query" example:"What changed in Go 1.24?"`
	// 附带的图片 URL
	Images []string `json:"images,omitempty"`
	// 界面语言
	Locale string `json:"locale,omitempty" example:"en"`
	// 项目 ID，用于知识库过滤
	ProjectID string `json:"projectId,omitempty"`
	// 用户提及的上下文
	Context *types.Context `json:"context,omitempty"`
	// 之前的对话
	ChatHistory []types.Message `json:"chatHistory,omitempty"`
	// 运行开关
	Runtime *RuntimeFlags `json:"runtime,omitempty"`
	// 技能配置值，key 为配置项 key
	Config map[string]any `json:"config,omitempty"`
}

// InvokeResponse 非流式调用的结果
// @Description 技能调用结果
type InvokeResponse struct {
	Skill     string           `json:"skill"`
	RunID     string           `json:"runId"`
	Answer    string           `json:"answer"`
	Artifacts []types.Artifact `json:"artifacts,omitempty"`
	Sources   []types.Source   `json:"sources,omitempty"`
	Usage     types.TokenUsage `json:"usage"`
	Steps     int              `json:"steps"`
	// 调用期间发出的事件，按发出顺序
	Events []event.Event `json:"events,omitempty"`
}

// FromOutput 由技能输出构造响应
func FromOutput(out *skill.Output) InvokeResponse {
	if out == nil {
		return InvokeResponse{}
	}
	return InvokeResponse{
		Skill:     out.Skill,
		RunID:     out.RunID,
		Answer:    out.Answer,
		Artifacts: out.Artifacts,
		Sources:   out.Sources,
		Usage:     out.Usage,
		Steps:     out.Steps,
	}
}
