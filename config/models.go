package config

import "github.com/BaSui01/skillflow/llm"

// Info converts the model section into an llm.ModelInfo.
func (m ModelConfig) Info(provider string) llm.ModelInfo {
	return llm.ModelInfo{
		Name:         m.Name,
		Provider:     provider,
		ContextLimit: m.ContextLimit,
		MaxOutput:    m.MaxOutput,
		Capabilities: llm.ModelCapabilities{ToolCalling: m.ToolCalling},
	}
}

// ModelMap 构建按用途划分的模型映射，查询分析模型未配置时回退到对话模型
func (c LLMConfig) ModelMap() llm.ModelMap {
	m := llm.ModelMap{llm.ModelRoleChat: c.ChatModel.Info(c.Provider)}
	if c.QueryAnalysisModel.Name != "" {
		qa := c.QueryAnalysisModel
		if qa.ContextLimit == 0 {
			qa.ContextLimit = c.ChatModel.ContextLimit
		}
		m[llm.ModelRoleQueryAnalysis] = qa.Info(c.Provider)
	}
	return m
}
