package skill

import (
	"context"
	"net/http"

	"github.com/BaSui01/skillflow/config"
	"github.com/BaSui01/skillflow/internal/metrics"
	"github.com/BaSui01/skillflow/llm"
	"github.com/BaSui01/skillflow/llm/tokenizer"
	"github.com/BaSui01/skillflow/llm/tools"
	"github.com/BaSui01/skillflow/skill/crawler"
	"github.com/BaSui01/skillflow/skill/event"
	"github.com/BaSui01/skillflow/skill/knowledge"
	"github.com/BaSui01/skillflow/types"
	"go.uber.org/zap"
)

// Skill 一个以小型执行图实现的 AI 能力
type Skill interface {
	Name() string
	Description() string
	ConfigSchema() types.ConfigSchema
	// Invoke 执行一次调用。已通过事件流报告并降级处理的失败不应再作为错误返回。
	Invoke(ctx context.Context, in *Input, cfg *RunConfig) (*Output, error)
}

// Input 用户输入
type Input struct {
	Query  string   `json:"query"`
	Images []string `json:"images,omitempty"`
}

// RuntimeFlags 单次调用的运行开关。知识库检索由技能配置项控制
type RuntimeFlags struct {
	EnableWebCrawl         bool `json:"enableWebCrawl"`
	EnableMentionedContext bool `json:"enableMentionedContext"`
	ShouldSkipAnalysis     bool `json:"shouldSkipAnalysis"`
}

// DefaultRuntimeFlags 默认开启抓取与提及内容
func DefaultRuntimeFlags() RuntimeFlags {
	return RuntimeFlags{EnableWebCrawl: true, EnableMentionedContext: true}
}

// RunConfig 单次调用的配置，调用开始后只读
type RunConfig struct {
	RunID       string          `json:"runId,omitempty"`
	Locale      string          `json:"locale,omitempty"`
	Models      llm.ModelMap    `json:"models,omitempty"`
	Context     *types.Context  `json:"context,omitempty"`
	ChatHistory []types.Message `json:"chatHistory,omitempty"`
	ProjectID   string          `json:"projectId,omitempty"`
	Runtime     RuntimeFlags    `json:"runtime"`
	// Config 用户提交的技能配置值，由 Registry 按 ConfigSchema 解析到 Resolved
	Config   map[string]any       `json:"config,omitempty"`
	Resolved types.ResolvedConfig `json:"-"`
	Emitter  event.Emitter        `json:"-"`
}

// Output 调用结果
type Output struct {
	Skill     string           `json:"skill"`
	RunID     string           `json:"runId"`
	Answer    string           `json:"answer"`
	Messages  []types.Message  `json:"messages"`
	Artifacts []types.Artifact `json:"artifacts,omitempty"`
	Sources   []types.Source   `json:"sources,omitempty"`
	Usage     types.TokenUsage `json:"usage"`
	Steps     int              `json:"steps"`
}

// ToolClient 单次调用独占的外部工具客户端
type ToolClient interface {
	Registry() tools.Registry
	Close() error
}

// ToolClientFactory 为一次调用创建工具客户端
type ToolClientFactory func(ctx context.Context) (ToolClient, error)

// Deps 技能的全部外部依赖，构造时注入
type Deps struct {
	Logger      *zap.Logger
	Providers   llm.ProviderFactory
	Tokenizer   tokenizer.Tokenizer
	Crawler     *crawler.Crawler
	Knowledge   knowledge.Searcher
	ToolClients ToolClientFactory
	Metrics     *metrics.Collector
	HTTPClient  *http.Client
	Settings    config.SkillConfig
	Image       config.ImageConfig
}

// WithDefaults 补全缺省依赖
func (d Deps) WithDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Tokenizer == nil {
		d.Tokenizer = tokenizer.NewEstimatorTokenizer()
	}
	if d.HTTPClient == nil {
		d.HTTPClient = http.DefaultClient
	}
	defaults := config.DefaultSkillConfig()
	if d.Settings.RecursionLimit <= 0 {
		d.Settings.RecursionLimit = defaults.RecursionLimit
	}
	if d.Settings.MinBlockTokens <= 0 {
		d.Settings.MinBlockTokens = defaults.MinBlockTokens
	}
	if d.Settings.ToolParallelism <= 0 {
		d.Settings.ToolParallelism = defaults.ToolParallelism
	}
	if d.Settings.StructuredChunkSize <= 0 {
		d.Settings.StructuredChunkSize = defaults.StructuredChunkSize
	}
	if d.Settings.Locale == "" {
		d.Settings.Locale = defaults.Locale
	}
	imageDefaults := config.DefaultImageConfig()
	if d.Image.MaxBufferBytes <= 0 {
		d.Image.MaxBufferBytes = imageDefaults.MaxBufferBytes
	}
	if d.Image.Timeout <= 0 {
		d.Image.Timeout = imageDefaults.Timeout
	}
	if d.Image.AspectRatio == "" {
		d.Image.AspectRatio = imageDefaults.AspectRatio
	}
	return d
}

// LocaleOr 返回调用语言，未指定时返回 def
func (c *RunConfig) LocaleOr(def string) string {
	if c != nil && c.Locale != "" {
		return c.Locale
	}
	return def
}
