// =============================================================================
// 📦 skillflow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("SKILLFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 skillflow 的完整配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
	LLM       LLMConfig       `yaml:"llm" env:"LLM"`
	Skill     SkillConfig     `yaml:"skill" env:"SKILL"`
	Crawler   CrawlerConfig   `yaml:"crawler" env:"CRAWLER"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Knowledge KnowledgeConfig `yaml:"knowledge" env:"KNOWLEDGE"`
	Image     ImageConfig     `yaml:"image" env:"IMAGE"`

	// MCP 工具服务器列表，仅支持 YAML 配置
	MCPServers []MCPServerConfig `yaml:"mcp_servers" env:"-"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时（流式接口不受此限制，见 handlers）
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 允许的 API Key，为空时不启用认证
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 允许跨域的来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// 每个客户端 IP 的限流（每秒请求数），<= 0 时不限流
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// LLMConfig 模型服务配置
type LLMConfig struct {
	// Provider 名称
	Provider string `yaml:"provider" env:"PROVIDER"`
	// OpenAI 兼容接口的基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 非流式请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 对话模型
	ChatModel ModelConfig `yaml:"chat_model" env:"CHAT_MODEL"`
	// 查询分析模型（为空时使用对话模型）
	QueryAnalysisModel ModelConfig `yaml:"query_analysis_model" env:"QUERY_ANALYSIS_MODEL"`
}

// ModelConfig 单个模型的上下文窗口与输出上限
type ModelConfig struct {
	Name         string `yaml:"name" env:"NAME"`
	ContextLimit int    `yaml:"context_limit" env:"CONTEXT_LIMIT"`
	MaxOutput    int    `yaml:"max_output" env:"MAX_OUTPUT"`
	ToolCalling  bool   `yaml:"tool_calling" env:"TOOL_CALLING"`
}

// SkillConfig 技能图执行配置
type SkillConfig struct {
	// 默认语言
	Locale string `yaml:"locale" env:"LOCALE"`
	// 图执行的最大步数
	RecursionLimit int `yaml:"recursion_limit" env:"RECURSION_LIMIT"`
	// 聊天历史最多占用上下文窗口的比例
	HistoryRatio float64 `yaml:"history_ratio" env:"HISTORY_RATIO"`
	// 为系统提示词预留的 token
	SystemReserve int `yaml:"system_reserve" env:"SYSTEM_RESERVE"`
	// 上下文块被截断时至少保留的 token
	MinBlockTokens int `yaml:"min_block_tokens" env:"MIN_BLOCK_TOKENS"`
	// 工具并发执行上限
	ToolParallelism int `yaml:"tool_parallelism" env:"TOOL_PARALLELISM"`
	// structuredData 事件每块的条目数
	StructuredChunkSize int `yaml:"structured_chunk_size" env:"STRUCTURED_CHUNK_SIZE"`
	// 单次调用的整体超时
	InvokeTimeout time.Duration `yaml:"invoke_timeout" env:"INVOKE_TIMEOUT"`
}

// CrawlerConfig URL 抓取配置
type CrawlerConfig struct {
	Enabled          bool          `yaml:"enabled" env:"ENABLED"`
	Concurrency      int           `yaml:"concurrency" env:"CONCURRENCY"`
	BatchSize        int           `yaml:"batch_size" env:"BATCH_SIZE"`
	Timeout          time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxContentLength int64         `yaml:"max_content_length" env:"MAX_CONTENT_LENGTH"`
	RateLimitRPS     float64       `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	UserAgent        string        `yaml:"user_agent" env:"USER_AGENT"`
	CacheTTL         time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// RedisConfig Redis 配置，Addr 为空时不启用抓取缓存
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// KnowledgeConfig 知识库配置
type KnowledgeConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 数据库驱动：sqlite（默认）、postgres、mysql
	Driver string `yaml:"driver" env:"DRIVER"`
	// sqlite 为文件路径（":memory:" 表示内存库），其他驱动为 DSN
	Path string `yaml:"path" env:"PATH"`
	// 每次检索返回的最大条数
	Limit int `yaml:"limit" env:"LIMIT"`
}

// ImageConfig 图片生成技能的默认配置，可被每次调用的技能配置覆盖
type ImageConfig struct {
	Endpoint       string        `yaml:"endpoint" env:"ENDPOINT"`
	APIKey         string        `yaml:"api_key" env:"API_KEY"`
	Model          string        `yaml:"model" env:"MODEL"`
	AspectRatio    string        `yaml:"aspect_ratio" env:"ASPECT_RATIO"`
	Timeout        time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxBufferBytes int           `yaml:"max_buffer_bytes" env:"MAX_BUFFER_BYTES"`
}

// MCPServerConfig 单个 MCP 工具服务器：Command 与 URL 二选一
type MCPServerConfig struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	lookupEnv  func(string) (string, bool)
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix: "SKILLFLOW",
		lookupEnv: os.LookupEnv,
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithEnvLookup 替换环境变量读取函数，主要用于测试
func (l *Loader) WithEnvLookup(fn func(string) (string, bool)) *Loader {
	l.lookupEnv = fn
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量，最后执行 Validate 与自定义验证器
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置，文件不存在时保留默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := l.lookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Skill.RecursionLimit <= 0 {
		errs = append(errs, "skill.recursion_limit must be positive")
	}
	if c.Skill.HistoryRatio < 0 || c.Skill.HistoryRatio > 1 {
		errs = append(errs, "skill.history_ratio must be between 0 and 1")
	}
	if c.Crawler.Concurrency <= 0 {
		errs = append(errs, "crawler.concurrency must be positive")
	}
	if c.Crawler.BatchSize <= 0 {
		errs = append(errs, "crawler.batch_size must be positive")
	}
	if c.LLM.ChatModel.ContextLimit <= 0 {
		errs = append(errs, "llm.chat_model.context_limit must be positive")
	}
	if c.Image.MaxBufferBytes <= 0 {
		errs = append(errs, "image.max_buffer_bytes must be positive")
	}
	for i, s := range c.MCPServers {
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("mcp_servers[%d]: name is required", i))
		}
		if (s.Command == "") == (s.URL == "") {
			errs = append(errs, fmt.Sprintf("mcp_servers[%d]: exactly one of command or url is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
