// =============================================================================
// 📦 skillflow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		LLM:       DefaultLLMConfig(),
		Skill:     DefaultSkillConfig(),
		Crawler:   DefaultCrawlerConfig(),
		Redis:     DefaultRedisConfig(),
		Knowledge: DefaultKnowledgeConfig(),
		Image:     DefaultImageConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "skillflow",
		SampleRate:   0.1,
	}
}

// DefaultLLMConfig 返回默认模型配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider: "openai",
		BaseURL:  "https://api.openai.com",
		Timeout:  60 * time.Second,
		ChatModel: ModelConfig{
			Name:         "gpt-4o-mini",
			ContextLimit: 128000,
			MaxOutput:    4096,
			ToolCalling:  true,
		},
	}
}

// DefaultSkillConfig 返回默认技能图配置
func DefaultSkillConfig() SkillConfig {
	return SkillConfig{
		Locale:              "en",
		RecursionLimit:      100,
		HistoryRatio:        0.4,
		SystemReserve:       1024,
		MinBlockTokens:      32,
		ToolParallelism:     4,
		StructuredChunkSize: 10,
		InvokeTimeout:       5 * time.Minute,
	}
}

// DefaultCrawlerConfig 返回默认抓取配置
func DefaultCrawlerConfig() CrawlerConfig {
	return CrawlerConfig{
		Enabled:          true,
		Concurrency:      5,
		BatchSize:        8,
		Timeout:          10 * time.Second,
		MaxContentLength: 2 << 20,
		RateLimitRPS:     0,
		UserAgent:        "skillflow-crawler/1.0",
		CacheTTL:         time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置（Addr 为空即不启用）
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultKnowledgeConfig 返回默认知识库配置
func DefaultKnowledgeConfig() KnowledgeConfig {
	return KnowledgeConfig{
		Enabled: true,
		Driver:  "sqlite",
		Path:    "skillflow.db",
		Limit:   5,
	}
}

// DefaultImageConfig 返回默认图片生成配置
func DefaultImageConfig() ImageConfig {
	return ImageConfig{
		AspectRatio:    "1:1",
		Timeout:        3 * time.Minute,
		MaxBufferBytes: 4 << 20,
	}
}
