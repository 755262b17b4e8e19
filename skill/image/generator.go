package image

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/skillflow/config"
	"github.com/BaSui01/skillflow/llm/sse"
	"github.com/BaSui01/skillflow/types"
	"go.uber.org/zap"
)

// Request 一次生成请求
type Request struct {
	Endpoint       string
	APIKey         string
	Model          string
	Prompt         string
	Ratio          string
	ReferenceGenID string
}

// Generator 调用外部流式生成服务。失败不重试。
type Generator struct {
	client    *http.Client
	timeout   time.Duration
	maxBuffer int
	logger    *zap.Logger
}

// NewGenerator 创建生成器
func NewGenerator(client *http.Client, cfg config.ImageConfig, logger *zap.Logger) *Generator {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := config.DefaultImageConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxBufferBytes <= 0 {
		cfg.MaxBufferBytes = defaults.MaxBufferBytes
	}
	return &Generator{
		client:    client,
		timeout:   cfg.Timeout,
		maxBuffer: cfg.MaxBufferBytes,
		logger:    logger.With(zap.String("component", "image_generator")),
	}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Stream   bool          `json:"stream"`
	Model    string        `json:"model,omitempty"`
	Messages []wireMessage `json:"messages"`
}

// Generate 发送请求并读取流，两个标记都找到后提前返回。
// 超时且未找到 URL 时返回 RESULT_NOT_FOUND；已找到 URL 但缺少 gen_id 时仍视为成功。
func (g *Generator) Generate(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Result{}, types.NewError(types.ErrMissingPrompt, "image prompt is empty")
	}
	if strings.TrimSpace(req.APIKey) == "" {
		return Result{}, types.NewError(types.ErrMissingAPIKey, "image generation api key is not configured")
	}
	if strings.TrimSpace(req.Endpoint) == "" {
		return Result{}, types.NewError(types.ErrInvalidRequest, "image generation endpoint is not configured")
	}

	content, err := fencedPayload(req.Prompt, req.Ratio, req.ReferenceGenID)
	if err != nil {
		return Result{}, err
	}
	payload, err := json.Marshal(wireRequest{
		Stream:   true,
		Model:    req.Model,
		Messages: []wireMessage{{Role: "user", Content: content}},
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return Result{}, types.NewError(types.ErrInvalidRequest, "invalid image generation endpoint").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, types.NewError(types.ErrUpstreamTimeout,
				fmt.Sprintf("image generation did not respond within %s", g.timeout)).WithCause(err)
		}
		return Result{}, types.NewError(types.ErrUpstreamError, "image generation request failed").
			WithCause(err).WithHTTPStatus(http.StatusBadGateway)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		g.logger.Warn("image generation returned non-success status",
			zap.Int("status", resp.StatusCode), zap.String("body", strings.TrimSpace(string(snippet))))
		return Result{}, types.NewError(types.ErrUpstreamStatus,
			fmt.Sprintf("image generation returned HTTP %d", resp.StatusCode)).WithHTTPStatus(http.StatusBadGateway)
	}

	parser := NewStreamParser(g.maxBuffer)
	var parseErr error
	// 单行上限与缓冲区上限一致，无换行的流也不会越界读取
	scanErr := sse.ScanLimit(resp.Body, g.maxBuffer, func(ev sse.Event) bool {
		if parseErr = parser.Feed(ev); parseErr != nil {
			return false
		}
		return !parser.Complete()
	})
	res := parser.Result()

	g.logger.Debug("image stream finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("url_found", res.URL != ""),
		zap.Bool("gen_id_found", res.GenID != ""))

	switch {
	case parseErr != nil:
		return Result{}, parseErr
	case res.URL != "":
		return res, nil
	case errors.Is(scanErr, sse.ErrLineTooLong):
		return Result{}, types.NewError(types.ErrBufferOverflow,
			fmt.Sprintf("image stream exceeded %d bytes without a complete result", g.maxBuffer)).WithCause(scanErr)
	case scanErr != nil && (ctx.Err() != nil || errors.Is(scanErr, context.DeadlineExceeded)):
		return Result{}, types.NewError(types.ErrResultNotFound,
			fmt.Sprintf("no image url received within %s", g.timeout)).WithCause(scanErr)
	case scanErr != nil:
		return Result{}, types.NewError(types.ErrStreamReadFailed, "failed to read image generation stream").
			WithCause(scanErr).WithHTTPStatus(http.StatusBadGateway)
	default:
		return Result{}, types.NewError(types.ErrResultNotFound, "image generation stream contained no image url")
	}
}
