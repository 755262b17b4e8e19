// =============================================================================
// OpenAI-Compatible Provider
// =============================================================================
// Chat completions client for any endpoint speaking the OpenAI wire format.
// Used as the default model backend for every skill.
// =============================================================================

package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/skillflow/internal/tlsutil"
	"github.com/BaSui01/skillflow/llm"
	"github.com/BaSui01/skillflow/llm/sse"
	"github.com/BaSui01/skillflow/types"
	"go.uber.org/zap"
)

// Config holds the configuration for an OpenAI-compatible provider.
type Config struct {
	// ProviderName is the unique identifier for this provider.
	ProviderName string

	// APIKey is the bearer token sent with each request.
	APIKey string

	// BaseURL is the base URL of the API (e.g., "https://api.openai.com").
	BaseURL string

	// DefaultModel is used when the request has no model.
	DefaultModel string

	// Timeout bounds non-streaming requests. Defaults to 60s if zero.
	Timeout time.Duration

	// EndpointPath defaults to "/v1/chat/completions".
	EndpointPath string

	// SupportsTools indicates native function calling. Defaults to true.
	SupportsTools *bool
}

// Provider talks to an OpenAI-compatible chat completions endpoint.
type Provider struct {
	Cfg    Config
	Client *http.Client
	Logger *zap.Logger
}

// New creates a new OpenAI-compatible provider with the given config.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = "openai-compatible"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		Cfg: cfg,
		// 流式请求依赖 ctx 控制超时，客户端本身不设总超时
		Client: tlsutil.NewHTTPClient(tlsutil.ClientOptions{}),
		Logger: logger.With(zap.String("component", "openaicompat"), zap.String("provider", cfg.ProviderName)),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.Cfg.ProviderName }

// SupportsNativeFunctionCalling returns whether this provider supports tool calling.
func (p *Provider) SupportsNativeFunctionCalling() bool {
	if p.Cfg.SupportsTools != nil {
		return *p.Cfg.SupportsTools
	}
	return true
}

func (p *Provider) endpoint() string {
	return strings.TrimRight(p.Cfg.BaseURL, "/") + p.Cfg.EndpointPath
}

func (p *Provider) buildBody(req *llm.ChatRequest, stream bool) wireRequest {
	model := req.Model
	if model == "" {
		model = p.Cfg.DefaultModel
	}
	body := wireRequest{
		Model:       model,
		Messages:    toWireMessages(req.Messages),
		Tools:       toWireTools(req.Tools),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
		Stream:      stream,
	}
	if req.ToolChoice != "" && len(body.Tools) > 0 {
		body.ToolChoice = req.ToolChoice
	}
	return body
}

func (p *Provider) post(ctx context.Context, body wireRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.Cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.Cfg.APIKey)
	}
	if body.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, err.Error()).
			WithCause(err).WithHTTPStatus(http.StatusBadGateway).WithRetryable(true).WithProvider(p.Name())
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg := readErrorMessage(resp.Body)
		p.Logger.Warn("upstream error", zap.Int("status", resp.StatusCode), zap.String("message", msg))
		return nil, mapHTTPError(resp.StatusCode, msg, p.Name())
	}
	return resp, nil
}

// Completion performs a non-streaming chat completion.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	timeout := p.Cfg.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := p.post(ctx, p.buildBody(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wr wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "malformed completion response").
			WithCause(err).WithHTTPStatus(http.StatusBadGateway).WithProvider(p.Name())
	}

	out := &llm.ChatResponse{ID: wr.ID, Provider: p.Name(), Model: wr.Model}
	for _, c := range wr.Choices {
		out.Choices = append(out.Choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      fromWireMessage(c.Message),
		})
	}
	if wr.Usage != nil {
		out.Usage = types.TokenUsage{
			PromptTokens:     wr.Usage.PromptTokens,
			CompletionTokens: wr.Usage.CompletionTokens,
			TotalTokens:      wr.Usage.TotalTokens,
		}
	}
	if wr.Created != 0 {
		out.CreatedAt = time.Unix(wr.Created, 0)
	}
	return out, nil
}

// Stream performs a streaming chat completion via SSE.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	resp, err := p.post(ctx, p.buildBody(req, true))
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer resp.Body.Close()
		defer close(ch)

		send := func(c llm.StreamChunk) bool {
			select {
			case <-ctx.Done():
				return false
			case ch <- c:
				return true
			}
		}
		// OpenAI 只在首个分片给出工具调用 ID，后续分片仅带 index
		callIDs := make(map[int]string)

		scanErr := sse.Scan(resp.Body, func(ev sse.Event) bool {
			if ev.Raw {
				return true
			}
			var wr wireResponse
			if err := json.Unmarshal([]byte(ev.Data), &wr); err != nil {
				send(llm.StreamChunk{Err: types.NewError(types.ErrUpstreamError, "malformed stream chunk").
					WithCause(err).WithProvider(p.Name())})
				return false
			}
			for _, choice := range wr.Choices {
				chunk := llm.StreamChunk{
					ID:           wr.ID,
					Provider:     p.Name(),
					Model:        wr.Model,
					Index:        choice.Index,
					FinishReason: choice.FinishReason,
					Delta:        types.Message{Role: types.RoleAssistant},
				}
				if choice.Delta != nil {
					chunk.Delta.Content = choice.Delta.Content
					for i, tc := range choice.Delta.ToolCalls {
						idx := i
						if tc.Index != nil {
							idx = *tc.Index
						}
						if tc.ID != "" {
							callIDs[idx] = tc.ID
						}
						chunk.Delta.ToolCalls = append(chunk.Delta.ToolCalls, types.ToolCall{
							ID:        callIDs[idx],
							Name:      tc.Function.Name,
							Arguments: json.RawMessage(tc.Function.Arguments),
						})
					}
				}
				if !send(chunk) {
					return false
				}
			}
			if wr.Usage != nil {
				return send(llm.StreamChunk{Provider: p.Name(), Usage: &types.TokenUsage{
					PromptTokens:     wr.Usage.PromptTokens,
					CompletionTokens: wr.Usage.CompletionTokens,
					TotalTokens:      wr.Usage.TotalTokens,
				}})
			}
			return true
		})
		if errors.Is(scanErr, sse.ErrLineTooLong) {
			send(llm.StreamChunk{Err: types.NewError(types.ErrBufferOverflow, scanErr.Error()).
				WithCause(scanErr).WithProvider(p.Name())})
			return
		}
		if scanErr != nil && ctx.Err() == nil {
			send(llm.StreamChunk{Err: types.NewError(types.ErrStreamReadFailed, scanErr.Error()).
				WithCause(scanErr).WithRetryable(true).WithProvider(p.Name())})
		}
	}()
	return ch, nil
}
