package crawler

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/skillflow/config"
	"github.com/BaSui01/skillflow/internal/tlsutil"
	"github.com/BaSui01/skillflow/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPFetcherConfig HTTP 抓取配置
type HTTPFetcherConfig struct {
	Timeout          time.Duration
	UserAgent        string
	MaxContentLength int64
	// RateLimitRPS > 0 时对所有请求施加全局速率限制
	RateLimitRPS float64
}

// DefaultHTTPFetcherConfig 返回默认抓取配置
func DefaultHTTPFetcherConfig() HTTPFetcherConfig {
	return HTTPFetcherConfig{
		Timeout:          10 * time.Second,
		UserAgent:        "skillflow-crawler/1.0",
		MaxContentLength: 2 << 20,
	}
}

// FetcherConfigFrom 由 config.CrawlerConfig 构造抓取配置
func FetcherConfigFrom(cc config.CrawlerConfig) HTTPFetcherConfig {
	cfg := DefaultHTTPFetcherConfig()
	if cc.Timeout > 0 {
		cfg.Timeout = cc.Timeout
	}
	if cc.UserAgent != "" {
		cfg.UserAgent = cc.UserAgent
	}
	if cc.MaxContentLength > 0 {
		cfg.MaxContentLength = cc.MaxContentLength
	}
	cfg.RateLimitRPS = cc.RateLimitRPS
	return cfg
}

// HTTPFetcher 通过 HTTP GET 抓取页面，将 HTML 转为标题与可见文本。
type HTTPFetcher struct {
	cfg     HTTPFetcherConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewHTTPFetcher 创建 HTTP 抓取器
func NewHTTPFetcher(cfg HTTPFetcherConfig, logger *zap.Logger) *HTTPFetcher {
	def := DefaultHTTPFetcherConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = def.MaxContentLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &HTTPFetcher{
		cfg:    cfg,
		client: tlsutil.NewHTTPClient(tlsutil.ClientOptions{Timeout: cfg.Timeout, MaxConnsPerHost: 4}),
		logger: logger.With(zap.String("component", "http_fetcher")),
	}
	if cfg.RateLimitRPS > 0 {
		burst := max(1, int(cfg.RateLimitRPS))
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}
	return f
}

// WithClient 替换底层 HTTP 客户端（测试用）
func (f *HTTPFetcher) WithClient(c *http.Client) *HTTPFetcher {
	f.client = c
	return f
}

// Fetch implements Fetcher. 非 2xx 状态与读取失败都返回错误。
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (types.Source, error) {
	if err := ValidateURL(url); err != nil {
		return types.Source{}, err
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return types.Source{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.Source{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return types.Source{}, types.NewError(types.ErrUpstreamError, "fetching url").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.Source{}, types.Errorf(types.ErrUpstreamStatus, "fetch %s: HTTP %d", url, resp.StatusCode).
			WithHTTPStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxContentLength))
	if err != nil {
		return types.Source{}, types.NewError(types.ErrStreamReadFailed, "reading response").WithCause(err)
	}

	src := types.Source{
		URL:  url,
		Kind: types.SourceKindURL,
		Metadata: map[string]any{
			"status":      resp.StatusCode,
			"contentType": resp.Header.Get("Content-Type"),
		},
	}
	if isHTML(resp.Header.Get("Content-Type"), body) {
		page := ExtractHTML(body)
		src.Title = page.Title
		src.PageContent = page.Text
	} else {
		src.PageContent = strings.TrimSpace(string(body))
	}
	if src.Title == "" {
		src.Title = url
	}
	f.logger.Debug("url fetched", zap.String("url", url), zap.Int("bytes", len(body)))
	return src, nil
}

func isHTML(contentType string, body []byte) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt == "text/html" || mt == "application/xhtml+xml"
	}
	return strings.Contains(http.DetectContentType(body), "text/html")
}
