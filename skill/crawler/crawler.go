package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/skillflow/internal/metrics"
	"github.com/BaSui01/skillflow/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// 默认并发与批大小
const (
	DefaultConcurrency = 5
	DefaultBatchSize   = 8
)

func errInvalidURL(raw, reason string) error {
	return types.Errorf(types.ErrInvalidRequest, "invalid url %q: %s", raw, reason)
}

// Fetcher 抓取单个 URL 并返回来源
type Fetcher interface {
	Fetch(ctx context.Context, url string) (types.Source, error)
}

// FetcherFunc 函数适配器
type FetcherFunc func(ctx context.Context, url string) (types.Source, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, url string) (types.Source, error) { return f(ctx, url) }

// Options 抓取参数，零值使用默认值
type Options struct {
	Concurrency int
	BatchSize   int
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// Result Process 的结果
type Result struct {
	// 上下文 URL 来源在前，查询中识别的 URL 来源在后
	Sources        []types.Source `json:"sources"`
	ContextSources []types.Source `json:"contextSources,omitempty"`
	QuerySources   []types.Source `json:"querySources,omitempty"`
	DetectedURLs   []string       `json:"detectedUrls,omitempty"`
}

// Crawler 分批、限并发地抓取 URL。单个 URL 失败只会被丢弃，不影响整批。
type Crawler struct {
	fetcher  Fetcher
	defaults Options
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// New 创建 Crawler
func New(fetcher Fetcher, collector *metrics.Collector, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		fetcher: fetcher,
		metrics: collector,
		logger:  logger.With(zap.String("component", "crawler")),
	}
}

// WithDefaults 设置调用方未指定参数时使用的抓取参数
func (c *Crawler) WithDefaults(opts Options) *Crawler {
	c.defaults = opts
	return c
}

// Crawl 抓取 urls：按 BatchSize 分批，批内最多 Concurrency 个请求同时进行。
// 结果保持输入顺序，失败的 URL 被丢弃。只有 ctx 被取消时返回错误。
func (c *Crawler) Crawl(ctx context.Context, urls []string, opts Options) ([]types.Source, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = c.defaults.Concurrency
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = c.defaults.BatchSize
	}
	opts = opts.withDefaults()
	candidates := make([]string, 0, len(urls))
	for _, u := range Dedupe(urls) {
		if err := ValidateURL(u); err != nil {
			c.logger.Debug("skip invalid url", zap.String("url", u), zap.Error(err))
			continue
		}
		candidates = append(candidates, u)
	}

	var sources []types.Source
	for start := 0; start < len(candidates); start += opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return sources, types.NewError(types.ErrCanceled, "crawl canceled").WithCause(err)
		}
		end := min(start+opts.BatchSize, len(candidates))
		sources = append(sources, c.crawlBatch(ctx, candidates[start:end], opts.Concurrency)...)
	}
	return sources, nil
}

func (c *Crawler) crawlBatch(ctx context.Context, batch []string, concurrency int) []types.Source {
	results := make([]*types.Source, len(batch))

	// errgroup 只用于限流与等待；fetch 失败不返回错误，避免取消同批其他请求
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, u := range batch {
		g.Go(func() error {
			start := time.Now()
			src, err := c.fetcher.Fetch(gctx, u)
			if err != nil {
				c.metrics.RecordCrawlFetch("error")
				c.logger.Warn("fetch failed, dropping url",
					zap.String("url", u),
					zap.Duration("duration", time.Since(start)),
					zap.Error(err),
				)
				return nil
			}
			c.metrics.RecordCrawlFetch("success")
			if src.URL == "" {
				src.URL = u
			}
			if src.Kind == "" {
				src.Kind = types.SourceKindURL
			}
			results[i] = &src
			return nil
		})
	}
	_ = g.Wait()

	out := make([]types.Source, 0, len(batch))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// Process 先抓取上下文 URL，再抓取查询中识别出的 URL（已在上下文中的跳过），
// 合并结果为上下文来源在前、查询来源在后。
func (c *Crawler) Process(ctx context.Context, query string, contextURLs []string, opts Options) (*Result, error) {
	res := &Result{}

	ctxURLs := Dedupe(contextURLs)
	contextSources, err := c.Crawl(ctx, ctxURLs, opts)
	if err != nil {
		return nil, fmt.Errorf("crawl context urls: %w", err)
	}
	res.ContextSources = contextSources

	known := make(map[string]struct{}, len(ctxURLs))
	for _, u := range ctxURLs {
		known[u] = struct{}{}
	}
	var queryURLs []string
	for _, u := range ExtractURLs(query) {
		if _, dup := known[u]; dup {
			continue
		}
		queryURLs = append(queryURLs, u)
	}
	res.DetectedURLs = queryURLs

	querySources, err := c.Crawl(ctx, queryURLs, opts)
	if err != nil {
		return nil, fmt.Errorf("crawl query urls: %w", err)
	}
	res.QuerySources = querySources

	res.Sources = make([]types.Source, 0, len(contextSources)+len(querySources))
	res.Sources = append(res.Sources, contextSources...)
	res.Sources = append(res.Sources, querySources...)

	c.logger.Info("urls processed",
		zap.Int("context_urls", len(ctxURLs)),
		zap.Int("query_urls", len(queryURLs)),
		zap.Int("sources", len(res.Sources)),
	)
	return res, nil
}
