package crawler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/BaSui01/skillflow/internal/cache"
	"github.com/BaSui01/skillflow/internal/metrics"
	"github.com/BaSui01/skillflow/types"
	"go.uber.org/zap"
)

// SourceCache 以 URL 为键缓存抓取结果
type SourceCache interface {
	Get(ctx context.Context, url string) (types.Source, bool, error)
	Set(ctx context.Context, url string, src types.Source) error
}

// RedisSourceCache 基于 internal/cache 的来源缓存
type RedisSourceCache struct {
	manager *cache.Manager
	ttl     time.Duration
}

// NewRedisSourceCache 创建 Redis 来源缓存，ttl 为 0 时使用 manager 的默认过期时间。
func NewRedisSourceCache(manager *cache.Manager, ttl time.Duration) *RedisSourceCache {
	return &RedisSourceCache{manager: manager, ttl: ttl}
}

func sourceKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "crawl:" + hex.EncodeToString(sum[:16])
}

// Get implements SourceCache.
func (c *RedisSourceCache) Get(ctx context.Context, url string) (types.Source, bool, error) {
	var src types.Source
	err := c.manager.GetJSON(ctx, sourceKey(url), &src)
	if errors.Is(err, cache.ErrCacheMiss) {
		return types.Source{}, false, nil
	}
	if err != nil {
		return types.Source{}, false, err
	}
	return src, true, nil
}

// Set implements SourceCache.
func (c *RedisSourceCache) Set(ctx context.Context, url string, src types.Source) error {
	return c.manager.SetJSON(ctx, sourceKey(url), src, c.ttl)
}

// CachedFetcher 先查缓存再抓取；缓存读写失败只记录日志，不影响抓取。
type CachedFetcher struct {
	next    Fetcher
	cache   SourceCache
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewCachedFetcher 包装 Fetcher
func NewCachedFetcher(next Fetcher, c SourceCache, collector *metrics.Collector, logger *zap.Logger) *CachedFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedFetcher{
		next:    next,
		cache:   c,
		metrics: collector,
		logger:  logger.With(zap.String("component", "crawl_cache")),
	}
}

// Fetch implements Fetcher.
func (f *CachedFetcher) Fetch(ctx context.Context, url string) (types.Source, error) {
	src, ok, err := f.cache.Get(ctx, url)
	switch {
	case err != nil:
		f.logger.Warn("crawl cache get failed, bypassing", zap.String("url", url), zap.Error(err))
	case ok:
		f.metrics.RecordCacheHit("crawl")
		return src, nil
	default:
		f.metrics.RecordCacheMiss("crawl")
	}

	src, err = f.next.Fetch(ctx, url)
	if err != nil {
		return types.Source{}, err
	}
	if err := f.cache.Set(ctx, url, src); err != nil {
		f.logger.Warn("crawl cache set failed", zap.String("url", url), zap.Error(err))
	}
	return src, nil
}
