package adminserver

import (
	"context"
	"strconv"

	"github.com/tm2pc/txmanager/internal/tm2pc"
	"github.com/tm2pc/txmanager/pkg/cache"
)

// CacheAdapter satisfies tm2pc's cacheInvalidator seam on top of
// pkg/cache.Cache, invalidating the read-through key a host wraps
// TM.GetOrder with (see tm2pc.GetOrder's doc comment: caching lives
// outside the core, by wrapping TM, not inside it).
type CacheAdapter struct {
	cache   cache.Cache
	builder *cache.CacheKeyBuilder
}

func NewCacheAdapter(c cache.Cache, keyPrefix string) *CacheAdapter {
	if keyPrefix == "" {
		keyPrefix = cache.DefaultNamespace + ":order"
	}
	return &CacheAdapter{cache: c, builder: cache.NewCacheKeyBuilder(keyPrefix)}
}

func (a *CacheAdapter) OrderKey(toid tm2pc.Toid) string {
	return a.builder.Build(strconv.FormatUint(uint64(toid), 10))
}

func (a *CacheAdapter) InvalidateOrder(ctx context.Context, toid tm2pc.Toid) {
	_ = a.cache.Delete(ctx, a.OrderKey(toid))
}
