package pagecache

import (
	"time"

	cachekey "github.com/always-cache/pagecache/pkg/cache-key"
	cacheupdate "github.com/always-cache/pagecache/pkg/cache-update"
)

// InvalidateRoutes removes every page whose key starts with one of the prefixes,
// so the next request for it is a miss. Empty prefixes are ignored, use ClearAll instead.
// It returns the number of removed pages.
func (c *Cache) InvalidateRoutes(prefixes ...string) int {
	removed := 0
	for _, prefix := range prefixes {
		if prefix == "" {
			continue
		}
		n := c.store.DeleteByPrefix(prefix)
		c.metrics.invalidation("prefix")
		c.log.Debug().Str("prefix", prefix).Int("removed", n).Msg("Invalidated routes")
		removed += n
	}
	return removed
}

// Invalidate removes the page for a single path, query included.
func (c *Cache) Invalidate(path string) {
	key := cachekey.KeyFromURI(path)
	c.store.Delete(key)
	c.metrics.invalidation("key")
	c.log.Debug().Str("key", key).Msg("Invalidated page")
}

// ClearAll removes every page.
func (c *Cache) ClearAll() {
	c.store.Clear()
	c.metrics.invalidation("clear")
	c.log.Debug().Msg("Cleared cache")
}

// applyUpdates invalidates the content named by Cache-Update headers,
// by prefix unless the update asks for the exact page.
// Delayed updates run on a timer and are not waited for.
func (c *Cache) applyUpdates(updates []cacheupdate.CacheUpdate) {
	for _, update := range updates {
		c.log.Trace().Str("update", update.Path).Bool("exact", update.Exact).Dur("delay", update.Delay).Msg("Updating cache based on header")
		apply := func() {
			if update.Exact {
				c.Invalidate(update.Path)
				return
			}
			c.InvalidateRoutes(update.Path)
		}
		if update.Delay > 0 {
			time.AfterFunc(update.Delay, apply)
			continue
		}
		apply()
	}
}
