// Package cachedquery wraps an indexedquery.Client with an L1 response
// cache, so repeated identical queries within the TTL window never reach
// the indexed source.
package cachedquery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/basegraph/intelengine/internal/port/cache"
	"github.com/basegraph/intelengine/internal/port/indexedquery"
)

// Client decorates an indexedquery.Client with a cache port, keyed by the
// record set and selection. A cache miss or decode failure falls through
// to the underlying client.
type Client struct {
	inner indexedquery.Client
	cache cache.Cache
	ttl   time.Duration
}

// New wraps inner with cache, caching successful query results for ttl.
func New(inner indexedquery.Client, c cache.Cache, ttl time.Duration) *Client {
	return &Client{inner: inner, cache: c, ttl: ttl}
}

// Query serves from the cache when present, otherwise delegates to inner
// and caches the raw response on success.
func (c *Client) Query(ctx context.Context, set indexedquery.RecordSet, sel indexedquery.Selection, out any) error {
	key, err := cacheKey(set, sel)
	if err != nil {
		return c.inner.Query(ctx, set, sel, out)
	}

	if raw, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		if json.Unmarshal(raw, out) == nil {
			return nil
		}
	}

	if err := c.inner.Query(ctx, set, sel, out); err != nil {
		return err
	}

	if raw, err := json.Marshal(out); err == nil {
		_ = c.cache.Set(ctx, key, raw, c.ttl)
	}
	return nil
}

// IsHealthy delegates to the wrapped client; health checks are never cached.
func (c *Client) IsHealthy(ctx context.Context) bool {
	return c.inner.IsHealthy(ctx)
}

func cacheKey(set indexedquery.RecordSet, sel indexedquery.Selection) (string, error) {
	encoded, err := json.Marshal(sel)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(encoded)
	return fmt.Sprintf("indexedquery:%s:%s", set, hex.EncodeToString(sum[:])), nil
}
