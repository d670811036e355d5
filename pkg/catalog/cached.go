package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL is how long a fetched catalog is served before refetching.
	DefaultTTL = 60 * time.Second
	// DefaultCacheKey names the cached document in a Store.
	DefaultCacheKey = "object_info"
)

// CachedSource serves a Source through a Store. Concurrent misses share one
// upstream fetch. Store failures are logged and never fail a fetch.
type CachedSource struct {
	source Source
	store  Store
	ttl    time.Duration
	key    string
	group  singleflight.Group
}

// NewCachedSource wraps source. A ttl of zero uses DefaultTTL and an empty
// key uses DefaultCacheKey.
func NewCachedSource(source Source, store Store, ttl time.Duration, key string) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if key == "" {
		key = DefaultCacheKey
	}
	return &CachedSource{source: source, store: store, ttl: ttl, key: key}
}

func (c *CachedSource) Fetch(ctx context.Context) (*Document, error) {
	if raw, ok, err := c.store.Get(ctx, c.key); err != nil {
		slog.Warn("catalog cache read failed", "key", c.key, "error", err)
	} else if ok {
		if doc, err := Parse(raw); err == nil {
			slog.Debug("catalog cache hit", "key", c.key)
			return doc, nil
		}
		slog.Warn("catalog cache entry unreadable; refetching", "key", c.key)
	}

	// The shared fetch runs detached from the caller that started it and each
	// caller waits on its own ctx. HTTPSource bounds the upstream call.
	ch := c.group.DoChan(c.key, func() (any, error) {
		fetchCtx := context.WithoutCancel(ctx)
		doc, err := c.source.Fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(fetchCtx, c.key, doc.Raw(), c.ttl); err != nil {
			slog.Warn("catalog cache write failed", "key", c.key, "error", err)
		}
		slog.Info("catalog fetched", "key", c.key, "nodes", doc.Len(), "ttl", c.ttl)
		return doc, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("catalog fetch: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("catalog fetch: %w", res.Err)
		}
		if res.Shared {
			slog.Debug("catalog fetch shared", "key", c.key)
		}
		return res.Val.(*Document), nil
	}
}

// Invalidate drops the cached document so the next Fetch goes upstream.
func (c *CachedSource) Invalidate(ctx context.Context) error {
	return c.store.Delete(ctx, c.key)
}
