package pagecache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/slogemann1/gemini-tagesschau-mirror/internal/logging"
)

const (
	DefaultTTL           = 1800 * time.Second
	DefaultSweepInterval = 6 * time.Hour
)

// Options configures a Cache. Zero values select the defaults.
type Options struct {
	TTL           time.Duration
	SweepInterval time.Duration
	Clock         func() time.Time
	Logger        *slog.Logger
}

// Cache applies the TTL policy on top of a Store. Store failures never reach
// callers: a failed read is a miss and a failed write is only logged.
//
// The last sweep time is shared by every connection. Retrieve, Store and a
// running sweep are not synchronized with each other; content is always
// regenerable, so a lost write or a page deleted mid-read only costs a render.
type Cache struct {
	store         Store
	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	logger        *slog.Logger

	lastSweep atomic.Int64 // unix nanoseconds, 0 = never
	renders   singleflight.Group
	sweeps    sync.WaitGroup
}

// New wraps store with the given options.
func New(store Store, opts Options) *Cache {
	c := &Cache{
		store:         store,
		ttl:           opts.TTL,
		sweepInterval: opts.SweepInterval,
		now:           opts.Clock,
		logger:        opts.Logger,
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.sweepInterval <= 0 {
		c.sweepInterval = DefaultSweepInterval
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = logging.NewDiscardLogger()
	}
	return c
}

// TTL returns the validity window of an entry.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Retrieve returns the cached content for key if it is still valid. Stale
// entries are erased as a side effect.
func (c *Cache) Retrieve(key string) (string, bool) {
	page, err := c.store.Get(key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Debug("cache read failed", "key", key, "error", err)
		}
		return "", false
	}

	if !page.ValidAt(c.now(), c.ttl) {
		if err := c.store.Erase(key); err != nil {
			c.logger.Debug("cache erase failed", "key", key, "error", err)
		}
		return "", false
	}
	return page.Content, true
}

// Store saves content under key, best effort.
func (c *Cache) Store(key, content string) {
	page := Page{Key: key, Content: content, LastWrite: c.now()}
	if err := c.store.Set(key, page); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// GetOrRender returns the cached page for key or renders, stores and returns
// a fresh one. Concurrent misses on the same key share a single render.
func (c *Cache) GetOrRender(ctx context.Context, key string, render func(context.Context) (string, error)) (string, error) {
	if content, ok := c.Retrieve(key); ok {
		c.logger.Debug("cache hit", "key", key)
		return content, nil
	}

	v, err, shared := c.renders.Do(key, func() (any, error) {
		content, err := render(ctx)
		if err != nil {
			return "", err
		}
		c.Store(key, content)
		return content, nil
	})
	if err != nil {
		return "", err
	}
	c.logger.Debug("cache miss rendered", "key", key, "shared", shared)
	return v.(string), nil
}

// AsyncSweep launches a background sweep if more than the sweep interval has
// passed since the previous one. It reports whether a sweep was launched;
// concurrent callers race on a compare-and-swap so at most one wins.
func (c *Cache) AsyncSweep() bool {
	now := c.now()
	last := c.lastSweep.Load()
	if last != 0 && now.Sub(time.Unix(0, last)) <= c.sweepInterval {
		return false
	}
	if !c.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return false
	}

	c.sweeps.Add(1)
	go func() {
		defer c.sweeps.Done()
		removed, err := c.Sweep()
		if err != nil {
			c.logger.Warn("cache sweep incomplete", "removed", removed, "error", err)
			return
		}
		c.logger.Info("cache sweep finished", "removed", removed)
	}()
	return true
}

// Sweep synchronously erases every invalid entry.
func (c *Cache) Sweep() (int, error) {
	return c.store.Sweep(c.now().Add(-c.ttl))
}

// Clear erases every entry.
func (c *Cache) Clear() error {
	return c.store.Clear()
}

// Wait blocks until launched sweeps have finished.
func (c *Cache) Wait() {
	c.sweeps.Wait()
}
