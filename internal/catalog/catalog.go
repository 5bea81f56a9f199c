// Package catalog keeps an immutable, ordered snapshot of the active bot
// pattern catalog in memory so detection never waits on the database.
package catalog

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/triage-ai/botsentry/internal/metrics"
	"github.com/triage-ai/botsentry/internal/store"
)

// Loader reads the active catalog from persistent storage.
type Loader interface {
	ListActivePatterns(ctx context.Context) ([]store.BotPattern, error)
}

// Catalog serves Snapshots with stale-while-revalidate semantics.
//
// A fresh snapshot is returned from an atomic pointer with no locking. Once
// the TTL passes, the stale snapshot is still returned and exactly one
// background goroutine reloads it. Invalidate forces the next read to reload
// synchronously so writers see their own changes.
type Catalog struct {
	loader  Loader
	ttl     time.Duration
	timeout time.Duration // bound on one background reload
	logger  *zap.Logger

	snap        atomic.Pointer[Snapshot]
	invalidated atomic.Bool
	refreshing  atomic.Bool // one background reload at a time
	group       singleflight.Group
	now         func() time.Time
}

// New creates a catalog. Nothing is loaded until the first Snapshot or
// Refresh call.
func New(loader Loader, ttl time.Duration, logger *zap.Logger) *Catalog {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Catalog{
		loader:  loader,
		ttl:     ttl,
		timeout: 10 * time.Second,
		logger:  logger,
		now:     time.Now,
	}
}

// Snapshot returns the current catalog. The first call, and the first call
// after Invalidate, load synchronously. If that load fails and an older
// snapshot exists, the older snapshot is returned.
func (c *Catalog) Snapshot(ctx context.Context) (*Snapshot, error) {
	s := c.snap.Load()
	if s == nil {
		return c.Refresh(ctx)
	}

	if c.invalidated.Load() {
		fresh, err := c.Refresh(ctx)
		if err != nil {
			c.logger.Warn("catalog reload after invalidation failed, serving previous snapshot", zap.Error(err))
			return s, nil
		}
		return fresh, nil
	}

	if c.now().Sub(s.LoadedAt) >= c.ttl && c.refreshing.CompareAndSwap(false, true) {
		go c.backgroundRefresh()
	}
	return s, nil
}

// Ready reports whether a snapshot has been loaded at least once.
func (c *Catalog) Ready() bool {
	return c.snap.Load() != nil
}

// Invalidate marks the current snapshot as outdated.
func (c *Catalog) Invalidate() {
	c.invalidated.Store(true)
}

// Refresh reloads the catalog from the loader and swaps it in. Concurrent
// callers share one load.
func (c *Catalog) Refresh(ctx context.Context) (*Snapshot, error) {
	v, err, _ := c.group.Do("catalog", func() (any, error) {
		// Cleared before the load so an Invalidate racing with it triggers
		// another reload.
		c.invalidated.Store(false)

		patterns, err := c.loader.ListActivePatterns(ctx)
		if err != nil {
			c.invalidated.Store(true)
			metrics.CatalogRefreshes.WithLabelValues("error").Inc()
			return nil, err
		}
		s := c.build(patterns)
		c.snap.Store(s)
		metrics.CatalogRefreshes.WithLabelValues("ok").Inc()
		metrics.CatalogPatterns.Set(float64(len(s.Entries)))
		metrics.CatalogInvalidPatterns.Set(float64(len(s.Invalid)))
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (c *Catalog) backgroundRefresh() {
	defer c.refreshing.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if _, err := c.Refresh(ctx); err != nil {
		c.logger.Warn("background catalog refresh failed", zap.Error(err))
	}
}

func (c *Catalog) build(patterns []store.BotPattern) *Snapshot {
	s := &Snapshot{
		Entries:  make([]Entry, 0, len(patterns)),
		LoadedAt: c.now(),
	}
	for _, p := range patterns {
		e, err := newEntry(p)
		if err != nil {
			c.logger.Warn("skipping invalid catalog pattern",
				zap.Int64("pattern_id", p.ID),
				zap.String("pattern", p.Pattern),
				zap.Error(err),
			)
			s.Invalid = append(s.Invalid, InvalidPattern{ID: p.ID, Pattern: p.Pattern, Err: err.Error()})
			continue
		}
		s.Entries = append(s.Entries, e)
	}
	sort.SliceStable(s.Entries, func(i, j int) bool {
		return s.Entries[i].less(&s.Entries[j])
	})
	return s
}

// Snapshot is an immutable, evaluation-ordered view of the active catalog.
type Snapshot struct {
	Entries  []Entry
	Invalid  []InvalidPattern
	LoadedAt time.Time
}

// InvalidPattern records a stored pattern that failed to compile.
type InvalidPattern struct {
	ID      int64  `json:"id"`
	Pattern string `json:"pattern"`
	Err     string `json:"error"`
}

// Match returns the first entry matching userAgent, or nil.
func (s *Snapshot) Match(ctx context.Context, userAgent string) *Entry {
	lower := strings.ToLower(userAgent)
	for i := range s.Entries {
		if i%64 == 0 && ctx.Err() != nil {
			return nil
		}
		if s.Entries[i].Match(userAgent, lower) {
			return &s.Entries[i]
		}
	}
	return nil
}
