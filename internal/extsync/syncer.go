// Package extsync imports bot patterns from public crawler databases.
package extsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/triage-ai/botsentry/internal/engine"
	"github.com/triage-ai/botsentry/internal/lease"
	"github.com/triage-ai/botsentry/internal/metrics"
	"github.com/triage-ai/botsentry/internal/pattern"
	"github.com/triage-ai/botsentry/internal/store"
)

// LeaseName identifies the sync run lock.
const LeaseName = "external-sync"

// maxBodyBytes bounds one feed download.
const maxBodyBytes = 16 << 20

// Source describes one external pattern feed.
type Source struct {
	Name    string `koanf:"name" validate:"required"`
	URL     string `koanf:"url" validate:"required,url"`
	Version string `koanf:"version"`
	Format  Format `koanf:"format" validate:"required,oneof=php_array json_map json_list"`
}

// DefaultSources is the feed list used when none is configured.
var DefaultSources = []Source{
	{
		Name:    "crawler-detect",
		URL:     "https://raw.githubusercontent.com/JayBizzle/Crawler-Detect/master/src/Fixtures/Crawlers.php",
		Version: "latest",
		Format:  FormatPHPArray,
	},
}

// SourceResult summarises one source in a sync run.
type SourceResult struct {
	PatternsAdded   int    `json:"patterns_added"`
	PatternsUpdated int    `json:"patterns_updated"`
	Total           int    `json:"total"`
	Err             string `json:"error,omitempty"`
}

// Store is the persistence the syncer needs.
type Store interface {
	FindPattern(ctx context.Context, pattern string) (*store.BotPattern, error)
	InsertPattern(ctx context.Context, np store.NewPattern) (*store.BotPattern, bool, error)
	UpdatePatternSource(ctx context.Context, id int64, source, version string) error
	RecordSyncRun(ctx context.Context, run store.SyncRun) (*store.SyncRun, error)
}

// Invalidator is notified when the catalog changed.
type Invalidator interface {
	Invalidate()
}

// Config tunes sync runs.
type Config struct {
	Timeout         time.Duration // per-source fetch timeout (default 30s)
	LeaseTTL        time.Duration // upper bound on one run
	BreakerFailures uint32        // consecutive failures before a source is short-circuited
	BreakerCooldown time.Duration // open breaker wait before a trial fetch
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		LeaseTTL:        30 * time.Minute,
		BreakerFailures: 3,
		BreakerCooldown: 6 * time.Hour,
	}
}

// Syncer fetches every configured source and merges its patterns into the
// catalog.
type Syncer struct {
	store    Store
	catalog  Invalidator
	locker   lease.Locker
	client   *http.Client
	sources  []Source
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
	cfg      Config
	logger   *zap.Logger
}

// New creates a Syncer. client may be nil.
func New(s Store, catalog Invalidator, locker lease.Locker, client *http.Client, sources []Source, cfg Config, logger *zap.Logger) *Syncer {
	d := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = d.LeaseTTL
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = d.BreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = d.BreakerCooldown
	}
	if client == nil {
		client = &http.Client{}
	}
	if locker == nil {
		locker = lease.NewLocalLocker()
	}

	breakers := make(map[string]*gobreaker.CircuitBreaker[[]byte], len(sources))
	for _, src := range sources {
		breakers[src.Name] = newBreaker(src.Name, cfg.BreakerFailures, cfg.BreakerCooldown, logger)
	}

	return &Syncer{
		store:    s,
		catalog:  catalog,
		locker:   locker,
		client:   client,
		sources:  sources,
		breakers: breakers,
		cfg:      cfg,
		logger:   logger,
	}
}

// Sources returns the configured feeds.
func (s *Syncer) Sources() []Source {
	return s.sources
}

// RunSync syncs every source and returns a result per source name. A failing
// source never stops the others. When another process holds the sync lease
// the run is skipped and the map is empty.
func (s *Syncer) RunSync(ctx context.Context) map[string]SourceResult {
	results := make(map[string]SourceResult, len(s.sources))

	release, err := s.locker.Acquire(ctx, LeaseName, s.cfg.LeaseTTL)
	if err != nil {
		if errors.Is(err, lease.ErrNotAcquired) {
			s.logger.Info("external sync already running elsewhere, skipping")
		} else {
			s.logger.Error("failed to acquire external sync lease", zap.Error(err))
		}
		return results
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release external sync lease", zap.Error(err))
		}
	}()

	changed := false
	for _, src := range s.sources {
		res := s.syncSource(ctx, src)
		results[src.Name] = res
		if res.PatternsAdded > 0 || res.PatternsUpdated > 0 {
			changed = true
		}
	}

	if changed && s.catalog != nil {
		s.catalog.Invalidate()
	}
	return results
}

func (s *Syncer) syncSource(ctx context.Context, src Source) SourceResult {
	version := src.Version
	if version == "" {
		version = "latest"
	}

	var res SourceResult
	body, err := s.fetch(ctx, src)
	var pairs []Pair
	if err == nil {
		pairs, err = Parse(src.Format, body)
	}
	if err == nil {
		res = s.apply(ctx, src.Name, version, pairs)
	} else {
		res.Err = err.Error()
	}

	status := store.SyncSuccess
	if res.Err != "" {
		status = store.SyncFailed
		s.logger.Warn("external source sync failed",
			zap.String("source", src.Name),
			zap.String("url", src.URL),
			zap.String("error", res.Err),
		)
	} else {
		s.logger.Info("external source synced",
			zap.String("source", src.Name),
			zap.String("version", version),
			zap.Int("added", res.PatternsAdded),
			zap.Int("updated", res.PatternsUpdated),
			zap.Int("total", res.Total),
		)
	}
	metrics.SyncRuns.WithLabelValues(src.Name, string(status)).Inc()

	_, err = s.store.RecordSyncRun(context.WithoutCancel(ctx), store.SyncRun{
		SourceName:    src.Name,
		SourceVersion: version,
		AddedCount:    res.PatternsAdded,
		UpdatedCount:  res.PatternsUpdated,
		TotalCount:    res.Total,
		Status:        status,
		ErrorMessage:  res.Err,
	})
	if err != nil {
		s.logger.Error("failed to record sync run", zap.String("source", src.Name), zap.Error(err))
	}
	return res
}

// fetch downloads a feed through the source's circuit breaker.
func (s *Syncer) fetch(ctx context.Context, src Source) ([]byte, error) {
	cb, ok := s.breakers[src.Name]
	if !ok {
		return nil, fmt.Errorf("fetch %s: no breaker for source", src.Name)
	}
	return cb.Execute(func() ([]byte, error) {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", src.Name, err)
		}
		req.Header.Set("User-Agent", "botsentry-sync/1.0")

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", src.Name, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch %s: %w: %d", src.Name, ErrHTTPStatus, resp.StatusCode)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", src.Name, err)
		}
		return body, nil
	})
}

// apply merges parsed pairs into the catalog.
func (s *Syncer) apply(ctx context.Context, source, version string, pairs []Pair) SourceResult {
	res := SourceResult{Total: len(pairs)}
	for _, pair := range pairs {
		p := pattern.Normalize(pair.Pattern)
		if _, err := pattern.Compile(p); err != nil {
			s.logger.Debug("skipping uncompilable source pattern",
				zap.String("source", source),
				zap.String("pattern", pair.Pattern),
				zap.Error(err),
			)
			metrics.SyncPatterns.WithLabelValues(source, "invalid").Inc()
			continue
		}

		outcome, err := s.upsert(ctx, source, version, pair.Name, p)
		if err != nil {
			s.logger.Warn("failed to store source pattern",
				zap.String("source", source),
				zap.String("pattern", p),
				zap.Error(err),
			)
			metrics.SyncPatterns.WithLabelValues(source, "error").Inc()
			continue
		}
		metrics.SyncPatterns.WithLabelValues(source, outcome).Inc()
		switch outcome {
		case "added":
			res.PatternsAdded++
		case "updated":
			res.PatternsUpdated++
		}
	}
	return res
}

// upsert records a feed pattern. A known pattern, active or deactivated, only
// has its source refreshed; deactivated entries stay deactivated.
func (s *Syncer) upsert(ctx context.Context, source, version, name, p string) (string, error) {
	existing, err := s.store.FindPattern(ctx, p)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "updated", s.store.UpdatePatternSource(ctx, existing.ID, source, version)
	}

	_, inserted, err := s.store.InsertPattern(ctx, store.NewPattern{
		Pattern:       p,
		PatternType:   store.PatternRegex,
		BotName:       name,
		BotCategory:   engine.CategoryOther,
		Priority:      engine.PriorityLow,
		Source:        source,
		SourceVersion: version,
	})
	if err != nil {
		return "", err
	}
	if !inserted {
		// An identical active pattern appeared since the lookup.
		return "updated", nil
	}
	return "added", nil
}
