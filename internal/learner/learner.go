// Package learner promotes recurring, high-probability unknown user agents
// into the pattern catalog.
package learner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/triage-ai/botsentry/internal/engine"
	"github.com/triage-ai/botsentry/internal/lease"
	"github.com/triage-ai/botsentry/internal/metrics"
	"github.com/triage-ai/botsentry/internal/pattern"
	"github.com/triage-ai/botsentry/internal/store"
)

// LeaseName identifies the learner's run lock.
const LeaseName = "auto-learn"

// Store is the persistence the learner needs.
type Store interface {
	ListLearnable(ctx context.Context, minProbability float64, limit int) ([]store.UnknownBot, error)
	FindActivePattern(ctx context.Context, pattern string) (*store.BotPattern, error)
	InsertPattern(ctx context.Context, np store.NewPattern) (*store.BotPattern, bool, error)
	SetClassificationStatus(ctx context.Context, id int64, status store.ClassificationStatus) error
}

// Invalidator is notified when the catalog changed.
type Invalidator interface {
	Invalidate()
}

// Config tunes a learning run.
type Config struct {
	MinProbability float64       // default 0.85
	BatchSize      int           // default 100
	LeaseTTL       time.Duration // upper bound on one run
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinProbability: 0.85,
		BatchSize:      100,
		LeaseTTL:       10 * time.Minute,
	}
}

// Learner runs auto-learning batches.
type Learner struct {
	store   Store
	catalog Invalidator
	locker  lease.Locker
	cfg     Config
	logger  *zap.Logger
}

func New(s Store, catalog Invalidator, locker lease.Locker, cfg Config, logger *zap.Logger) *Learner {
	d := DefaultConfig()
	if cfg.MinProbability <= 0 {
		cfg.MinProbability = d.MinProbability
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = d.BatchSize
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = d.LeaseTTL
	}
	if locker == nil {
		locker = lease.NewLocalLocker()
	}
	return &Learner{store: s, catalog: catalog, locker: locker, cfg: cfg, logger: logger}
}

// ProcessPendingBots promotes eligible candidates and returns how many new
// patterns were created. When another process holds the run lease, the run
// is skipped and 0 is returned.
func (l *Learner) ProcessPendingBots(ctx context.Context) (int, error) {
	release, err := l.locker.Acquire(ctx, LeaseName, l.cfg.LeaseTTL)
	if errors.Is(err, lease.ErrNotAcquired) {
		l.logger.Info("auto-learn already running elsewhere, skipping")
		metrics.LearnerRuns.WithLabelValues("skipped").Inc()
		return 0, nil
	}
	if err != nil {
		metrics.LearnerRuns.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("ProcessPendingBots: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			l.logger.Warn("failed to release auto-learn lease", zap.Error(err))
		}
	}()

	candidates, err := l.store.ListLearnable(ctx, l.cfg.MinProbability, l.cfg.BatchSize)
	if err != nil {
		metrics.LearnerRuns.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("ProcessPendingBots: %w", err)
	}

	promoted := 0
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		status, err := l.learn(ctx, c)
		if status == store.StatusPromoted {
			promoted++
		}
		if err != nil {
			l.logger.Warn("failed to process unknown bot",
				zap.Int64("unknown_bot_id", c.ID),
				zap.String("user_agent", c.UserAgent),
				zap.Error(err),
			)
			metrics.LearnerCandidates.WithLabelValues("error").Inc()
			continue
		}
		metrics.LearnerCandidates.WithLabelValues(string(status)).Inc()
	}

	if promoted > 0 && l.catalog != nil {
		l.catalog.Invalidate()
	}

	l.logger.Info("auto-learn run complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("promoted", promoted),
	)
	metrics.LearnerRuns.WithLabelValues("ok").Inc()
	return promoted, ctx.Err()
}

// learn decides one candidate and records the decision.
func (l *Learner) learn(ctx context.Context, c store.UnknownBot) (store.ClassificationStatus, error) {
	name := pattern.ExtractBotName(c.UserAgent)
	if name == "" {
		return l.finish(ctx, c.ID, store.StatusRejected)
	}

	p := pattern.Generate(name)
	existing, err := l.store.FindActivePattern(ctx, p)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return l.finish(ctx, c.ID, store.StatusRejected)
	}

	_, inserted, err := l.store.InsertPattern(ctx, store.NewPattern{
		Pattern:     p,
		PatternType: store.PatternRegex,
		BotName:     name,
		BotCategory: engine.CategoryOther,
		Priority:    engine.PriorityMedium,
		Source:      store.SourceAutoLearned,
	})
	if err != nil {
		return "", err
	}
	if !inserted {
		// Lost a race with a concurrent writer.
		return l.finish(ctx, c.ID, store.StatusRejected)
	}

	l.logger.Info("learned bot pattern",
		zap.String("bot_name", name),
		zap.String("pattern", p),
		zap.Float64("probability", c.HeuristicBotProbability),
		zap.Int64("visits", c.VisitCount),
	)
	if err := l.store.SetClassificationStatus(ctx, c.ID, store.StatusPromoted); err != nil {
		// The pattern exists either way.
		return store.StatusPromoted, err
	}
	return store.StatusPromoted, nil
}

func (l *Learner) finish(ctx context.Context, id int64, status store.ClassificationStatus) (store.ClassificationStatus, error) {
	if err := l.store.SetClassificationStatus(ctx, id, status); err != nil {
		return "", err
	}
	return status, nil
}
