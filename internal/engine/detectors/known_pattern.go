package detectors

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/triage-ai/botsentry/internal/catalog"
	"github.com/triage-ai/botsentry/internal/engine"
)

// SnapshotSource provides the current catalog snapshot.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*catalog.Snapshot, error)
}

// KnownPatternDetector matches user agents against the active catalog.
type KnownPatternDetector struct {
	source SnapshotSource
	logger *zap.Logger
}

func NewKnownPatternDetector(source SnapshotSource, logger *zap.Logger) *KnownPatternDetector {
	return &KnownPatternDetector{source: source, logger: logger}
}

// Detect returns a full-confidence result for the first matching entry, or
// nil when nothing matches or the catalog cannot be read.
func (d *KnownPatternDetector) Detect(ctx context.Context, userAgent string) *engine.DetectionResult {
	if strings.TrimSpace(userAgent) == "" {
		return nil
	}

	snap, err := d.source.Snapshot(ctx)
	if err != nil {
		d.logger.Warn("pattern catalog unavailable", zap.Error(err))
		return nil
	}

	e := snap.Match(ctx, userAgent)
	if e == nil {
		return nil
	}
	r := engine.NewKnownResult(e.KnownMatch())
	return &r
}
