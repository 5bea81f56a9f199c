package engine

import (
	"context"
	"time"
)

// KnownDetector matches a user agent against the pattern catalog.
// A nil result means no catalog entry matched.
// Implementations must not block on catalog writes.
type KnownDetector interface {
	Detect(ctx context.Context, userAgent string) *DetectionResult
}

// HeuristicDetector scores a user agent from structural signals.
// It always returns a result, even for empty input.
type HeuristicDetector interface {
	Detect(ctx context.Context, userAgent string) DetectionResult
}

// UnknownObservation is one non-confident classification to be queued for
// learning.
type UnknownObservation struct {
	UserAgent  string
	IsBot      bool
	Confidence float64
	Method     Method
	BotName    string
	Indicators []Indicator
	SeenAt     time.Time
}

// UnknownRecorder persists non-confident observations. Errors are reported
// to the caller but never change a detection outcome.
type UnknownRecorder interface {
	RecordUnknown(ctx context.Context, obs UnknownObservation) error
}
