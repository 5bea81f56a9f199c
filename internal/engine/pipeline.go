package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/triage-ai/botsentry/internal/metrics"
	"go.uber.org/zap"
)

// PipelineConfig holds the tunables of the detection cascade.
type PipelineConfig struct {
	ConfidentThreshold float64       // Confidence >= this ends the cascade (default 0.7)
	RecordUnknown      bool          // Queue non-confident results for learning
	RecordTimeout      time.Duration // Upper bound on one unknown-bot write
}

// DefaultPipelineConfig returns the production defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		ConfidentThreshold: DefaultConfidentThreshold,
		RecordUnknown:      true,
		RecordTimeout:      250 * time.Millisecond,
	}
}

// Pipeline runs the known-pattern detector, then the heuristic detector,
// stopping at the first confident answer.
//
// Every result that is not confident is handed to the UnknownRecorder so the
// auto-learner can later promote it. A recorder failure is logged and never
// alters the returned result.
type Pipeline struct {
	known     KnownDetector
	heuristic HeuristicDetector
	recorder  UnknownRecorder // nil disables recording
	cfg       PipelineConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewPipeline wires the cascade. recorder may be nil.
func NewPipeline(known KnownDetector, heuristic HeuristicDetector, recorder UnknownRecorder, cfg PipelineConfig, logger *zap.Logger) *Pipeline {
	if cfg.ConfidentThreshold <= 0 {
		cfg.ConfidentThreshold = DefaultConfidentThreshold
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = 250 * time.Millisecond
	}
	return &Pipeline{
		known:     known,
		heuristic: heuristic,
		recorder:  recorder,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Threshold returns the confidence threshold the pipeline applies.
func (p *Pipeline) Threshold() float64 {
	return p.cfg.ConfidentThreshold
}

// Detect classifies a user agent. It never fails: storage problems degrade
// to a logged warning.
func (p *Pipeline) Detect(ctx context.Context, userAgent string) DetectionResult {
	start := p.now()
	result := p.cascade(ctx, userAgent)
	metrics.DetectionDuration.Observe(time.Since(start).Seconds())
	metrics.DetectionsTotal.WithLabelValues(string(result.Method), string(result.BotCategory), strconv.FormatBool(result.IsBot)).Inc()

	if !result.Confident(p.cfg.ConfidentThreshold) {
		p.record(ctx, userAgent, result)
	}
	return result
}

func (p *Pipeline) cascade(ctx context.Context, userAgent string) DetectionResult {
	var best *DetectionResult

	if p.known != nil {
		if r := p.known.Detect(ctx, userAgent); r != nil {
			best = r
			if r.Confident(p.cfg.ConfidentThreshold) {
				metrics.HeuristicShortCircuits.Inc()
				return *r
			}
		}
	}

	if p.heuristic != nil {
		h := p.heuristic.Detect(ctx, userAgent)
		if best == nil || h.Confidence > best.Confidence {
			best = &h
		}
		if h.Confident(p.cfg.ConfidentThreshold) {
			return h
		}
	}

	if best == nil {
		return UnknownResult()
	}
	return *best
}

func (p *Pipeline) record(ctx context.Context, userAgent string, r DetectionResult) {
	if p.recorder == nil || !p.cfg.RecordUnknown {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.RecordTimeout)
	defer cancel()

	err := p.recorder.RecordUnknown(ctx, UnknownObservation{
		UserAgent:  userAgent,
		IsBot:      r.IsBot,
		Confidence: r.Confidence,
		Method:     r.Method,
		BotName:    r.BotName,
		Indicators: r.Indicators,
		SeenAt:     p.now().UTC(),
	})
	if err != nil {
		metrics.UnknownRecorded.WithLabelValues("error").Inc()
		p.logger.Warn("failed to record unknown bot",
			zap.String("method", string(r.Method)),
			zap.Float64("confidence", r.Confidence),
			zap.Error(err),
		)
		return
	}
	metrics.UnknownRecorded.WithLabelValues("ok").Inc()
}
