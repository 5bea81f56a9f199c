package detectors

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/triage-ai/botsentry/internal/engine"
	"github.com/triage-ai/botsentry/internal/pattern"
)

// Pre-compiled signals, compiled once at startup.
var (
	documentationURLRe = regexp.MustCompile(`\(\+https?://[^)]+\)|\+https?://\S+`)

	keywordIndicators = []struct {
		keyword   string
		indicator engine.Indicator
	}{
		{"bot", engine.IndicatorKeywordBot},
		{"crawler", engine.IndicatorKeywordCrawler},
		{"spider", engine.IndicatorKeywordSpider},
		{"scraper", engine.IndicatorKeywordScraper},
	}
)

// DefaultUnitWeight is the confidence contributed by each distinct signal.
const DefaultUnitWeight = 0.4

// HeuristicConfig tunes the heuristic scorer.
type HeuristicConfig struct {
	UnitWeight         float64 // confidence per distinct indicator
	ConfidentThreshold float64 // results below this that claim a bot need review
}

// DefaultHeuristicConfig returns the production weights.
func DefaultHeuristicConfig() HeuristicConfig {
	return HeuristicConfig{
		UnitWeight:         DefaultUnitWeight,
		ConfidentThreshold: engine.DefaultConfidentThreshold,
	}
}

// Validate checks that one signal alone stays below the threshold and two
// signals reach it.
func (c HeuristicConfig) Validate() error {
	if c.ConfidentThreshold <= 0 || c.ConfidentThreshold > 1 {
		return fmt.Errorf("confident threshold must be in (0,1], got %v", c.ConfidentThreshold)
	}
	if c.UnitWeight >= c.ConfidentThreshold || c.UnitWeight*2 < c.ConfidentThreshold {
		return fmt.Errorf("unit weight %v must satisfy threshold/2 <= w < threshold (%v)", c.UnitWeight, c.ConfidentThreshold)
	}
	return nil
}

// HeuristicDetector scores user agents that no catalog entry names, counting
// structural signals automated agents leave behind.
type HeuristicDetector struct {
	cfg HeuristicConfig
}

func NewHeuristicDetector(cfg HeuristicConfig) *HeuristicDetector {
	if cfg.UnitWeight <= 0 {
		cfg.UnitWeight = DefaultUnitWeight
	}
	if cfg.ConfidentThreshold <= 0 {
		cfg.ConfidentThreshold = engine.DefaultConfidentThreshold
	}
	return &HeuristicDetector{cfg: cfg}
}

// Detect always returns a result. Zero signals yield confidence 0 and IsBot
// false.
func (d *HeuristicDetector) Detect(_ context.Context, userAgent string) engine.DetectionResult {
	ua := strings.TrimSpace(userAgent)
	if ua == "" {
		return engine.NewHeuristicResult(0, "", nil, d.cfg.ConfidentThreshold)
	}

	indicators := Indicators(ua)
	if len(indicators) == 0 {
		return engine.NewHeuristicResult(0, "", nil, d.cfg.ConfidentThreshold)
	}

	confidence := float64(len(indicators)) * d.cfg.UnitWeight
	return engine.NewHeuristicResult(confidence, pattern.ExtractBotName(ua), indicators, d.cfg.ConfidentThreshold)
}

// Indicators returns the distinct signals present in ua.
func Indicators(ua string) []engine.Indicator {
	var out []engine.Indicator

	if _, ok := pattern.CompatibleName(ua); ok {
		out = append(out, engine.IndicatorCompatiblePattern)
	}
	if documentationURLRe.MatchString(ua) {
		out = append(out, engine.IndicatorDocumentationURL)
	}
	if _, ok := pattern.VersionedToken(ua); ok {
		out = append(out, engine.IndicatorVersionPattern)
	}

	lower := strings.ToLower(ua)
	for _, k := range keywordIndicators {
		if strings.Contains(lower, k.keyword) {
			out = append(out, k.indicator)
		}
	}
	return out
}
