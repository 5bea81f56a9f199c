package engine

import (
	"math"
	"sort"
)

// Method identifies which stage produced a DetectionResult.
type Method string

const (
	MethodKnownPattern Method = "known_pattern"
	MethodHeuristic    Method = "heuristic"
	MethodUnknown      Method = "unknown"
)

// Category is the coarse class of an automated agent.
type Category string

const (
	CategoryNone   Category = ""
	CategorySearch Category = "search"
	CategoryAI     Category = "ai"
	CategorySocial Category = "social"
	CategoryOther  Category = "other"
)

// ParseCategory maps a stored category string to a Category. Unknown values
// map to CategoryOther, empty to CategoryNone.
func ParseCategory(s string) Category {
	switch Category(s) {
	case CategoryNone, CategorySearch, CategoryAI, CategorySocial, CategoryOther:
		return Category(s)
	default:
		return CategoryOther
	}
}

// Priority ranks catalog entries. It orders matching and drives cache TTLs.
type Priority string

const (
	PriorityNone    Priority = ""
	PriorityBlocked Priority = "blocked"
	PriorityHigh    Priority = "high"
	PriorityMedium  Priority = "medium"
	PriorityLow     Priority = "low"
)

// Rank returns the match order of a priority; lower ranks are evaluated first.
func (p Priority) Rank() int {
	switch p {
	case PriorityBlocked:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium, PriorityNone:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Valid reports whether p is one of the stored priority values.
func (p Priority) Valid() bool {
	switch p {
	case PriorityBlocked, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Indicator is a tag naming one piece of evidence behind a result.
type Indicator string

const (
	IndicatorExactMatch        Indicator = "exact_match"
	IndicatorRegexMatch        Indicator = "regex_match"
	IndicatorCompatiblePattern Indicator = "compatible_pattern"
	IndicatorDocumentationURL  Indicator = "documentation_url"
	IndicatorVersionPattern    Indicator = "version_pattern"
	IndicatorKeywordBot        Indicator = "keyword_bot"
	IndicatorKeywordCrawler    Indicator = "keyword_crawler"
	IndicatorKeywordSpider     Indicator = "keyword_spider"
	IndicatorKeywordScraper    Indicator = "keyword_scraper"
)

// DefaultConfidentThreshold is the confidence at or above which a result is
// trusted without review.
const DefaultConfidentThreshold = 0.7

// DetectionResult is the immutable outcome of classifying one user agent.
// It is passed by value.
type DetectionResult struct {
	IsBot          bool        `json:"is_bot"`
	Confidence     float64     `json:"confidence"`
	BotName        string      `json:"bot_name,omitempty"`
	BotVendor      string      `json:"bot_vendor,omitempty"`
	BotCategory    Category    `json:"bot_category,omitempty"`
	Method         Method      `json:"method"`
	Indicators     []Indicator `json:"indicators"`
	NeedsReview    bool        `json:"needs_review"`
	Priority       Priority    `json:"priority,omitempty"`
	MatchedPattern string      `json:"matched_pattern,omitempty"`
}

// Confident reports whether the result clears threshold.
func (r DetectionResult) Confident(threshold float64) bool {
	return r.Confidence >= threshold
}

// HasIndicator reports whether ind is among the result's indicators.
func (r DetectionResult) HasIndicator(ind Indicator) bool {
	for _, i := range r.Indicators {
		if i == ind {
			return true
		}
	}
	return false
}

// KnownMatch carries the catalog fields copied into a known-pattern result.
type KnownMatch struct {
	Pattern  string
	Name     string
	Vendor   string
	Category Category
	Priority Priority
	Regex    bool
}

// NewKnownResult builds the full-confidence result for a catalog match.
func NewKnownResult(m KnownMatch) DetectionResult {
	ind := IndicatorExactMatch
	if m.Regex {
		ind = IndicatorRegexMatch
	}
	return DetectionResult{
		IsBot:          true,
		Confidence:     1.0,
		BotName:        m.Name,
		BotVendor:      m.Vendor,
		BotCategory:    m.Category,
		Method:         MethodKnownPattern,
		Indicators:     []Indicator{ind},
		Priority:       m.Priority,
		MatchedPattern: m.Pattern,
	}
}

// NewHeuristicResult builds a heuristic result. Confidence is clamped to
// [0,1], indicators are de-duplicated and sorted, and NeedsReview is set when
// the result claims a bot below threshold.
func NewHeuristicResult(confidence float64, name string, indicators []Indicator, threshold float64) DetectionResult {
	c := clamp(confidence)
	isBot := c > 0
	return DetectionResult{
		IsBot:       isBot,
		Confidence:  c,
		BotName:     name,
		Method:      MethodHeuristic,
		Indicators:  normalizeIndicators(indicators),
		NeedsReview: isBot && c < threshold,
	}
}

// UnknownResult is returned when no stage produced an opinion.
func UnknownResult() DetectionResult {
	return DetectionResult{
		Method:     MethodUnknown,
		Indicators: []Indicator{},
	}
}

func clamp(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func normalizeIndicators(in []Indicator) []Indicator {
	out := make([]Indicator, 0, len(in))
	seen := make(map[Indicator]struct{}, len(in))
	for _, i := range in {
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}
