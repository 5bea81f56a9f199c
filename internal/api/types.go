package api

import (
	"time"

	"github.com/triage-ai/botsentry/internal/engine"
	"github.com/triage-ai/botsentry/internal/extsync"
	"github.com/triage-ai/botsentry/internal/ipverify"
)

// --- POST /v1/detect ---

// DetectRequest is the JSON body for POST /v1/detect. An empty user agent is
// valid and classifies as a non-bot.
type DetectRequest struct {
	UserAgent string `json:"user_agent" validate:"max=8192"`
	IP        string `json:"ip,omitempty" validate:"omitempty,ip"`
}

// DecisionResp is the serving decision for a detection.
type DecisionResp struct {
	Verdict     string  `json:"verdict"`
	CacheTTLSec int64   `json:"cache_ttl_sec"`
	Reason      *string `json:"reason"`
}

// DetectResponse is returned by POST /v1/detect.
type DetectResponse struct {
	RequestID      string                 `json:"request_id"`
	Result         engine.DetectionResult `json:"result"`
	Decision       DecisionResp           `json:"decision"`
	IPVerification *ipverify.Verification `json:"ip_verification,omitempty"`
	LatencyMs      float64                `json:"latency_ms"`
}

// --- Patterns ---

// CreatePatternReq is the JSON body for POST /api/patterns.
type CreatePatternReq struct {
	Pattern     string `json:"pattern" validate:"required,max=1024"`
	PatternType string `json:"pattern_type" validate:"omitempty,oneof=exact regex"`
	BotName     string `json:"bot_name" validate:"required,max=255"`
	BotVendor   string `json:"bot_vendor" validate:"max=255"`
	BotCategory string `json:"bot_category" validate:"omitempty,oneof=search ai social other"`
	Priority    string `json:"priority" validate:"omitempty,oneof=blocked high medium low"`
}

// UpdatePatternReq is the JSON body for PATCH /api/patterns/{id}.
type UpdatePatternReq struct {
	BotName     *string `json:"bot_name,omitempty" validate:"omitempty,min=1,max=255"`
	BotVendor   *string `json:"bot_vendor,omitempty" validate:"omitempty,max=255"`
	BotCategory *string `json:"bot_category,omitempty" validate:"omitempty,oneof=search ai social other"`
	Priority    *string `json:"priority,omitempty" validate:"omitempty,oneof=blocked high medium low"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// PatternResp is one catalog entry.
type PatternResp struct {
	ID            int64     `json:"id"`
	Pattern       string    `json:"pattern"`
	PatternType   string    `json:"pattern_type"`
	BotName       string    `json:"bot_name"`
	BotVendor     string    `json:"bot_vendor"`
	BotCategory   string    `json:"bot_category"`
	Priority      string    `json:"priority"`
	Source        string    `json:"source"`
	SourceVersion string    `json:"source_version"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// --- Unknown bots ---

// UnknownBotResp is one learning candidate.
type UnknownBotResp struct {
	ID                      int64     `json:"id"`
	UserAgent               string    `json:"user_agent"`
	IsBot                   bool      `json:"is_bot"`
	Confidence              float64   `json:"confidence"`
	Method                  string    `json:"method"`
	SuggestedBotName        *string   `json:"suggested_bot_name"`
	Indicators              []string  `json:"indicators"`
	HeuristicBotProbability float64   `json:"heuristic_bot_probability"`
	VisitCount              int64     `json:"visit_count"`
	ClassificationStatus    string    `json:"classification_status"`
	FirstSeen               time.Time `json:"first_seen"`
	LastSeen                time.Time `json:"last_seen"`
}

// --- Jobs ---

// LearnerRunResp is returned by POST /api/learner/run.
type LearnerRunResp struct {
	Promoted int `json:"promoted"`
}

// SyncResultResp is returned by POST /api/sync/run.
type SyncResultResp struct {
	Skipped bool                            `json:"skipped"`
	Sources map[string]extsync.SourceResult `json:"sources"`
}

// SyncRunResp is one row of the sync history.
type SyncRunResp struct {
	ID            int64     `json:"id"`
	SourceName    string    `json:"source_name"`
	SourceVersion string    `json:"source_version"`
	AddedCount    int       `json:"added_count"`
	UpdatedCount  int       `json:"updated_count"`
	TotalCount    int       `json:"total_count"`
	Status        string    `json:"status"`
	ErrorMessage  *string   `json:"error_message"`
	SyncedAt      time.Time `json:"synced_at"`
}

// --- Detection events ---

// DetectionEventResp is one stored detection.
type DetectionEventResp struct {
	RequestID      string    `json:"request_id"`
	Timestamp      time.Time `json:"timestamp"`
	UserAgent      string    `json:"user_agent"`
	IP             *string   `json:"ip"`
	IsBot          bool      `json:"is_bot"`
	Confidence     float32   `json:"confidence"`
	BotName        *string   `json:"bot_name"`
	BotVendor      *string   `json:"bot_vendor"`
	BotCategory    *string   `json:"bot_category"`
	Method         string    `json:"method"`
	Indicators     []string  `json:"indicators"`
	NeedsReview    bool      `json:"needs_review"`
	Priority       *string   `json:"priority"`
	MatchedPattern *string   `json:"matched_pattern"`
	Verdict        string    `json:"verdict"`
	IPVerification *string   `json:"ip_verification"`
	Browser        *string   `json:"browser"`
	OS             *string   `json:"os"`
	DeviceType     *string   `json:"device_type"`
	LatencyMs      float32   `json:"latency_ms"`
	Source         string    `json:"source"`
}

// EventListResp is a page of detection events.
type EventListResp struct {
	Events   []DetectionEventResp `json:"events"`
	Total    int                  `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
