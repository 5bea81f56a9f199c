package storage

import "time"

// EventWriter persists detection events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *DetectionEvent)
	Close()
}

// DetectionEvent is one classified request.
type DetectionEvent struct {
	RequestID      string
	Timestamp      time.Time
	UserAgent      string // First UserAgentPreviewLength chars
	UserAgentHash  string // SHA256 of the full user agent
	IP             string
	IsBot          bool
	Confidence     float32
	BotName        string
	BotVendor      string
	BotCategory    string
	Method         string
	Indicators     []string
	NeedsReview    bool
	Priority       string
	MatchedPattern string
	Verdict        string
	CacheTTLSec    uint32
	IPVerification string
	Browser        string
	OS             string
	DeviceType     string
	LatencyMs      float32
	Source         string // "api" or "cli"
}

// UserAgentPreviewLength is the max chars stored in user_agent.
const UserAgentPreviewLength = 512

// Truncate returns the first maxLen runes of s. It never splits a multi-byte
// UTF-8 character.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}

// DetectionEventsDDL creates the ClickHouse table the writer inserts into.
const DetectionEventsDDL = `
CREATE TABLE IF NOT EXISTS detection_events (
	request_id      String,
	timestamp       DateTime64(3),
	user_agent      String,
	user_agent_hash String,
	ip              String,
	is_bot          UInt8,
	confidence      Float32,
	bot_name        LowCardinality(String),
	bot_vendor      LowCardinality(String),
	bot_category    LowCardinality(String),
	method          LowCardinality(String),
	indicators      Array(String),
	needs_review    UInt8,
	priority        LowCardinality(String),
	matched_pattern String,
	verdict         LowCardinality(String),
	cache_ttl_sec   UInt32,
	ip_verification LowCardinality(String),
	browser         LowCardinality(String),
	os              LowCardinality(String),
	device_type     LowCardinality(String),
	latency_ms      Float32,
	source          LowCardinality(String)
) ENGINE = MergeTree
PARTITION BY toYYYYMM(timestamp)
ORDER BY (timestamp, request_id)
TTL toDateTime(timestamp) + INTERVAL 90 DAY`
