package engine

import (
	"fmt"
	"time"
)

// Verdict is the serving decision for a classified visitor.
type Verdict int

const (
	VerdictAllow Verdict = iota + 1
	VerdictBlock
	VerdictFlag
)

// String returns the lowercase verdict name.
func (v Verdict) String() string {
	switch v {
	case VerdictAllow:
		return "allow"
	case VerdictBlock:
		return "block"
	case VerdictFlag:
		return "flag"
	default:
		return "unspecified"
	}
}

// Decision holds the verdict, cache lifetime and reason for one result.
type Decision struct {
	Verdict  Verdict
	CacheTTL time.Duration
	Reason   string
}

// Decide applies the serve policy to a detection result.
//
// Rules (applied in order):
//  1. Catalog priority "blocked", or bot name on the blocked list → BLOCK, TTL 0
//  2. Heuristic result needing review                           → FLAG
//  3. Otherwise                                                 → ALLOW
func Decide(r DetectionResult, sp ServePolicy) Decision {
	if r.IsBot && (r.Priority == PriorityBlocked || sp.IsBlocked(r.BotName)) {
		name := r.BotName
		if name == "" {
			name = r.MatchedPattern
		}
		return Decision{
			Verdict:  VerdictBlock,
			CacheTTL: 0,
			Reason:   "blocked: " + name,
		}
	}

	ttl := sp.CacheTTL(r.Priority)

	if r.NeedsReview {
		return Decision{
			Verdict:  VerdictFlag,
			CacheTTL: ttl,
			Reason:   fmt.Sprintf("needs review: %s confidence %.2f", r.Method, r.Confidence),
		}
	}

	return Decision{
		Verdict:  VerdictAllow,
		CacheTTL: ttl,
	}
}
