package engine

import (
	"strings"
	"time"
)

// Default cache lifetimes per catalog priority.
const (
	DefaultTTLHigh   = 48 * time.Hour
	DefaultTTLMedium = 24 * time.Hour
	DefaultTTLLow    = 6 * time.Hour
)

// ServePolicy controls how a DetectionResult turns into a serving decision.
// Zero-value fields fall back to server defaults.
type ServePolicy struct {
	BlockedAgents []string                   // bot names always blocked, case-insensitive
	TTLs          map[Priority]time.Duration // nil = default table
	DefaultTTL    time.Duration              // for results without a priority (0 = 24h)
}

// DefaultServePolicy returns the default TTL table and no blocked agents.
func DefaultServePolicy() ServePolicy {
	return ServePolicy{
		TTLs: map[Priority]time.Duration{
			PriorityHigh:    DefaultTTLHigh,
			PriorityMedium:  DefaultTTLMedium,
			PriorityLow:     DefaultTTLLow,
			PriorityBlocked: 0,
		},
		DefaultTTL: DefaultTTLMedium,
	}
}

// IsBlocked reports whether name is on the blocked list.
func (sp ServePolicy) IsBlocked(name string) bool {
	if name == "" {
		return false
	}
	for _, b := range sp.BlockedAgents {
		if strings.EqualFold(strings.TrimSpace(b), name) {
			return true
		}
	}
	return false
}

// CacheTTL returns how long content served to an agent of the given priority
// may be cached. Blocked agents always get 0.
func (sp ServePolicy) CacheTTL(p Priority) time.Duration {
	if p == PriorityBlocked {
		return 0
	}
	if sp.TTLs != nil {
		if ttl, ok := sp.TTLs[p]; ok {
			return ttl
		}
	}
	switch p {
	case PriorityHigh:
		return DefaultTTLHigh
	case PriorityLow:
		return DefaultTTLLow
	case PriorityMedium:
		return DefaultTTLMedium
	}
	if sp.DefaultTTL > 0 {
		return sp.DefaultTTL
	}
	return DefaultTTLMedium
}
