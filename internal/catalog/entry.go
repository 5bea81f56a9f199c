package catalog

import (
	"regexp"
	"strings"

	"github.com/triage-ai/botsentry/internal/engine"
	"github.com/triage-ai/botsentry/internal/pattern"
	"github.com/triage-ai/botsentry/internal/store"
)

// Entry is one compiled catalog pattern.
type Entry struct {
	ID       int64
	Pattern  string
	Type     store.PatternType
	Name     string
	Vendor   string
	Category engine.Category
	Priority engine.Priority
	Source   string

	lower string         // exact patterns, lowercased
	re    *regexp.Regexp // regex patterns
}

func newEntry(p store.BotPattern) (Entry, error) {
	e := Entry{
		ID:       p.ID,
		Pattern:  p.Pattern,
		Type:     p.PatternType,
		Name:     p.BotName,
		Vendor:   p.BotVendor,
		Category: p.BotCategory,
		Priority: p.Priority,
		Source:   p.Source,
	}
	if e.Type == store.PatternExact {
		if strings.TrimSpace(p.Pattern) == "" {
			return Entry{}, pattern.ErrEmptyPattern
		}
		e.lower = strings.ToLower(p.Pattern)
		return e, nil
	}

	e.Type = store.PatternRegex
	re, err := pattern.Compile(p.Pattern)
	if err != nil {
		return Entry{}, err
	}
	e.re = re
	return e, nil
}

// Match reports whether the entry matches. lowerUA must be
// strings.ToLower(userAgent).
func (e *Entry) Match(userAgent, lowerUA string) bool {
	if e.re != nil {
		return e.re.MatchString(userAgent)
	}
	return strings.Contains(lowerUA, e.lower)
}

// KnownMatch converts the entry for a known-pattern result.
func (e *Entry) KnownMatch() engine.KnownMatch {
	return engine.KnownMatch{
		Pattern:  e.Pattern,
		Name:     e.Name,
		Vendor:   e.Vendor,
		Category: e.Category,
		Priority: e.Priority,
		Regex:    e.Type == store.PatternRegex,
	}
}

// sourceTier ranks who vouched for a pattern: curated entries first, then
// ones learned from local traffic, then external feeds.
func sourceTier(source string) int {
	switch source {
	case "", store.SourceManual:
		return 0
	case store.SourceAutoLearned:
		return 1
	default:
		return 2
	}
}

// less orders entries: blocked first, then source tier, priority rank, exact
// before regex, longer pattern first, then lower ID.
func (e *Entry) less(o *Entry) bool {
	if a, b := e.Priority == engine.PriorityBlocked, o.Priority == engine.PriorityBlocked; a != b {
		return a
	}
	if a, b := sourceTier(e.Source), sourceTier(o.Source); a != b {
		return a < b
	}
	if a, b := e.Priority.Rank(), o.Priority.Rank(); a != b {
		return a < b
	}
	if e.Type != o.Type {
		return e.Type == store.PatternExact
	}
	if len(e.Pattern) != len(o.Pattern) {
		return len(e.Pattern) > len(o.Pattern)
	}
	return e.ID < o.ID
}
