// Package ipverify checks a claimed agent identity against the address ranges
// its operator publishes.
package ipverify

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"
)

// Status is the outcome of a verification.
type Status string

const (
	// StatusVerified means the address is inside a published range for the agent.
	StatusVerified Status = "verified"
	// StatusMismatch means the agent has published ranges and the address is
	// outside all of them.
	StatusMismatch Status = "mismatch"
	// StatusUnverifiable means there is nothing to check against: no ranges
	// for the agent, or no usable address.
	StatusUnverifiable Status = "unverifiable"
)

// Verification is the result of Verify.
type Verification struct {
	Status Status `json:"status"`
	Range  string `json:"range,omitempty"` // matching prefix when verified
}

// DefaultRanges are the published ranges per agent name.
var DefaultRanges = map[string][]string{
	"GPTBot":            {"23.98.142.0/24", "40.84.180.0/22", "13.66.11.96/28"},
	"ChatGPT-User":      {"23.98.142.0/24", "40.84.180.0/22"},
	"ClaudeBot":         {"3.128.0.0/9", "52.15.0.0/16", "18.216.0.0/14"},
	"PerplexityBot":     {"44.214.0.0/16", "52.20.0.0/14"},
	"Googlebot":         {"66.249.64.0/19", "66.102.0.0/20"},
	"Google-Extended":   {"66.249.64.0/19", "66.102.0.0/20"},
	"Bytespider":        {"110.249.0.0/16", "111.225.0.0/16"},
	"FacebookBot":       {"69.63.176.0/20", "31.13.24.0/21", "66.220.144.0/20"},
	"Applebot-Extended": {"17.0.0.0/8"},
}

// Verifier holds parsed ranges keyed by lower-cased agent name. It is
// immutable after construction and safe for concurrent use.
type Verifier struct {
	ranges map[string][]netip.Prefix
}

// New builds a Verifier from DefaultRanges plus extra, whose entries are
// appended to any default ranges for the same agent.
func New(extra map[string][]string) (*Verifier, error) {
	v := &Verifier{ranges: make(map[string][]netip.Prefix)}
	for _, set := range []map[string][]string{DefaultRanges, extra} {
		for name, cidrs := range set {
			key := strings.ToLower(strings.TrimSpace(name))
			for _, c := range cidrs {
				p, err := netip.ParsePrefix(strings.TrimSpace(c))
				if err != nil {
					return nil, fmt.Errorf("ipverify: range %q for %s: %w", c, name, err)
				}
				v.ranges[key] = append(v.ranges[key], p.Masked())
			}
		}
	}
	return v, nil
}

// Verify reports whether ip belongs to the agent named botName.
func (v *Verifier) Verify(botName, ip string) Verification {
	prefixes := v.ranges[strings.ToLower(strings.TrimSpace(botName))]
	if len(prefixes) == 0 {
		return Verification{Status: StatusUnverifiable}
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return Verification{Status: StatusUnverifiable}
	}
	addr = addr.Unmap()
	for _, p := range prefixes {
		if p.Contains(addr) {
			return Verification{Status: StatusVerified, Range: p.String()}
		}
	}
	return Verification{Status: StatusMismatch}
}

// Agents lists the agent names with known ranges.
func (v *Verifier) Agents() []string {
	names := make([]string, 0, len(v.ranges))
	for name := range v.ranges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
