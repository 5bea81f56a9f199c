package pattern

import (
	"regexp"
	"strings"
)

var (
	compatibleRe    = regexp.MustCompile(`(?i)compatible;\s*([^/;()]+)/[\d.]+`)
	versionedRe     = regexp.MustCompile(`([A-Za-z0-9_\-]+)/\d[\d.]*`)
	parentheticalRe = regexp.MustCompile(`\s*\(.*$`)
	urlRe           = regexp.MustCompile(`(?i)https?://[^\s;()]+`)
)

// genericTokens are browser and rendering-engine product tokens that every
// mainstream browser UA carries. They never name an automated agent.
var genericTokens = map[string]struct{}{
	"mozilla":        {},
	"applewebkit":    {},
	"khtml":          {},
	"gecko":          {},
	"chrome":         {},
	"chromium":       {},
	"crios":          {},
	"safari":         {},
	"mobile":         {},
	"version":        {},
	"firefox":        {},
	"fxios":          {},
	"edg":            {},
	"edga":           {},
	"edgios":         {},
	"edge":           {},
	"opr":            {},
	"opera":          {},
	"presto":         {},
	"trident":        {},
	"samsungbrowser": {},
	"yabrowser":      {},
	"ucbrowser":      {},
	"vivaldi":        {},
}

var botKeywords = []string{"bot", "crawler", "spider", "scraper"}

// IsGenericToken reports whether tok is a browser or engine product token.
func IsGenericToken(tok string) bool {
	_, ok := genericTokens[strings.ToLower(tok)]
	return ok
}

// CompatibleName returns the agent named in a "compatible; Name/1.0" clause.
func CompatibleName(ua string) (string, bool) {
	m := compatibleRe.FindStringSubmatch(ua)
	if m == nil {
		return "", false
	}
	name := cleanName(m[1])
	return name, name != ""
}

// VersionedToken returns the first "Token/1.2" product token in ua that is
// not a generic browser or engine token. Path segments of URLs are not
// product tokens.
func VersionedToken(ua string) (string, bool) {
	urls := urlRe.FindAllStringIndex(ua, -1)
	for _, m := range versionedRe.FindAllStringSubmatchIndex(ua, -1) {
		if inSpans(m[0], urls) {
			continue
		}
		tok := ua[m[2]:m[3]]
		if IsGenericToken(tok) {
			continue
		}
		return tok, true
	}
	return "", false
}

func inSpans(pos int, spans [][]int) bool {
	for _, s := range spans {
		if pos >= s[0] && pos < s[1] {
			return true
		}
	}
	return false
}

// ExtractBotName derives a short agent name from a user-agent string.
// Precedence: the "compatible;" clause, then the first non-generic versioned
// product token, then the first word carrying a bot keyword.
// Returns "" when nothing usable is found.
func ExtractBotName(ua string) string {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return ""
	}
	if name, ok := CompatibleName(ua); ok {
		return name
	}
	if name, ok := VersionedToken(ua); ok {
		return name
	}
	for _, word := range strings.Fields(ua) {
		word = strings.Trim(word, "();,+[]\"'")
		if i := strings.IndexByte(word, '/'); i >= 0 {
			word = word[:i]
		}
		if word == "" || IsGenericToken(word) {
			continue
		}
		lw := strings.ToLower(word)
		for _, kw := range botKeywords {
			if strings.Contains(lw, kw) {
				return word
			}
		}
	}
	return ""
}

// cleanName strips trailing parenthetical build info and surrounding space.
func cleanName(s string) string {
	return strings.TrimSpace(parentheticalRe.ReplaceAllString(s, ""))
}
