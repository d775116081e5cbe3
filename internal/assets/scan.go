package assets

import (
	"regexp"
	"strings"
)

// Scanner finds references to externally hosted assets in markup or code.
type Scanner struct {
	re *regexp.Regexp
}

// NewScanner matches absolute http(s) URLs on any of the given hosts.
func NewScanner(hosts []string) *Scanner {
	quoted := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h = strings.TrimSpace(h); h != "" {
			quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(h)))
		}
	}
	if len(quoted) == 0 {
		return &Scanner{}
	}
	// A URL ends at a quote, whitespace, a closing bracket or a backslash
	// (JSON-escaped quotes inside inline scripts).
	expr := `https?://(?:` + strings.Join(quoted, "|") + `)/[^"'\s)}\]>\\]+`
	return &Scanner{re: regexp.MustCompile(expr)}
}

// Find returns the distinct asset URLs in text in order of first appearance.
// Directory-like URLs ending in "/" are skipped.
func (s *Scanner) Find(text string) []string {
	if s.re == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, m := range s.re.FindAllString(text, -1) {
		if strings.HasSuffix(m, "/") {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
