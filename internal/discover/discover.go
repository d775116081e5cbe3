// Package discover finds same-origin page references in raw markup.
//
// The scan is textual: it looks for href attributes whose value is either
// relative to the current directory ("./about") or repeats the site origin
// ("https://example.com/about", "//example.com/about"). It does not parse the
// document, so malformed markup is fine and anything that does not match is
// ignored.
package discover

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/go-scripts/sitemirror/internal/types"
)

// AssetsDir is the output subtree reserved for localized assets.
const AssetsDir = "assets"

type pattern struct {
	re       *regexp.Regexp
	relative bool
}

// Discoverer extracts page paths for one origin.
type Discoverer struct {
	origin   *url.URL
	patterns []pattern
}

// New builds a Discoverer for a canonical origin (scheme://host).
func New(origin *url.URL) *Discoverer {
	d := &Discoverer{origin: origin}
	for _, q := range []string{`"`, `'`} {
		d.patterns = append(d.patterns,
			pattern{re: relativePattern(q), relative: true},
			pattern{re: absolutePattern(q, origin)},
		)
	}
	return d
}

func relativePattern(q string) *regexp.Regexp {
	return regexp.MustCompile(`href=` + q + `\./([^` + q + `#?]*)[^` + q + `]*` + q)
}

func absolutePattern(q string, origin *url.URL) *regexp.Regexp {
	full := regexp.QuoteMeta(origin.Scheme + "://" + origin.Host)
	schemeless := regexp.QuoteMeta("//" + origin.Host)
	return regexp.MustCompile(`href=` + q + `(?:` + full + `|` + schemeless + `)` +
		`(/[^` + q + `#?]*)?(?:[#?][^` + q + `]*)?` + q)
}

// Discover returns the sorted, de-duplicated non-root page paths referenced by doc.
func (d *Discoverer) Discover(doc string) []types.PagePath {
	found := make(map[types.PagePath]struct{})

	for _, pat := range d.patterns {
		for _, m := range pat.re.FindAllStringSubmatch(doc, -1) {
			raw := m[1]
			if pat.relative {
				if raw == "" || strings.Contains(raw, "://") {
					continue
				}
				raw = "/" + raw
			}
			if p, ok := Canonical(raw); ok && !p.IsRoot() && !inAssets(p) {
				found[p] = struct{}{}
			}
		}
	}

	out := make([]types.PagePath, 0, len(found))
	for p := range found {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// inAssets reports whether p falls in the output subtree reserved for assets.
func inAssets(p types.PagePath) bool {
	return p == "/"+AssetsDir || strings.HasPrefix(string(p), "/"+AssetsDir+"/")
}

// Canonical turns a site-relative path into a PagePath. It trims a trailing
// slash and rejects paths with empty, "." or ".." segments, which could not
// be mapped to a file inside the output tree.
func Canonical(raw string) (types.PagePath, bool) {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" || raw == "/" {
		return types.Root, true
	}
	if !strings.HasPrefix(raw, "/") {
		return "", false
	}
	trimmed := strings.TrimSuffix(raw, "/")
	for _, seg := range strings.Split(strings.TrimPrefix(trimmed, "/"), "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", false
		}
	}
	return types.PagePath(trimmed), true
}
