// Package rewrite makes captured documents relocatable.
//
// Remote asset URLs become paths into the local assets tree, and links to
// pages of the mirrored site become relative links to their .html files. All
// substitutions are textual. Page links are only touched inside a quoted href
// attribute, with the closing quote part of the pattern, so "/blog" can never
// match inside "/blog/post-1".
package rewrite

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/go-scripts/sitemirror/internal/types"
)

var quotes = []string{`"`, `'`}

// Prefix returns the relative path from a page at the given depth back to
// the output root: "./" at depth 0, otherwise "../" repeated depth times.
func Prefix(depth int) string {
	if depth <= 0 {
		return "./"
	}
	return strings.Repeat("../", depth)
}

// Rewriter rewrites documents captured from one origin.
type Rewriter struct {
	origin   string
	host     string
	suffixed []*regexp.Regexp
}

// New creates a Rewriter for a canonical origin (scheme://host).
func New(origin *url.URL) *Rewriter {
	r := &Rewriter{
		origin: origin.Scheme + "://" + origin.Host,
		host:   "//" + origin.Host,
	}
	full := regexp.QuoteMeta(r.origin + "/")
	schemeless := regexp.QuoteMeta(r.host + "/")
	for _, q := range quotes {
		r.suffixed = append(r.suffixed, regexp.MustCompile(
			`href=`+q+`(?:\./|`+full+`|`+schemeless+`)([^`+q+`#?]*)([?#][^`+q+`]*)`+q))
	}
	return r
}

// Rewrite localizes asset URLs and then rewrites page and root links
// for a document that will be written at the given depth.
func (r *Rewriter) Rewrite(doc string, assets map[string]string, pages []types.PagePath, depth int) string {
	doc = Assets(doc, assets, Prefix(depth))
	return r.RewritePages(doc, pages, depth)
}

// RewritePages rewrites page and root links only. It is safe to run
// repeatedly: rewritten links never match a pattern again.
func (r *Rewriter) RewritePages(doc string, pages []types.PagePath, depth int) string {
	prefix := Prefix(depth)
	doc = r.pageReplacer(pages, prefix).Replace(doc)
	return r.rewriteSuffixed(doc, pages, prefix)
}

// Assets replaces every literal occurrence of a remote asset URL with
// prefix + local path. Longer URLs win over shorter ones sharing a prefix,
// so a URL with a query string is never cut at its path.
func Assets(doc string, assets map[string]string, prefix string) string {
	if len(assets) == 0 {
		return doc
	}
	pairs := make([][2]string, 0, len(assets))
	for remote, local := range assets {
		if remote == "" {
			continue
		}
		pairs = append(pairs, [2]string{remote, prefix + local})
	}
	return newReplacer(pairs).Replace(doc)
}

// pageReplacer covers the non-root pages and the bare root in every
// recognised surface form, framed by both quote styles.
func (r *Rewriter) pageReplacer(pages []types.PagePath, prefix string) *strings.Replacer {
	var pairs [][2]string
	for _, q := range quotes {
		index := `href=` + q + prefix + "index.html" + q
		for _, root := range []string{"./", r.origin, r.origin + "/", r.host, r.host + "/"} {
			pairs = append(pairs, [2]string{`href=` + q + root + q, index})
		}

		for _, p := range pages {
			if p.IsRoot() {
				continue
			}
			clean := p.Clean()
			target := `href=` + q + prefix + clean + ".html" + q
			for _, form := range []string{"./" + clean, r.origin + "/" + clean, r.host + "/" + clean} {
				pairs = append(pairs,
					[2]string{`href=` + q + form + q, target},
					[2]string{`href=` + q + form + "/" + q, target},
				)
			}
		}
	}
	return newReplacer(pairs)
}

// rewriteSuffixed handles links that carry a query or fragment: the root
// ("./#top") and, for pages that exist in the mirror, "./pricing#faq" or
// "./search?q=x". The suffix is kept after the .html target.
func (r *Rewriter) rewriteSuffixed(doc string, pages []types.PagePath, prefix string) string {
	known := make(map[string]struct{}, len(pages))
	for _, p := range pages {
		if !p.IsRoot() {
			known[p.Clean()] = struct{}{}
		}
	}

	for i, re := range r.suffixed {
		q := quotes[i]
		doc = replaceSubmatches(re, doc, func(m []string) (string, bool) {
			target := strings.TrimSuffix(m[1], "/")
			if target == "" {
				return `href=` + q + prefix + "index.html" + m[2] + q, true
			}
			if _, ok := known[target]; !ok {
				return "", false
			}
			return `href=` + q + prefix + target + ".html" + m[2] + q, true
		})
	}
	return doc
}

// replaceSubmatches is ReplaceAllStringFunc with access to submatches; a
// match for which fn reports false is kept as is.
func replaceSubmatches(re *regexp.Regexp, s string, fn func([]string) (string, bool)) string {
	locs := re.FindAllStringSubmatchIndex(s, -1)
	if len(locs) == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, loc := range locs {
		groups := make([]string, len(loc)/2)
		for g := range groups {
			if loc[2*g] >= 0 {
				groups[g] = s[loc[2*g]:loc[2*g+1]]
			}
		}
		repl, ok := fn(groups)
		if !ok {
			continue
		}
		b.WriteString(s[last:loc[0]])
		b.WriteString(repl)
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

// newReplacer builds a single-pass replacer whose patterns are tried longest
// first at every position. strings.Replacer compares candidates in argument
// order, so sorting by length gives leftmost-longest matching.
func newReplacer(pairs [][2]string) *strings.Replacer {
	sort.SliceStable(pairs, func(i, j int) bool {
		if len(pairs[i][0]) != len(pairs[j][0]) {
			return len(pairs[i][0]) > len(pairs[j][0])
		}
		return pairs[i][0] < pairs[j][0]
	})
	oldnew := make([]string, 0, 2*len(pairs))
	for _, p := range pairs {
		oldnew = append(oldnew, p[0], p[1])
	}
	return strings.NewReplacer(oldnew...)
}
