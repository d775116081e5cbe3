// Package patch adjusts captured markup so client-side scripts behave when
// the mirror is served from a static host.
package patch

import (
	"bytes"
	"errors"
	"io"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// GuardAttr marks the injected navigation guard script.
const GuardAttr = "data-sitemirror-guard"

// guardScript keeps the pre-rendered DOM alive on a static host. CMS data
// requests get a promise that never settles so the page stays in its
// server-rendered state, same-origin link clicks become full page loads
// before the client router sees them, and pushState to another path does
// the same.
const guardScript = `<script ` + GuardAttr + `>(function(){` +
	`var _f=window.fetch;window.fetch=function(u,o){` +
	`var s=typeof u==="string"?u:(u&&u.url||"");` +
	`if(s.indexOf(".framercms")!==-1)return new Promise(function(){});` +
	`return _f.call(this,u,o)};` +
	`document.addEventListener("click",function(e){` +
	`var a=e.target.closest("a");if(!a)return;` +
	`var h=a.getAttribute("href");if(!h||h.startsWith("#"))return;` +
	`try{var u=new URL(h,location.href);` +
	`if(u.origin===location.origin&&u.pathname!==location.pathname){` +
	`e.preventDefault();e.stopPropagation();location.href=h}` +
	`}catch(x){}},true);` +
	`var p=history.pushState;history.pushState=function(s,t,u){` +
	`if(u){var n=new URL(u,location.href);` +
	`if(n.pathname!==location.pathname){location.href=u;return}}` +
	`p.call(this,s,t,u)}` +
	`})()</script>`

var baseFixes = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`let t=new URL\(e\)`), "let t=new URL(e,location.href)"},
	{regexp.MustCompile(`new URL\(r\)\.hostname`), "new URL(r,location.href).hostname"},
}

// Patcher rewrites a document in a single token pass. Bytes it does not
// change are copied verbatim.
type Patcher struct {
	analytics map[string]struct{}
}

// New creates a Patcher that strips scripts loaded from the given hosts.
func New(analyticsHosts []string) *Patcher {
	p := &Patcher{analytics: make(map[string]struct{}, len(analyticsHosts))}
	for _, h := range analyticsHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			p.analytics[h] = struct{}{}
		}
	}
	return p
}

// Patch drops analytics scripts, injects the navigation guard after the
// first <head> tag and gives relative URL constructors an explicit base.
// Running it on its own output changes nothing.
func (p *Patcher) Patch(doc string) (string, error) {
	guarded := strings.Contains(doc, GuardAttr)

	var out bytes.Buffer
	out.Grow(len(doc) + len(guardScript))

	z := html.NewTokenizer(strings.NewReader(doc))
	skipping := false
	consumed := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if !errors.Is(z.Err(), io.EOF) {
				return "", z.Err()
			}
			// A tag cut off by the end of input is not emitted as a token.
			if !skipping && consumed < len(doc) {
				out.WriteString(doc[consumed:])
			}
			break
		}
		raw := append([]byte(nil), z.Raw()...)
		consumed += len(raw)

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch atom.Lookup(name) {
			case atom.Script:
				if hasAttr && p.isAnalytics(z) {
					skipping = tt == html.StartTagToken
					continue
				}
			case atom.Head:
				if !guarded && tt == html.StartTagToken {
					out.Write(raw)
					out.WriteString(guardScript)
					guarded = true
					continue
				}
			}
		case html.EndTagToken:
			if skipping {
				if name, _ := z.TagName(); atom.Lookup(name) == atom.Script {
					skipping = false
				}
				continue
			}
		}

		if skipping {
			continue
		}
		out.Write(raw)
	}

	result := out.String()
	for _, fix := range baseFixes {
		result = fix.re.ReplaceAllString(result, fix.repl)
	}
	return result, nil
}

func (p *Patcher) isAnalytics(z *html.Tokenizer) bool {
	for {
		key, val, more := z.TagAttr()
		if string(key) == "src" {
			u, err := url.Parse(strings.TrimSpace(string(val)))
			if err == nil {
				if _, ok := p.analytics[strings.ToLower(u.Hostname())]; ok {
					return true
				}
			}
		}
		if !more {
			return false
		}
	}
}
