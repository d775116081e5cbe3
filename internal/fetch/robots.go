package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/temoto/robotstxt"
)

// Robots answers whether a path may be crawled. A nil *Robots allows everything.
type Robots struct {
	group *robotstxt.Group
}

// LoadRobots fetches /robots.txt from the origin. A missing file or any
// transport problem yields a policy that allows every path.
func LoadRobots(ctx context.Context, opener Opener, origin *url.URL, agent string) *Robots {
	robotsURL := origin.String() + "/robots.txt"

	status := http.StatusOK
	var body []byte
	rc, err := opener.Open(ctx, robotsURL)
	if err != nil {
		var se *StatusError
		if !errors.As(err, &se) {
			return &Robots{}
		}
		status = se.StatusCode
	} else {
		defer rc.Close()
		body, err = io.ReadAll(io.LimitReader(rc, 512<<10))
		if err != nil {
			return &Robots{}
		}
	}

	// robotstxt treats 5xx as "disallow all"; an unreachable robots file
	// should not block a mirror, so only 2xx and 4xx are interpreted.
	if status >= 500 {
		return &Robots{}
	}
	data, err := robotstxt.FromStatusAndBytes(status, body)
	if err != nil {
		return &Robots{}
	}
	return &Robots{group: data.FindGroup(agent)}
}

// Allowed reports whether the site-relative path may be fetched.
func (r *Robots) Allowed(path string) bool {
	if r == nil || r.group == nil {
		return true
	}
	return r.group.Test(path)
}
