package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupOrigin(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html>ua="+r.Header.Get("User-Agent")+"</html>")
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/page", http.StatusFound)
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestFetch(t *testing.T) {
	server := setupOrigin(t)
	f := NewHTTPFetcher("sitemirror-test", 5*time.Second)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		body, err := f.Fetch(ctx, server.URL+"/page")
		require.NoError(t, err)
		assert.Equal(t, "<html>ua=sitemirror-test</html>", body)
	})

	t.Run("redirect followed transparently", func(t *testing.T) {
		body, err := f.Fetch(ctx, server.URL+"/moved")
		require.NoError(t, err)
		assert.Contains(t, body, "ua=sitemirror-test")
	})

	t.Run("non-success status", func(t *testing.T) {
		_, err := f.Fetch(ctx, server.URL+"/missing")
		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, http.StatusNotFound, se.StatusCode)
		assert.Equal(t, server.URL+"/missing", se.URL)
	})

	t.Run("redirect loop is a transport error", func(t *testing.T) {
		_, err := f.Fetch(ctx, server.URL+"/loop")
		var te *TransportError
		assert.True(t, errors.As(err, &te))
	})
}

func TestFetchTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	f := NewHTTPFetcher("", time.Second)
	_, err := f.Fetch(context.Background(), addr+"/x")

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, addr+"/x", te.URL)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestOpenHonoursCancelledContext(t *testing.T) {
	server := setupOrigin(t)
	f := NewHTTPFetcher("", time.Second, WithRateLimit(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Open(ctx, server.URL+"/page")
	var te *TransportError
	assert.True(t, errors.As(err, &te))
}

func TestRateLimitedFetcherStillFetches(t *testing.T) {
	server := setupOrigin(t)
	f := NewHTTPFetcher("x", time.Second, WithRateLimit(100), WithClient(server.Client()))

	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), server.URL+"/page")
		require.NoError(t, err)
	}
}

func TestLoadRobots(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "User-agent: *\nDisallow: /private\n")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	origin, err := url.Parse(server.URL)
	require.NoError(t, err)

	robots := LoadRobots(context.Background(), NewHTTPFetcher("", time.Second), origin, "sitemirror")
	assert.True(t, robots.Allowed("/"))
	assert.True(t, robots.Allowed("/blog"))
	assert.False(t, robots.Allowed("/private"))
	assert.False(t, robots.Allowed("/private/page"))
}

func TestLoadRobotsMissingOrBroken(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		origin, err := url.Parse(server.URL)
		require.NoError(t, err)

		robots := LoadRobots(context.Background(), NewHTTPFetcher("", time.Second), origin, "sitemirror")
		assert.True(t, robots.Allowed("/anything"), "status %d", status)
		server.Close()
	}

	var nilRobots *Robots
	assert.True(t, nilRobots.Allowed("/x"))
}
