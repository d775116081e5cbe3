package preview

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSite(t *testing.T) string {
	root := t.TempDir()
	files := map[string]string{
		"index.html":           "home",
		"about.html":           "about",
		"blog/post-1.html":     "post",
		"assets/images/x.png":  "png",
		"assets/fonts/f.woff2": "font",
		"assets/blob":          "blob",
		"assets/data.xyz123":   "unknown",
	}
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return root
}

func TestHandler(t *testing.T) {
	root := setupSite(t)
	h := Handler(root, log.New(io.Discard))

	tests := []struct {
		path   string
		status int
		body   string
		ctype  string
	}{
		{"/", http.StatusOK, "home", "text/html"},
		{"/about", http.StatusOK, "about", "text/html"},
		{"/about.html", http.StatusOK, "about", "text/html"},
		{"/blog/post-1", http.StatusOK, "post", "text/html"},
		{"/assets/images/x.png", http.StatusOK, "png", "image/png"},
		{"/assets/blob", http.StatusOK, "blob", "application/octet-stream"},
		{"/assets/data.xyz123", http.StatusOK, "unknown", "application/octet-stream"},
		{"/missing", http.StatusNotFound, "", ""},
		{"/assets", http.StatusNotFound, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.body, rec.Body.String())
				assert.Contains(t, rec.Header().Get("Content-Type"), tt.ctype)
			}
		})
	}
}

func TestHandlerRejectsTraversal(t *testing.T) {
	root := setupSite(t)
	h := Handler(filepath.Join(root, "blog"), log.New(io.Discard))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.URL.Path = "/../index.html"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListenSkipsBusyPort(t *testing.T) {
	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	ln, err := Listen(port, 20, log.New(io.Discard))
	require.NoError(t, err)
	defer ln.Close()

	assert.NotEqual(t, port, ln.Addr().(*net.TCPAddr).Port)
}

func TestServeStopsOnCancel(t *testing.T) {
	root := setupSite(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, ln, root, log.New(io.Discard))
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/about")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "about", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestDefaultRoot(t *testing.T) {
	parent := t.TempDir()
	_, err := DefaultRoot(parent)
	assert.ErrorIs(t, err, ErrNoSite)

	require.NoError(t, os.MkdirAll(filepath.Join(parent, "b_com"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(parent, "a_com"), 0755))
	root, err := DefaultRoot(parent)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(parent, "a_com"), root)

	_, err = DefaultRoot(filepath.Join(parent, "nope"))
	assert.ErrorIs(t, err, ErrNoSite)
}
