// Package preview serves a mirrored site from disk the way a static host
// would: extension-less paths map to their .html file.
package preview

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
)

// ErrNoSite is returned when no mirrored site can be found to serve.
var ErrNoSite = errors.New("no mirrored site found")

// Handler serves files below root.
func Handler(root string, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Path
		if raw == "" {
			raw = "/"
		}
		candidate := raw
		if candidate == "/" {
			candidate = "/index.html"
		}
		if path.Ext(candidate) == "" {
			candidate += ".html"
		}

		for _, p := range []string{candidate, raw} {
			file, ok := within(root, p)
			if !ok {
				logger.Warn("Rejected path outside root", "path", raw)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			data, err := os.ReadFile(file)
			if err != nil {
				continue
			}

			ctype := mime.TypeByExtension(strings.ToLower(filepath.Ext(file)))
			if ctype == "" {
				ctype = "application/octet-stream"
			}
			w.Header().Set("Content-Type", ctype)
			w.WriteHeader(http.StatusOK)
			w.Write(data)
			logger.Debug("Served", "path", raw, "file", file)
			return
		}

		http.Error(w, "Not Found", http.StatusNotFound)
	})
}

// within joins a request path onto root and reports whether the result is
// still inside root.
func within(root, p string) (string, bool) {
	file := filepath.Join(root, filepath.FromSlash(p))
	rel, err := filepath.Rel(root, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return file, true
}

// Listen binds the first free port starting at port, trying at most
// attempts ports.
func Listen(port, attempts int, logger *log.Logger) (net.Listener, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		addr := fmt.Sprintf(":%d", port+i)
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, err
		}
		logger.Info("Port in use, trying next", "port", port+i)
		lastErr = err
	}
	return nil, fmt.Errorf("no free port in %d..%d: %w", port, port+attempts-1, lastErr)
}

// Serve serves root on ln until ctx is cancelled.
func Serve(ctx context.Context, ln net.Listener, root string, logger *log.Logger) error {
	srv := &http.Server{
		Handler:           Handler(root, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// DefaultRoot picks the first mirrored site below parent, in name order.
func DefaultRoot(parent string) (string, error) {
	entries, err := os.ReadDir(parent)
	if err != nil {
		return "", fmt.Errorf("%w in %s: %v", ErrNoSite, parent, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			return filepath.Join(parent, e.Name()), nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNoSite, parent)
}
