package assets

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/go-scripts/sitemirror/internal/types"
)

// Opener opens a remote resource for reading. Redirects are resolved by the
// implementation; a non-success status is an error.
type Opener interface {
	Open(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

type entry struct {
	local string
	done  bool
	err   error
}

// Resolver maps remote asset URLs to local paths and downloads each URL at
// most once. A failed download keeps its reserved path. No two URLs are
// given the same path.
type Resolver struct {
	root    string
	opener  Opener
	log     *log.Logger
	workers int

	mu      sync.Mutex
	entries map[string]*entry
	owners  map[string]string // local path -> URL
	group   singleflight.Group
}

// NewResolver creates a Resolver writing below the output root.
func NewResolver(root string, opener Opener, logger *log.Logger, workers int) *Resolver {
	if workers < 1 {
		workers = 1
	}
	return &Resolver{
		root:    root,
		opener:  opener,
		log:     logger,
		workers: workers,
		entries: make(map[string]*entry),
		owners:  make(map[string]string),
	}
}

// Resolve returns the local path reserved for rawURL, downloading it on first
// use. Concurrent callers for the same URL share one download. The returned
// error is recoverable: the path is valid even when the file is missing.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	r.mu.Lock()
	e, ok := r.entries[rawURL]
	if !ok {
		local, err := r.claim(rawURL)
		if err != nil {
			r.mu.Unlock()
			return "", err
		}
		e = &entry{local: local}
		r.entries[rawURL] = e
	}
	if e.done {
		r.mu.Unlock()
		return e.local, nil
	}
	r.mu.Unlock()

	_, err, _ := r.group.Do(rawURL, func() (interface{}, error) {
		r.mu.Lock()
		if e.done {
			r.mu.Unlock()
			return nil, nil
		}
		r.mu.Unlock()

		err := r.download(ctx, rawURL, filepath.Join(r.root, filepath.FromSlash(e.local)))

		r.mu.Lock()
		e.done = true
		e.err = err
		r.mu.Unlock()

		if err != nil {
			r.log.Warn("Asset download failed", "url", rawURL, "err", err)
			return nil, fmt.Errorf("download %s: %w", rawURL, err)
		}
		r.log.Debug("Asset saved", "url", rawURL, "path", e.local)
		return nil, nil
	})
	return e.local, err
}

// claim reserves a local path for a URL seen for the first time. When the
// derived path already belongs to another URL, a suffix taken from a
// name-based UUID of the URL is added to the file stem. Callers hold r.mu.
func (r *Resolver) claim(rawURL string) (string, error) {
	local, err := LocalPath(rawURL)
	if err != nil {
		return "", err
	}
	if owner, taken := r.owners[local]; taken {
		alt := r.disambiguate(local, rawURL)
		r.log.Warn("Asset path collision", "url", rawURL, "path", local, "owner", owner, "using", alt)
		local = alt
	}
	r.owners[local] = rawURL
	return local, nil
}

func (r *Resolver) disambiguate(local, rawURL string) string {
	ext := path.Ext(local)
	stem := strings.TrimSuffix(local, ext)
	id := strings.ReplaceAll(uuid.NewSHA1(uuid.NameSpaceURL, []byte(rawURL)).String(), "-", "")
	for n := 8; ; n += 8 {
		if n >= len(id) {
			return stem + "-" + id + ext
		}
		candidate := stem + "-" + id[:n] + ext
		if _, taken := r.owners[candidate]; !taken {
			return candidate
		}
	}
}

// ResolveAll resolves urls on a bounded pool. It returns the URL to local path
// mapping for every mappable URL and the download errors, which never stop
// the remaining downloads.
func (r *Resolver) ResolveAll(ctx context.Context, urls []string) (map[string]string, []error) {
	mapping := make(map[string]string, len(urls))
	var errs []error
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(r.workers)
	for _, u := range urls {
		u := u
		g.Go(func() error {
			local, err := r.Resolve(ctx, u)
			mu.Lock()
			defer mu.Unlock()
			if local != "" {
				mapping[u] = local
			}
			if err != nil {
				errs = append(errs, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return mapping, errs
}

func (r *Resolver) download(ctx context.Context, rawURL, dest string) error {
	body, err := r.opener.Open(ctx, rawURL)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create asset directory: %w", err)
	}
	return writeFile(dest, body)
}

// writeFile streams src into dest. The file is always closed and is removed
// again if anything went wrong, so a failed asset never leaves a partial file.
func writeFile(dest string, src io.Reader) (err error) {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close file: %w", cerr)
		}
		if err != nil {
			os.Remove(dest)
		}
	}()

	if _, err = io.Copy(f, src); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Lookup returns the local path reserved for a URL without downloading.
func (r *Resolver) Lookup(rawURL string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[rawURL]
	if !ok {
		return "", false
	}
	return e.local, true
}

// Entries returns every asset seen so far, sorted by URL.
func (r *Resolver) Entries() []types.AssetEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]types.AssetEntry, 0, len(r.entries))
	for u, e := range r.entries {
		ae := types.AssetEntry{URL: u, LocalPath: e.local, Downloaded: e.done && e.err == nil}
		if e.err != nil {
			ae.Err = e.err.Error()
		}
		out = append(out, ae)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Stats returns the number of downloaded and failed assets.
func (r *Resolver) Stats() (downloaded, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		switch {
		case e.done && e.err == nil:
			downloaded++
		case e.done:
			failed++
		}
	}
	return downloaded, failed
}
