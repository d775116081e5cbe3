// Package mirror drives a crawl: it pulls pages off the frontier, captures
// and rewrites them, localizes their assets and finally reconciles links
// across the whole output.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/go-scripts/sitemirror/internal/assets"
	"github.com/go-scripts/sitemirror/internal/bundle"
	"github.com/go-scripts/sitemirror/internal/config"
	"github.com/go-scripts/sitemirror/internal/discover"
	"github.com/go-scripts/sitemirror/internal/fetch"
	"github.com/go-scripts/sitemirror/internal/patch"
	"github.com/go-scripts/sitemirror/internal/progress"
	"github.com/go-scripts/sitemirror/internal/queue"
	"github.com/go-scripts/sitemirror/internal/rewrite"
	"github.com/go-scripts/sitemirror/internal/types"
	"github.com/go-scripts/sitemirror/internal/writer"
)

// RobotsAgent is the user agent matched against robots.txt groups.
const RobotsAgent = "sitemirror"

var (
	// ErrDisallowed marks a page skipped because robots.txt forbids it.
	ErrDisallowed = errors.New("disallowed by robots.txt")
	// ErrPageLimit marks a page skipped because the page limit was reached.
	ErrPageLimit = errors.New("page limit reached")
)

// Mirror manages one mirroring run
type Mirror struct {
	config   config.Configuration
	origin   *url.URL
	queue    *queue.Queue
	writer   *writer.FileWriter
	fetcher  fetch.Fetcher
	opener   fetch.Opener
	resolver *assets.Resolver
	scanner  *assets.Scanner
	finder   *discover.Discoverer
	rewriter *rewrite.Rewriter
	patcher  *patch.Patcher
	progress *progress.Tracker
	robots   *fetch.Robots
	log      *log.Logger
	closeFn  func()

	mu     sync.Mutex
	titles map[types.PagePath]string
}

// Option configures a Mirror
type Option func(*Mirror)

// WithLogger sets the logger used by the run and its collaborators.
func WithLogger(l *log.Logger) Option {
	return func(m *Mirror) {
		m.log = l
	}
}

// WithFetcher replaces the page fetcher.
func WithFetcher(f fetch.Fetcher) Option {
	return func(m *Mirror) {
		m.fetcher = f
	}
}

// WithOpener replaces the transport used for assets and robots.txt.
func WithOpener(o fetch.Opener) Option {
	return func(m *Mirror) {
		m.opener = o
	}
}

// WithProgress attaches a progress tracker.
func WithProgress(p *progress.Tracker) Option {
	return func(m *Mirror) {
		m.progress = p
	}
}

// New validates the configuration and prepares a run. An invalid seed URL
// fails here, before anything is written.
func New(cfg config.Configuration, opts ...Option) (*Mirror, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	origin, err := cfg.Origin()
	if err != nil {
		return nil, err
	}

	m := &Mirror{
		config: cfg,
		origin: origin,
		queue:  queue.New(),
		titles: make(map[types.PagePath]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = log.New(io.Discard)
	}
	if m.progress == nil {
		m.progress = progress.New(io.Discard, true)
	}

	httpFetcher := fetch.NewHTTPFetcher(cfg.UserAgent, cfg.Timeout, fetch.WithRateLimit(cfg.RateLimit))
	if m.opener == nil {
		m.opener = httpFetcher
	}
	if m.fetcher == nil {
		if cfg.Render {
			browser, err := fetch.NewBrowserFetcher(cfg.UserAgent, cfg.Timeout, cfg.WaitTime)
			if err != nil {
				return nil, err
			}
			m.fetcher = browser
			m.closeFn = browser.Close
		} else {
			m.fetcher = httpFetcher
		}
	}

	if m.config.OutputDir == "" {
		m.config.OutputDir = config.OutputDirFor("out", origin)
	}
	w, err := writer.New(m.config.OutputDir)
	if err != nil {
		m.Close()
		return nil, err
	}
	m.writer = w

	m.resolver = assets.NewResolver(w.Root(), m.opener, m.log, cfg.AssetWorkers)
	m.scanner = assets.NewScanner(cfg.AssetHosts)
	m.finder = discover.New(origin)
	m.rewriter = rewrite.New(origin)
	if cfg.PatchMarkup {
		m.patcher = patch.New(cfg.AnalyticsHost)
	}
	return m, nil
}

// OutputDir is the directory the run writes to.
func (m *Mirror) OutputDir() string {
	return m.writer.Root()
}

// Close releases the browser, if one was started.
func (m *Mirror) Close() {
	if m.closeFn != nil {
		m.closeFn()
		m.closeFn = nil
	}
}

// Run crawls until the frontier is empty, then finalizes links, processes
// bundles and writes the manifest. Page and asset failures are logged and
// counted; only cancellation or a broken output tree stops the run.
func (m *Mirror) Run(ctx context.Context) (*types.Summary, error) {
	start := time.Now()
	m.log.Info("Starting mirror", "origin", m.origin.String(), "output", m.writer.Root())

	if m.config.RespectRobots {
		m.robots = fetch.LoadRobots(ctx, m.opener, m.origin, RobotsAgent)
	}

	m.queue.Enqueue(types.Root)
	if seed, ok := discover.Canonical(m.config.SeedPath()); ok {
		m.queue.Enqueue(seed)
	}

	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, ok := m.queue.Next()
		if !ok {
			break
		}

		m.progress.SetTotalPages(m.queue.Seen())
		if m.config.MaxPages > 0 && processed >= m.config.MaxPages {
			m.fail(p, ErrPageLimit)
			m.progress.FinishPage(p, false)
			continue
		}
		processed++

		err := m.processPage(ctx, p)
		if err != nil {
			m.fail(p, err)
		}
		m.progress.FinishPage(p, err == nil)
	}

	m.progress.StartPhase("Finalizing links")
	rewritten, err := m.Finalize()
	m.progress.StopPhase()
	if err != nil {
		m.log.Error("Finalization incomplete", "err", err)
	}
	m.log.Info("Links finalized", "rewritten", rewritten)

	m.progress.StartPhase("Processing bundles")
	report, err := bundle.New(m.writer.Root(), m.config.BundleExts, m.scanner, m.resolver, m.log).Process(ctx)
	m.progress.StopPhase()
	if err != nil {
		return nil, fmt.Errorf("bundle post-processing: %w", err)
	}

	summary := m.summary(start, report)
	if m.config.Manifest {
		if err := m.writeManifest(start, summary); err != nil {
			m.log.Error("Failed to write manifest", "err", err)
		}
	}
	return summary, nil
}

func (m *Mirror) fail(p types.PagePath, err error) {
	if ferr := m.queue.MarkFailed(p, err); ferr != nil {
		m.log.Error("Invalid state change", "path", p, "err", ferr)
	}
	switch {
	case errors.Is(err, ErrDisallowed), errors.Is(err, ErrPageLimit):
		m.log.Info("Skipping page", "path", p, "reason", err)
	default:
		m.log.Error("Failed to clone page", "url", m.pageURL(p), "err", err)
	}
}

// processPage runs one page through fetch, discovery, asset resolution,
// rewriting, patching and persistence.
func (m *Mirror) processPage(ctx context.Context, p types.PagePath) error {
	if !m.robots.Allowed(string(p)) {
		return ErrDisallowed
	}
	if err := m.queue.MarkInProgress(p); err != nil {
		return err
	}
	m.log.Info("Cloning", "url", m.pageURL(p))

	doc, err := m.fetcher.Fetch(ctx, m.pageURL(p))
	if err != nil {
		return err
	}

	for _, found := range m.finder.Discover(doc) {
		if m.queue.Enqueue(found) {
			m.log.Debug("Discovered", "path", found)
		}
	}

	urls := m.scanner.Find(doc)
	mapping, errs := m.resolver.ResolveAll(ctx, urls)
	m.log.Debug("Assets resolved", "path", p, "assets", len(urls), "failed", len(errs))

	// Only pages already captured are linked as local files; the rest are
	// picked up by Finalize once the crawl is over.
	pages := append(m.queue.Completed(), p)
	doc = m.rewriter.Rewrite(doc, mapping, pages, p.Depth())

	if m.patcher != nil {
		if doc, err = m.patcher.Patch(doc); err != nil {
			return fmt.Errorf("patch markup: %w", err)
		}
	}

	if err := m.writer.WritePage(p, doc); err != nil {
		return err
	}

	m.mu.Lock()
	m.titles[p] = writer.PageTitle(doc)
	m.mu.Unlock()

	m.log.Debug("Saved", "file", p.File())
	return m.queue.MarkCompleted(p)
}

func (m *Mirror) pageURL(p types.PagePath) string {
	return m.origin.String() + string(p)
}

func (m *Mirror) summary(start time.Time, report bundle.Report) *types.Summary {
	downloaded, failed := m.resolver.Stats()
	return &types.Summary{
		Origin:           m.origin.String(),
		OutputDir:        m.writer.Root(),
		PagesCloned:      len(m.queue.Completed()),
		PagesFailed:      len(m.queue.Failed()),
		AssetsDownloaded: downloaded,
		AssetsFailed:     failed,
		BundlesProcessed: report.Processed,
		BundlesModified:  report.Modified,
		Duration:         time.Since(start),
	}
}

func (m *Mirror) writeManifest(start time.Time, summary *types.Summary) error {
	manifest := &writer.Manifest{
		Origin:     m.origin.String(),
		StartedAt:  start,
		FinishedAt: time.Now(),
		Summary:    *summary,
		Assets:     m.resolver.Entries(),
	}

	m.mu.Lock()
	for _, p := range m.queue.Completed() {
		manifest.Pages = append(manifest.Pages, types.PageRecord{
			Path:  p,
			File:  p.File(),
			Title: m.titles[p],
			State: types.StateCompleted,
		})
	}
	m.mu.Unlock()

	for _, p := range m.queue.Failed() {
		rec := types.PageRecord{Path: p, State: types.StateFailed}
		if reason := m.queue.Reason(p); reason != nil {
			rec.Err = reason.Error()
		}
		manifest.Pages = append(manifest.Pages, rec)
	}

	return m.writer.WriteManifest(manifest)
}
