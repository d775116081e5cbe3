package types

import (
	"strings"
	"time"
)

// PagePath is a canonical site-relative page key such as "/" or "/blog/post-1".
// It never carries a query string, a fragment or a trailing slash (except root).
type PagePath string

// Root is the site root sentinel.
const Root PagePath = "/"

// Clean returns the path without its leading slash ("" for the root).
func (p PagePath) Clean() string {
	return strings.TrimPrefix(string(p), "/")
}

// IsRoot reports whether p is the site root.
func (p PagePath) IsRoot() bool {
	return p == Root
}

// Depth is the number of directories below the output root that the page's
// file lives in: "/" and "/about" are 0, "/blog/post-1" is 1.
func (p PagePath) Depth() int {
	if p.IsRoot() {
		return 0
	}
	return strings.Count(p.Clean(), "/")
}

// File is the output file for the page, relative to the output root.
func (p PagePath) File() string {
	if p.IsRoot() {
		return "index.html"
	}
	return p.Clean() + ".html"
}

// CrawlState is the lifecycle of a page in the frontier
type CrawlState string

const (
	StateQueued     CrawlState = "QUEUED"
	StateInProgress CrawlState = "IN_PROGRESS"
	StateCompleted  CrawlState = "COMPLETED"
	StateFailed     CrawlState = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s CrawlState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// AssetEntry maps a remote asset URL to its reserved local path.
type AssetEntry struct {
	URL        string `json:"url"`
	LocalPath  string `json:"local_path"`
	Downloaded bool   `json:"downloaded"`
	Err        string `json:"error,omitempty"`
}

// PageRecord describes one page for the manifest
type PageRecord struct {
	Path  PagePath   `json:"path"`
	File  string     `json:"file,omitempty"`
	Title string     `json:"title,omitempty"`
	State CrawlState `json:"state"`
	Err   string     `json:"error,omitempty"`
}

// Summary is the end-of-run report.
type Summary struct {
	Origin           string        `json:"origin"`
	OutputDir        string        `json:"output_dir"`
	PagesCloned      int           `json:"pages_cloned"`
	PagesFailed      int           `json:"pages_failed"`
	AssetsDownloaded int           `json:"assets_downloaded"`
	AssetsFailed     int           `json:"assets_failed"`
	BundlesProcessed int           `json:"bundles_processed"`
	BundlesModified  int           `json:"bundles_modified"`
	Duration         time.Duration `json:"duration"`
}
