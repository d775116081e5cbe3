package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalidSeed is returned when the seed URL cannot be used as a crawl origin.
var ErrInvalidSeed = errors.New("invalid seed URL")

// Configuration holds the mirror settings
type Configuration struct {
	StartURL      string
	OutputDir     string
	UserAgent     string
	Render        bool
	WaitTime      time.Duration
	Timeout       time.Duration
	AssetHosts    []string
	AnalyticsHost []string
	BundleExts    []string
	AssetWorkers  int
	RateLimit     float64
	MaxPages      int
	RespectRobots bool
	PatchMarkup   bool
	Manifest      bool
}

// Default returns a configuration with every optional field populated.
func Default() Configuration {
	return Configuration{
		OutputDir:     "",
		UserAgent:     "Mozilla/5.0 (compatible; sitemirror/1.0)",
		Timeout:       30 * time.Second,
		AssetHosts:    []string{"framerusercontent.com"},
		AnalyticsHost: []string{"events.framer.com"},
		BundleExts:    []string{".mjs"},
		AssetWorkers:  4,
		PatchMarkup:   true,
		Manifest:      true,
	}
}

// Validate checks the seed URL and fills in derived defaults.
func (c *Configuration) Validate() error {
	if _, err := c.Origin(); err != nil {
		return err
	}
	if c.AssetWorkers < 1 {
		c.AssetWorkers = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("max pages must not be negative: %d", c.MaxPages)
	}
	for i, ext := range c.BundleExts {
		if !strings.HasPrefix(ext, ".") {
			c.BundleExts[i] = "." + ext
		}
	}
	return nil
}

// Origin parses the seed URL and returns its canonical origin
// (lowercase scheme and host, no path).
func (c *Configuration) Origin() (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(c.StartURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: %q must use http or https", ErrInvalidSeed, c.StartURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidSeed, c.StartURL)
	}
	return &url.URL{Scheme: scheme, Host: strings.ToLower(u.Host)}, nil
}

// SeedPath returns the site-relative path of the seed URL without trailing slash.
func (c *Configuration) SeedPath() string {
	u, err := url.Parse(strings.TrimSpace(c.StartURL))
	if err != nil {
		return "/"
	}
	p := strings.TrimRight(u.Path, "/")
	if p == "" {
		return "/"
	}
	return p
}

var unsafeHostChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// OutputDirFor derives out/<host> for the origin, appending _2, _3, ...
// until it finds a directory that does not exist yet.
func OutputDirFor(parent string, origin *url.URL) string {
	name := unsafeHostChars.ReplaceAllString(origin.Host, "_")
	dir := filepath.Join(parent, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return dir
	}
	for n := 2; ; n++ {
		candidate := filepath.Join(parent, fmt.Sprintf("%s_%d", name, n))
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
	}
}

// LoadEnv loads .env files into the process environment so that
// SITEMIRROR_* variables are visible to flag parsing. Missing files are ignored.
func LoadEnv(files ...string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}
