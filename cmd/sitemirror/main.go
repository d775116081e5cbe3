package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/go-scripts/sitemirror/internal/config"
	"github.com/go-scripts/sitemirror/internal/mirror"
	"github.com/go-scripts/sitemirror/internal/preview"
	"github.com/go-scripts/sitemirror/internal/progress"
)

// Globals are flags shared by every command
type Globals struct {
	Debug bool `help:"Enable debug logging" env:"SITEMIRROR_DEBUG"`
	Quiet bool `help:"Hide the progress bar" short:"q" env:"SITEMIRROR_QUIET"`
}

// CLI is the command line of sitemirror
type CLI struct {
	Globals

	Clone CloneCmd `cmd:"" default:"withargs" help:"Mirror a site into a static directory"`
	Serve ServeCmd `cmd:"" help:"Preview a mirrored site"`
}

// CloneCmd mirrors a site
type CloneCmd struct {
	URL           string        `arg:"" help:"Seed URL of the site to mirror"`
	Output        string        `help:"Output directory (default out/<host>)" short:"o" env:"SITEMIRROR_OUTPUT"`
	UserAgent     string        `help:"User-Agent header" default:"Mozilla/5.0 (compatible; sitemirror/1.0)" env:"SITEMIRROR_USER_AGENT"`
	Render        bool          `help:"Capture the browser-rendered DOM with headless Chrome" env:"SITEMIRROR_RENDER"`
	Wait          time.Duration `help:"Extra settle time per page when rendering" default:"0s" env:"SITEMIRROR_WAIT"`
	Timeout       time.Duration `help:"Request timeout" default:"30s" env:"SITEMIRROR_TIMEOUT"`
	AssetHost     []string      `help:"Hosts whose assets are localized" default:"framerusercontent.com" env:"SITEMIRROR_ASSET_HOSTS"`
	AnalyticsHost []string      `help:"Hosts whose scripts are stripped from pages" default:"events.framer.com" env:"SITEMIRROR_ANALYTICS_HOSTS"`
	BundleExt     []string      `help:"Extensions of script bundles to post-process" default:".mjs" env:"SITEMIRROR_BUNDLE_EXTS"`
	AssetWorkers  int           `help:"Parallel asset downloads" default:"4" short:"c" env:"SITEMIRROR_ASSET_WORKERS"`
	RateLimit     float64       `help:"Maximum requests per second (0 = unlimited)" default:"0" env:"SITEMIRROR_RATE_LIMIT"`
	MaxPages      int           `help:"Stop after this many pages (0 = unlimited)" default:"0" env:"SITEMIRROR_MAX_PAGES"`
	RespectRobots bool          `help:"Skip pages disallowed by robots.txt" env:"SITEMIRROR_RESPECT_ROBOTS"`
	NoPatch       bool          `help:"Leave page scripts untouched" env:"SITEMIRROR_NO_PATCH"`
	NoManifest    bool          `help:"Do not write sitemirror.json" env:"SITEMIRROR_NO_MANIFEST"`
}

// ServeCmd previews a mirrored site
type ServeCmd struct {
	Dir      string `arg:"" optional:"" help:"Mirrored site directory (default: first site in out/)"`
	Port     int    `help:"Port to listen on" default:"3000" short:"p" env:"PORT"`
	Attempts int    `help:"How many successive ports to try" default:"20"`
}

func newLogger(g *Globals) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "sitemirror",
	})
	if g.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

func (c *CloneCmd) configuration() config.Configuration {
	cfg := config.Default()
	cfg.StartURL = c.URL
	cfg.OutputDir = c.Output
	cfg.UserAgent = c.UserAgent
	cfg.Render = c.Render
	cfg.WaitTime = c.Wait
	cfg.Timeout = c.Timeout
	cfg.AssetHosts = c.AssetHost
	cfg.AnalyticsHost = c.AnalyticsHost
	cfg.BundleExts = c.BundleExt
	cfg.AssetWorkers = c.AssetWorkers
	cfg.RateLimit = c.RateLimit
	cfg.MaxPages = c.MaxPages
	cfg.RespectRobots = c.RespectRobots
	cfg.PatchMarkup = !c.NoPatch
	cfg.Manifest = !c.NoManifest
	return cfg
}

// Run mirrors the site.
func (c *CloneCmd) Run(g *Globals) error {
	logger := newLogger(g)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := progress.New(os.Stderr, g.Quiet)
	m, err := mirror.New(c.configuration(), mirror.WithLogger(logger), mirror.WithProgress(tracker))
	if err != nil {
		return err
	}
	defer m.Close()

	summary, err := m.Run(ctx)
	if err != nil {
		return fmt.Errorf("mirror failed: %w", err)
	}

	fmt.Fprintln(os.Stderr)
	fmt.Println(progress.RenderSummary(*summary))
	fmt.Printf("\nPreview with: sitemirror serve %s\n", summary.OutputDir)
	return nil
}

// Run serves a mirrored site until interrupted.
func (s *ServeCmd) Run(g *Globals) error {
	logger := newLogger(g)

	root := s.Dir
	if root == "" {
		var err error
		if root, err = preview.DefaultRoot("out"); err != nil {
			return err
		}
	}
	if _, err := os.Stat(root); err != nil {
		return fmt.Errorf("cannot serve %s: %w", root, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := preview.Listen(s.Port, s.Attempts, logger)
	if err != nil {
		return err
	}
	logger.Info("Serving", "root", root, "url", fmt.Sprintf("http://localhost:%d", ln.Addr().(*net.TCPAddr).Port))
	return preview.Serve(ctx, ln, root, logger)
}

func main() {
	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("sitemirror"),
		kong.Description("Mirror a dynamically rendered website into a self-contained static site."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
