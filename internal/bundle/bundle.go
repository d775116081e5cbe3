// Package bundle post-processes downloaded script bundles. Bundles reference
// assets that never appear in page markup, and a few constructs in them only
// work when served from the site's own host.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/go-scripts/sitemirror/internal/assets"
	"github.com/go-scripts/sitemirror/internal/rewrite"
)

var (
	editorImport    = regexp.MustCompile(`import\("https://edit\.framer\.com/init\.mjs"\)`)
	editorStub      = "Promise.resolve({createEditorBar:()=>()=>null})"
	relativeBase    = regexp.MustCompile(`new URL\("\./[^"]+","\.\./`)
	relativeBaseFix = regexp.MustCompile(`new URL\("(\./[^"]+)","(\.\./[^"]+)"\)`)
)

// Resolver localizes asset URLs.
type Resolver interface {
	ResolveAll(ctx context.Context, urls []string) (map[string]string, []error)
}

// Report summarizes a post-processing run.
type Report struct {
	Processed   int
	Modified    int
	AssetErrors int
}

// Processor rewrites bundles found below an output root.
type Processor struct {
	root     string
	exts     map[string]struct{}
	scanner  *assets.Scanner
	resolver Resolver
	log      *log.Logger
}

// New creates a Processor for bundles with the given extensions (".mjs").
func New(root string, exts []string, scanner *assets.Scanner, resolver Resolver, logger *log.Logger) *Processor {
	p := &Processor{
		root:     root,
		exts:     make(map[string]struct{}, len(exts)),
		scanner:  scanner,
		resolver: resolver,
		log:      logger,
	}
	for _, e := range exts {
		p.exts[strings.ToLower(e)] = struct{}{}
	}
	return p
}

// Process handles every bundle in the assets tree. Bundles downloaded while
// processing are picked up by a further pass, until a pass finds nothing new.
// A bundle that cannot be read or written is logged and skipped.
func (p *Processor) Process(ctx context.Context) (Report, error) {
	var report Report
	done := make(map[string]struct{})

	for {
		pending, err := p.find(done)
		if err != nil {
			return report, err
		}
		if len(pending) == 0 {
			return report, nil
		}

		for _, file := range pending {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			done[file] = struct{}{}
			report.Processed++

			modified, assetErrs, err := p.processFile(ctx, file)
			report.AssetErrors += assetErrs
			if err != nil {
				p.log.Error("Failed to process bundle", "file", file, "err", err)
				continue
			}
			if modified {
				report.Modified++
			}
		}
	}
}

func (p *Processor) find(done map[string]struct{}) ([]string, error) {
	dir := filepath.Join(p.root, assets.Dir)
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := p.exts[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		if _, ok := done[path]; !ok {
			files = append(files, path)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan bundles: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func (p *Processor) processFile(ctx context.Context, file string) (bool, int, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return false, 0, fmt.Errorf("failed to read bundle: %w", err)
	}
	original := string(data)
	content := original

	var assetErrs int
	if urls := p.scanner.Find(content); len(urls) > 0 {
		mapping, errs := p.resolver.ResolveAll(ctx, urls)
		assetErrs = len(errs)

		prefix, err := p.prefixFor(file)
		if err != nil {
			return false, assetErrs, err
		}
		content = rewrite.Assets(content, mapping, prefix)
	}
	content = Patch(content)

	if content == original {
		return false, assetErrs, nil
	}
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		return false, assetErrs, fmt.Errorf("failed to write bundle: %w", err)
	}
	p.log.Debug("Bundle rewritten", "file", file)
	return true, assetErrs, nil
}

// prefixFor is the relative path from a bundle's directory back to the
// output root, with a trailing slash.
func (p *Processor) prefixFor(file string) (string, error) {
	rel, err := filepath.Rel(filepath.Dir(file), p.root)
	if err != nil {
		return "", fmt.Errorf("failed to relate bundle to output root: %w", err)
	}
	return filepath.ToSlash(rel) + "/", nil
}

// Patch applies the fixed bundle patches. Each one only fires when its
// triggering pattern is present.
func Patch(content string) string {
	if strings.Contains(content, "edit.framer.com") {
		content = editorImport.ReplaceAllLiteralString(content, editorStub)
	}
	if relativeBase.MatchString(content) {
		content = relativeBaseFix.ReplaceAllString(content, `new URL("$1",new URL("$2",import.meta.url))`)
	}
	return content
}
