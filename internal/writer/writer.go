package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/go-scripts/sitemirror/internal/types"
)

// ManifestFile is written at the output root when manifests are enabled.
const ManifestFile = "sitemirror.json"

// Manifest records what a run produced.
type Manifest struct {
	RunID      string             `json:"run_id"`
	Origin     string             `json:"origin"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Summary    types.Summary      `json:"summary"`
	Pages      []types.PageRecord `json:"pages"`
	Assets     []types.AssetEntry `json:"assets"`
}

// FileWriter handles writing mirrored pages below the output root
type FileWriter struct {
	outputDir string
}

// New creates a new FileWriter instance
func New(outputDir string) (*FileWriter, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &FileWriter{outputDir: outputDir}, nil
}

// Root returns the output root.
func (w *FileWriter) Root() string {
	return w.outputDir
}

// PageFile is the absolute location of a page's document.
func (w *FileWriter) PageFile(p types.PagePath) string {
	return filepath.Join(w.outputDir, filepath.FromSlash(p.File()))
}

// WritePage persists a page document, creating parent directories as needed.
func (w *FileWriter) WritePage(p types.PagePath, doc string) error {
	path := w.PageFile(p)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create page directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(doc); err != nil {
		return fmt.Errorf("failed to write page %s: %w", p, err)
	}
	return file.Close()
}

// ReadPage loads a previously written page document.
func (w *FileWriter) ReadPage(p types.PagePath) (string, error) {
	data, err := os.ReadFile(w.PageFile(p))
	if err != nil {
		return "", fmt.Errorf("failed to read page %s: %w", p, err)
	}
	return string(data), nil
}

// WriteManifest writes the run manifest, assigning a run ID if it has none.
func (w *FileWriter) WriteManifest(m *Manifest) error {
	if m.RunID == "" {
		m.RunID = uuid.NewString()
	}

	file, err := os.Create(filepath.Join(w.outputDir, ManifestFile))
	if err != nil {
		return fmt.Errorf("failed to create manifest file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(m); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	return file.Close()
}

// PageTitle extracts the document title, or "" when there is none.
func PageTitle(doc string) string {
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(d.Find("title").First().Text())
}
