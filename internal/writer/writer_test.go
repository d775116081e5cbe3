package writer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-scripts/sitemirror/internal/types"
)

func setupTestDir(t *testing.T) string {
	dir := filepath.Join(t.TempDir(), "out", "example_com")
	return dir
}

func TestWriteAndReadPage(t *testing.T) {
	dir := setupTestDir(t)
	w, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, w.Root())

	tests := []struct {
		path types.PagePath
		file string
	}{
		{types.Root, "index.html"},
		{"/about", "about.html"},
		{"/blog/post-1", filepath.Join("blog", "post-1.html")},
	}
	for _, tt := range tests {
		require.NoError(t, w.WritePage(tt.path, "<p>"+string(tt.path)+"</p>"))
		assert.FileExists(t, filepath.Join(dir, tt.file))

		doc, err := w.ReadPage(tt.path)
		require.NoError(t, err)
		assert.Equal(t, "<p>"+string(tt.path)+"</p>", doc)
	}

	require.NoError(t, w.WritePage("/about", "short"))
	doc, err := w.ReadPage("/about")
	require.NoError(t, err)
	assert.Equal(t, "short", doc)

	_, err = w.ReadPage("/missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriteManifest(t *testing.T) {
	dir := setupTestDir(t)
	w, err := New(dir)
	require.NoError(t, err)

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := &Manifest{
		Origin:     "https://example.com",
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
		Summary:    types.Summary{PagesCloned: 2, AssetsFailed: 1},
		Pages: []types.PageRecord{
			{Path: types.Root, File: "index.html", Title: "Home", State: types.StateCompleted},
			{Path: "/gone", State: types.StateFailed, Err: "HTTP 404"},
		},
		Assets: []types.AssetEntry{{URL: "https://cdn.example/x.png", LocalPath: "assets/x.png", Downloaded: true}},
	}
	require.NoError(t, w.WriteManifest(m))

	_, err = uuid.Parse(m.RunID)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	require.NoError(t, err)

	var decoded Manifest
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, m.RunID, decoded.RunID)
	assert.Equal(t, 2, decoded.Summary.PagesCloned)
	assert.Len(t, decoded.Pages, 2)
	assert.Equal(t, types.StateFailed, decoded.Pages[1].State)
	assert.True(t, decoded.Assets[0].Downloaded)
}

func TestPageTitle(t *testing.T) {
	assert.Equal(t, "Pricing | Acme", PageTitle(`<html><head><title> Pricing | Acme </title></head></html>`))
	assert.Equal(t, "", PageTitle(`<div>no title</div>`))
}
