package bundle

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-scripts/sitemirror/internal/assets"
	"github.com/go-scripts/sitemirror/internal/fetch"
)

func writeBundle(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestPatch(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "editor bootstrap",
			in:   `const m=await import("https://edit.framer.com/init.mjs");`,
			want: `const m=await Promise.resolve({createEditorBar:()=>()=>null});`,
		},
		{
			name: "relative base",
			in:   `fetch(new URL("./data.framercms","../modules/x/"))`,
			want: `fetch(new URL("./data.framercms",new URL("../modules/x/",import.meta.url)))`,
		},
		{
			name: "unrelated call between constructors",
			in:   `new URL("./app.js",import.meta.url);g("x","../y");new URL("./d.framercms","../e/")`,
			want: `new URL("./app.js",import.meta.url);g("x","../y");new URL("./d.framercms",new URL("../e/",import.meta.url))`,
		},
		{
			name: "nothing to do",
			in:   `new URL("./a","https://example.com/")`,
			want: `new URL("./a","https://example.com/")`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Patch(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Patch(got))
		})
	}
}

func TestProcess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/fonts/inter.woff2", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "font")
	})
	mux.HandleFunc("/images/bg.png", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "png")
	})
	var server *httptest.Server
	mux.HandleFunc("/modules/chunk.mjs", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `export const bg="`+server.URL+`/images/bg.png";`)
	})
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)

	host, err := url.Parse(server.URL)
	require.NoError(t, err)

	root := t.TempDir()
	logger := log.New(io.Discard)
	resolver := assets.NewResolver(root, fetch.NewHTTPFetcher("test", 5*time.Second), logger, 2)
	scanner := assets.NewScanner([]string{host.Host})

	mainBundle := writeBundle(t, root, "assets/sites/app/main.mjs",
		`import("`+server.URL+`/modules/chunk.mjs");const f="`+server.URL+`/fonts/inter.woff2";`+
			`import("https://edit.framer.com/init.mjs");`)
	plain := writeBundle(t, root, "assets/sites/app/plain.mjs", `export default 1;`)
	css := writeBundle(t, root, "assets/style.css", server.URL+"/images/bg.png")

	p := New(root, []string{".mjs"}, scanner, resolver, logger)
	report, err := p.Process(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 2, report.Modified)
	assert.Equal(t, 0, report.AssetErrors)

	assert.Equal(t,
		`import("../../../assets/modules/chunk.mjs");const f="../../../assets/fonts/inter.woff2";`+
			editorStub+`;`,
		readFile(t, mainBundle))
	assert.Equal(t, `export const bg="../../assets/images/bg.png";`,
		readFile(t, filepath.Join(root, "assets", "modules", "chunk.mjs")))
	assert.Equal(t, `export default 1;`, readFile(t, plain))
	assert.Equal(t, server.URL+"/images/bg.png", readFile(t, css))
	assert.Equal(t, "font", readFile(t, filepath.Join(root, "assets", "fonts", "inter.woff2")))

	again, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, again.Processed)
	assert.Equal(t, 0, again.Modified)
}

func TestProcessWithoutAssetsDir(t *testing.T) {
	logger := log.New(io.Discard)
	p := New(t.TempDir(), []string{".mjs"}, assets.NewScanner(nil), nil, logger)

	report, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
}
