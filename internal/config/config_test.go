package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrigin(t *testing.T) {
	tests := []struct {
		name    string
		seed    string
		want    string
		wantErr bool
	}{
		{name: "plain", seed: "https://example.com", want: "https://example.com"},
		{name: "path dropped", seed: "https://example.com/blog/post", want: "https://example.com"},
		{name: "case folded", seed: "HTTPS://Example.COM/", want: "https://example.com"},
		{name: "port kept", seed: "http://127.0.0.1:8080/x", want: "http://127.0.0.1:8080"},
		{name: "no scheme", seed: "example.com", wantErr: true},
		{name: "ftp", seed: "ftp://example.com", wantErr: true},
		{name: "garbage", seed: "://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.StartURL = tt.seed
			origin, err := cfg.Origin()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSeed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, origin.String())
		})
	}
}

func TestSeedPath(t *testing.T) {
	cfg := Default()
	cfg.StartURL = "https://example.com"
	assert.Equal(t, "/", cfg.SeedPath())

	cfg.StartURL = "https://example.com/blog/"
	assert.Equal(t, "/blog", cfg.SeedPath())
}

func TestValidateNormalizes(t *testing.T) {
	cfg := Default()
	cfg.StartURL = "https://example.com"
	cfg.AssetWorkers = 0
	cfg.BundleExts = []string{"mjs", ".js"}
	cfg.Timeout = 0

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.AssetWorkers)
	assert.Equal(t, []string{".mjs", ".js"}, cfg.BundleExts)
	assert.Positive(t, cfg.Timeout)

	cfg.MaxPages = -1
	assert.Error(t, cfg.Validate())
}

func TestOutputDirFor(t *testing.T) {
	parent := t.TempDir()
	cfg := Default()
	cfg.StartURL = "https://www.example.com:8443"
	origin, err := cfg.Origin()
	require.NoError(t, err)

	first := OutputDirFor(parent, origin)
	assert.Equal(t, filepath.Join(parent, "www_example_com_8443"), first)

	require.NoError(t, os.MkdirAll(first, 0755))
	second := OutputDirFor(parent, origin)
	assert.Equal(t, filepath.Join(parent, "www_example_com_8443_2"), second)

	require.NoError(t, os.MkdirAll(second, 0755))
	assert.Equal(t, filepath.Join(parent, "www_example_com_8443_3"), OutputDirFor(parent, origin))
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SITEMIRROR_TEST_VALUE=from-dotenv\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("SITEMIRROR_TEST_VALUE") })

	require.NoError(t, LoadEnv(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "from-dotenv", os.Getenv("SITEMIRROR_TEST_VALUE"))

	assert.NoError(t, LoadEnv(filepath.Join(dir, "nope")))
}
