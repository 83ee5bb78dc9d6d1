package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootCommandTree(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	require.Subset(t, names, []string{"serve", "generate", "preview", "version"})
	require.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "sitekb-crawler "+Version)
}

func TestGenerateRequiresURL(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "generate")
	require.Error(t, err)
	require.Contains(t, err.Error(), `"url"`)
}

func TestRequestFlagsOverrideOnlyChanged(t *testing.T) {
	t.Parallel()

	var flags requestFlags
	cmd := &cobra.Command{Use: "x"}
	flags.register(cmd)
	require.NoError(t, cmd.ParseFlags([]string{
		"--url", "https://example.com",
		"--max-pages", "40",
		"--respect-robots=false",
		"--path-prefix", "/docs",
		"--render", "auto",
		"--budget", "45s",
	}))

	base := crawler.CrawlRequest{
		MaxPages:      10,
		MaxDepth:      3,
		RespectRobots: true,
		UseSitemap:    true,
		StripLinks:    true,
		MinTextChars:  600,
		RenderMode:    crawler.RenderPlain,
		Budget:        90 * time.Second,
	}
	got := flags.request(cmd, base)
	require.Equal(t, "https://example.com", got.SeedURL)
	require.Equal(t, 40, got.MaxPages)
	require.Equal(t, 3, got.MaxDepth)
	require.False(t, got.RespectRobots)
	require.True(t, got.UseSitemap)
	require.True(t, got.StripLinks)
	require.Equal(t, 600, got.MinTextChars)
	require.Equal(t, []string{"/docs"}, got.PathPrefixes)
	require.Equal(t, crawler.RenderAuto, got.RenderMode)
	require.Equal(t, 45*time.Second, got.Budget)
}

func newDocsSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Docs</title></head><body><main>
			<h1>Docs home</h1><p>Start with the installation guide.</p>
			<a href="/install">Install</a></main></body></html>`)
	})
	mux.HandleFunc("/install", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Install</title></head><body><main>
			<h1>Install</h1><p>Download the binary and put it on your PATH.</p></main></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
crawler:
  per_host_rps: 100
  per_host_burst: 10
logging:
  level: error
`), 0o600))
	return path
}

func TestGenerateWritesBundle(t *testing.T) {
	t.Parallel()

	srv := newDocsSite(t)
	outDir := t.TempDir()

	out, err := execute(t, "generate", "--config", writeConfig(t),
		"--url", srv.URL, "--out-dir", outDir, "--min-text-chars", "0")
	require.NoError(t, err)
	require.Contains(t, out, "2 pages")

	matches, err := filepath.Glob(filepath.Join(outDir, "*.md"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	require.Contains(t, string(data), "Start with the installation guide.")
	require.Contains(t, string(data), "Download the binary")
}

func TestPreviewPrintsItems(t *testing.T) {
	t.Parallel()

	srv := newDocsSite(t)
	out, err := execute(t, "preview", "--config", writeConfig(t), "--url", srv.URL)
	require.NoError(t, err)

	var items []crawler.PreviewItem
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 2)
	require.Equal(t, "Docs", items[0].Title)
}
