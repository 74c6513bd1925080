package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/conneroisu/ssrgate/internal/config"
	"github.com/conneroisu/ssrgate/internal/module"
	"github.com/conneroisu/ssrgate/internal/ssr"
	"github.com/conneroisu/ssrgate/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is written by the serve command while the test reads it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// unsetEnv clears key for the duration of the test, restoring it afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Short()+"\n", out)

	out, err = run(t, "version", "--format", "json")
	require.NoError(t, err)
	var info version.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info.GoVersion)

	_, err = run(t, "version", "--format", "xml")
	assert.Error(t, err)
}

func TestConfigInitAndShow(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := run(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, ".ssrgate.yml")
	assert.FileExists(t, ".ssrgate.yml")

	_, err = run(t, "config", "init")
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, "config", "init", "--force")
	require.NoError(t, err)

	content, err := os.ReadFile(".ssrgate.yml")
	require.NoError(t, err)
	assert.Contains(t, string(content), "port: 3001")
	assert.Contains(t, string(content), "debounce: 100ms")

	// The written defaults load back unchanged.
	out, err = run(t, "config", "show", "--format", "json")
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, config.DefaultPort, cfg.Server.Port)
	assert.Equal(t, ssr.DefaultMarker, cfg.Render.Marker)
	assert.Equal(t, 100*time.Millisecond, cfg.Development.Debounce)
}

func TestConfigShowPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, filepath.Join(dir, ".ssrgate.yml"), "server:\n  port: 4000\n  host: 0.0.0.0\n")

	out, err := run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "port: 4000")
	assert.Contains(t, out, "host: 0.0.0.0")

	t.Setenv("SSRGATE_SERVER_PORT", "4500")
	out, err = run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "port: 4500")

	custom := filepath.Join(dir, "prod.yml")
	writeFile(t, custom, "env: production\nlog:\n  level: debug\n")
	out, err = run(t, "config", "show", "--config", custom, "--log-level", "warn")
	require.NoError(t, err)
	assert.Contains(t, out, "env: production")
	assert.Contains(t, out, "level: warn")
}

func TestConfigFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	unsetEnv(t, "SSRGATE_SERVER_PORT")
	unsetEnv(t, "SSRGATE_ENV")
	writeFile(t, filepath.Join(dir, ".env"), "SSRGATE_SERVER_PORT=4100\nSSRGATE_ENV=production\n")

	out, err := run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "port: 4100")
	assert.Contains(t, out, "env: production")
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	out, err := run(t, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "defaults")
	assert.Contains(t, out, "development mode")

	bad := filepath.Join(dir, "bad.yml")
	writeFile(t, bad, "server:\n  port: 99999\n")
	_, err = run(t, "config", "validate", "--config", bad)
	assert.ErrorContains(t, err, "server.port")

	_, err = run(t, "config", "validate", "--config", filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
}

func TestModulesCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, filepath.Join(dir, "src", "entry-server.gohtml"), "<p>dev</p>")

	require.NoError(t, module.DefaultRegistry.Register("app/cmd-test", "test component", func(ctx context.Context, req *ssr.RenderRequest) (ssr.RenderResult, error) {
		return ssr.Fragment("x"), nil
	}))
	t.Cleanup(func() { module.DefaultRegistry.Remove("app/cmd-test") })

	out, err := run(t, "modules", "--format", "json")
	require.NoError(t, err)

	var rows []moduleRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.GreaterOrEqual(t, len(rows), 3)

	assert.Equal(t, "development", rows[0].Mode)
	assert.Equal(t, "src/entry-server.gohtml", rows[0].Module)
	assert.Equal(t, "template", rows[0].Kind)

	assert.Equal(t, "production", rows[1].Mode)
	assert.Equal(t, "missing", rows[1].Kind)

	var found bool
	for _, row := range rows[2:] {
		if row.Module == "app/cmd-test" {
			found = true
			assert.Equal(t, "registry", row.Kind)
			assert.Equal(t, "test component", row.Description)
		}
	}
	assert.True(t, found)

	out, err = run(t, "modules")
	require.NoError(t, err)
	assert.Contains(t, out, "MODE")
	assert.Contains(t, out, "Development")
	assert.Contains(t, out, "Registry")
}

func TestServeCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	unsetEnv(t, "SSRGATE_ENV")
	writeFile(t, filepath.Join(dir, "index.html"), "<html><body><!-- ssr-app --></body></html>")
	writeFile(t, filepath.Join(dir, "src", "entry-server.gohtml"), "<h1>{{.Path}}</h1>")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	root := NewRootCommand()
	root.SetOut(out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"serve", "--host", "127.0.0.1", "--port", "0", "--hot-reload=false", "--log-level", "error"})

	done := make(chan error, 1)
	go func() {
		done <- root.ExecuteContext(ctx)
	}()

	addr := regexp.MustCompile(`http://127\.0\.0\.1:\d+`)
	var url string
	require.Eventually(t, func() bool {
		url = addr.FindString(out.String())
		return url != ""
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), "Development")

	resp, err := http.Get(url + "/hello")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html><body><h1>/hello</h1></body></html>", strings.TrimSpace(string(body)))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}
