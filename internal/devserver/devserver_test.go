package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/conneroisu/ssrgate/internal/errors"
	"github.com/conneroisu/ssrgate/internal/livereload"
	"github.com/conneroisu/ssrgate/internal/module"
	"github.com/conneroisu/ssrgate/internal/ssr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newServer(t *testing.T, root string, hotReload bool) *Server {
	t.Helper()
	s, err := New(Config{
		Root:      root,
		HotReload: hotReload,
		Debounce:  20 * time.Millisecond,
		Loader:    module.NewLoader(root, module.WithRegistry(module.NewRegistry())),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func renderFragment(t *testing.T, entry ssr.EntryPoint) string {
	t.Helper()
	html, err := ssr.NewExecutor(0).Execute(context.Background(), entry, &ssr.RenderRequest{URL: "/", Path: "/"})
	require.NoError(t, err)
	return html
}

func TestTransformTemplateInjectionPoint(t *testing.T) {
	s := newServer(t, t.TempDir(), true)
	tag := `<script src="/__ssrgate/client.js" data-ssrgate-url="/p?a=1&amp;b=2"></script>`

	testCases := []struct {
		name     string
		raw      string
		expected string
	}{
		{
			name:     "before head close",
			raw:      "<html><head><title>x</title></head><body><!-- ssr-app --></body></html>",
			expected: "<html><head><title>x</title>" + tag + "</head><body><!-- ssr-app --></body></html>",
		},
		{
			name:     "before body close without head",
			raw:      "<body><div id=app><!-- ssr-app --></div></body>",
			expected: "<body><div id=app><!-- ssr-app --></div>" + tag + "</body>",
		},
		{
			name:     "appended to fragment",
			raw:      "<div><!-- ssr-app --></div>",
			expected: "<div><!-- ssr-app --></div>" + tag,
		},
		{
			name:     "head close inside script is ignored",
			raw:      "<head><script>var s = '</body>';</script></head>",
			expected: "<head><script>var s = '</body>';</script>" + tag + "</head>",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := s.TransformTemplate(context.Background(), "/p?a=1&b=2", tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, out)
		})
	}
}

func TestTransformTemplateWithoutHotReload(t *testing.T) {
	s := newServer(t, t.TempDir(), false)
	out, err := s.TransformTemplate(context.Background(), "/", "<head></head>")
	require.NoError(t, err)
	assert.Equal(t, "<head></head>", out)
	assert.False(t, s.HotReload())
}

func TestLoadEntryPointSeesEdits(t *testing.T) {
	root := t.TempDir()
	entryPath := filepath.Join(root, "src", "entry-server.gohtml")
	writeFile(t, entryPath, "<p>v1</p>")

	s := newServer(t, root, false)

	entry, err := s.LoadEntryPoint(context.Background(), "src/entry-server.gohtml")
	require.NoError(t, err)
	assert.Equal(t, "<p>v1</p>", renderFragment(t, entry))
	assert.Equal(t, []string{"src/entry-server.gohtml"}, s.Modules())

	writeFile(t, entryPath, "<p>v2</p>")

	entry, err = s.LoadEntryPoint(context.Background(), "src/entry-server.gohtml")
	require.NoError(t, err)
	assert.Equal(t, "<p>v2</p>", renderFragment(t, entry))
}

func TestLoadEntryPointBrokenThenFixed(t *testing.T) {
	root := t.TempDir()
	entryPath := filepath.Join(root, "src", "entry-server.gohtml")
	writeFile(t, entryPath, "{{ if .Path }}")

	s := newServer(t, root, false)

	_, err := s.LoadEntryPoint(context.Background(), "src/entry-server.gohtml")
	require.Error(t, err)
	assert.True(t, errors.IsModuleLoadError(err))
	assert.Empty(t, s.Modules())

	writeFile(t, entryPath, "{{ if .Path }}ok{{ end }}")
	entry, err := s.LoadEntryPoint(context.Background(), "src/entry-server.gohtml")
	require.NoError(t, err)
	assert.Equal(t, "ok", renderFragment(t, entry))
}

func TestLoadEntryPointMissingModule(t *testing.T) {
	s := newServer(t, t.TempDir(), false)
	_, err := s.LoadEntryPoint(context.Background(), "src/entry-server.gohtml")
	require.Error(t, err)

	ge, ok := errors.AsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeModuleNotFound, ge.Code)
}

func TestRemapStackTraceTemplateError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "entry-server.gohtml"), "<main>\n  <h1>{{.Path}}</h1>\n  {{index .Query.tags 2}}\n</main>\n")

	s := newServer(t, root, false)
	entry, err := s.LoadEntryPoint(context.Background(), "src/entry-server.gohtml")
	require.NoError(t, err)

	req := &ssr.RenderRequest{URL: "/?tags=a", Path: "/", Query: url.Values{"tags": {"a"}}}
	_, renderErr := ssr.NewExecutor(0).Execute(context.Background(), entry, req)
	require.Error(t, renderErr)

	remapped := s.RemapStackTrace(renderErr)
	ge, ok := errors.AsGatewayError(remapped)
	require.True(t, ok)

	assert.Equal(t, "src/entry-server.gohtml", ge.FilePath)
	assert.Equal(t, 3, ge.Line)
	assert.Contains(t, ge.Stack, "template: src/entry-server.gohtml:3:")
	assert.Contains(t, ge.Stack, "Source src/entry-server.gohtml:3:")
	assert.Contains(t, ge.Stack, "→    3 |   {{index .Query.tags 2}}")

	trace := errors.StackTrace(remapped)
	assert.Contains(t, trace, "index out of range")
	assert.Equal(t, 1, strings.Count(trace, "error calling index"), trace)

	original, _ := errors.AsGatewayError(renderErr)
	assert.NotContains(t, original.Stack, "Source ")
}

func TestRemapStackTraceRelativeGoFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.go"), "package main\n\nfunc main() {\n\trender()\n}\n")

	s := newServer(t, root, false)
	err := errors.NewRenderError(errors.ErrCodeRenderFailed, "render process failed", nil).
		WithStack("# command-line-arguments\n./main.go:4:2: undefined: render\n")

	ge, ok := errors.AsGatewayError(s.RemapStackTrace(err))
	require.True(t, ok)
	assert.Contains(t, ge.Stack, "main.go:4:2: undefined: render")
	assert.Contains(t, ge.Stack, "→    4 | \trender()")
	assert.Equal(t, "main.go", ge.FilePath)
}

func TestRemapStackTraceOutsideProject(t *testing.T) {
	s := newServer(t, t.TempDir(), false)

	err := errors.NewRenderError(errors.ErrCodeRenderPanic, "render panicked", nil).
		WithStack("goroutine 1 [running]:\n\t/usr/local/go/src/runtime/panic.go:770 +0x132\n")
	assert.Same(t, err, s.RemapStackTrace(err))

	assert.Nil(t, s.RemapStackTrace(nil))
}

func TestWatcherInvalidatesAndBroadcasts(t *testing.T) {
	root := t.TempDir()
	entryPath := filepath.Join(root, "src", "entry-server.gohtml")
	writeFile(t, entryPath, "<p>v1</p>")

	s := newServer(t, root, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	_, err := s.LoadEntryPoint(context.Background(), "src/entry-server.gohtml")
	require.NoError(t, err)

	mux := http.NewServeMux()
	s.Mount(mux)
	server := httptest.NewServer(mux)
	defer server.Close()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dialCancel()
	conn, _, err := websocket.Dial(dialCtx, "ws"+strings.TrimPrefix(server.URL, "http")+livereload.SocketPath, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	readType := func() livereload.UpdateMessage {
		readCtx, readCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer readCancel()
		_, data, err := conn.Read(readCtx)
		require.NoError(t, err)
		var msg livereload.UpdateMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	}
	assert.Equal(t, livereload.MessageConnected, readType().Type)

	writeFile(t, entryPath, "<p>v2</p>")

	msg := readType()
	assert.Equal(t, livereload.MessageFullReload, msg.Type)
	assert.Equal(t, "src/entry-server.gohtml", msg.Target)
	assert.Eventually(t, func() bool { return len(s.Modules()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestMountServesClientScript(t *testing.T) {
	s := newServer(t, t.TempDir(), true)
	mux := http.NewServeMux()
	s.Mount(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, livereload.ScriptPath, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), livereload.SocketPath)
}

func TestDevelopmentPipelineEndToEnd(t *testing.T) {
	root := t.TempDir()
	paths := ssr.DefaultPaths(root)
	writeFile(t, paths.Abs(paths.DevTemplate), "<html><head></head><body><div id=\"app\"><!-- ssr-app --></div></body></html>")
	writeFile(t, paths.Abs(paths.DevEntry), "<h1>Hello {{.Query.Get \"name\"}}</h1>")

	s := newServer(t, root, true)
	gw := ssr.NewGateway(ssr.GatewayConfig{
		Mode:        ssr.Development,
		Resolver:    ssr.NewDevResolver(paths, s),
		Diagnostics: ssr.NewDiagnostics(ssr.Development, s, nil),
	})

	w := httptest.NewRecorder()
	gw.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/greet?name=Ada", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `<div id="app"><h1>Hello Ada</h1></div>`)
	assert.Contains(t, body, `data-ssrgate-url="/greet?name=Ada"></script></head>`)

	writeFile(t, paths.Abs(paths.DevEntry), "{{ .Missing }}")
	w = httptest.NewRecorder()
	gw.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, ssr.ContentTypeText, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "src/entry-server.gohtml:1")
}
