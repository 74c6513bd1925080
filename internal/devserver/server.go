// Package devserver is the development-mode collaborator of the SSR
// pipeline. It rewrites the HTML template for live reload, loads render
// modules fresh from disk, maps failure traces back to project sources and
// pushes reloads to the browser when files change.
package devserver

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/ssrgate/internal/errors"
	"github.com/conneroisu/ssrgate/internal/livereload"
	"github.com/conneroisu/ssrgate/internal/logging"
	"github.com/conneroisu/ssrgate/internal/module"
	"github.com/conneroisu/ssrgate/internal/ssr"
	"github.com/conneroisu/ssrgate/internal/watcher"
)

// Config configures a development server.
type Config struct {
	Root string
	// HotReload enables the file watcher, the websocket hub and script
	// injection.
	HotReload bool
	// WatchPaths are directories watched recursively, relative to Root.
	// Empty means Root itself.
	WatchPaths []string
	Debounce   time.Duration
	// AllowedOrigins are accepted by the live reload socket in addition to
	// the server's own host.
	AllowedOrigins []string
	Loader         *module.Loader
	Logger         logging.Logger
}

// Server implements ssr.DevAdapter. It is created once per process and
// closed on shutdown.
type Server struct {
	root    string
	loader  *module.Loader
	graph   *moduleGraph
	parser  *errors.TraceParser
	hub     *livereload.Hub
	watcher *watcher.FileWatcher
	logger  logging.Logger

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New creates the development server. Watching starts with Start.
func New(cfg Config) (*Server, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	loader := cfg.Loader
	if loader == nil {
		loader = module.NewLoader(root, module.WithLogger(logger))
	}

	s := &Server{
		root:   root,
		loader: loader,
		graph:  newModuleGraph(),
		parser: errors.NewTraceParser(),
		logger: logger.WithComponent("devserver"),
	}

	if !cfg.HotReload {
		return s, nil
	}

	s.hub = livereload.NewHub(cfg.AllowedOrigins, logger)

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	fw, err := watcher.NewFileWatcher(root, debounce, logger)
	if err != nil {
		_ = s.hub.Shutdown(context.Background())
		return nil, err
	}
	fw.AddFilter(watcher.SourceFilter)
	fw.AddFilter(watcher.NoTestFilter)
	fw.AddFilter(watcher.NoEditorTempFilter)
	fw.AddFilter(watcher.NoGitFilter)
	fw.AddHandler(s.handleChanges)

	watchPaths := cfg.WatchPaths
	if len(watchPaths) == 0 {
		watchPaths = []string{"."}
	}
	for _, p := range watchPaths {
		if err := fw.AddRecursive(p); err != nil {
			_ = fw.Stop()
			_ = s.hub.Shutdown(context.Background())
			return nil, fmt.Errorf("watching %s: %w", p, err)
		}
	}
	s.watcher = fw

	return s, nil
}

// Start begins watching for changes. It is a no-op without hot reload.
func (s *Server) Start(ctx context.Context) error {
	if s.watcher == nil {
		return nil
	}
	ctx, s.cancel = context.WithCancel(ctx)
	return s.watcher.Start(ctx)
}

// Mount registers the live reload endpoints on mux.
func (s *Server) Mount(mux *http.ServeMux) {
	if s.hub == nil {
		return
	}
	mux.Handle(livereload.SocketPath, s.hub)
	mux.HandleFunc(livereload.ScriptPath, livereload.ServeClientScript)
}

// Root returns the absolute project root.
func (s *Server) Root() string {
	return s.root
}

// HotReload reports whether live reload is active.
func (s *Server) HotReload() bool {
	return s.hub != nil
}

// Close stops the watcher and disconnects browsers.
func (s *Server) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.watcher != nil {
			err = s.watcher.Stop()
		}
		if s.hub != nil {
			if hubErr := s.hub.Shutdown(ctx); err == nil {
				err = hubErr
			}
		}
	})
	return err
}

// handleChanges invalidates changed modules and asks browsers to reload.
func (s *Server) handleChanges(events []watcher.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}

	ctx := context.Background()
	for _, event := range events {
		if s.graph.invalidate(event.Path) {
			s.logger.Debug(ctx, "Invalidated render module", "path", s.display(event.Path), "event", event.Type.String())
		}
	}

	target := s.display(events[0].Path)
	s.logger.Info(ctx, "Source changed, reloading browsers", "target", target, "changes", len(events))
	if s.hub != nil {
		s.hub.Broadcast(livereload.UpdateMessage{
			Type:   livereload.MessageFullReload,
			Target: target,
		})
	}
	return nil
}

// display returns path relative to the project root when it lies inside it.
func (s *Server) display(path string) string {
	if rel, ok := s.relative(path); ok {
		return rel
	}
	return filepath.ToSlash(path)
}

func (s *Server) relative(path string) (string, bool) {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(path), true
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

var _ ssr.DevAdapter = (*Server)(nil)
