// Package server composes the SSR gateway, the development collaborator and
// the HTTP middleware into a running server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/conneroisu/ssrgate/internal/config"
	"github.com/conneroisu/ssrgate/internal/devserver"
	"github.com/conneroisu/ssrgate/internal/logging"
	"github.com/conneroisu/ssrgate/internal/manifest"
	"github.com/conneroisu/ssrgate/internal/middleware"
	"github.com/conneroisu/ssrgate/internal/module"
	"github.com/conneroisu/ssrgate/internal/ssr"
)

// HealthPath reports liveness and the running mode.
const HealthPath = "/__ssrgate/health"

// Server owns the process-wide state of the gateway: the mode, the
// development handle and the HTTP server.
type Server struct {
	config  *config.Config
	mode    ssr.Mode
	paths   ssr.Paths
	gateway *ssr.Gateway
	dev     *devserver.Server
	handler http.Handler
	logger  logging.Logger

	httpServer   *http.Server
	listener     net.Listener
	serverMutex  sync.RWMutex
	shutdownOnce sync.Once
	started      time.Time
}

// Option customizes a Server.
type Option func(*options)

type options struct {
	registry     *module.Registry
	onTransition ssr.TransitionFunc
}

// WithRegistry sets the registry of compiled-in render modules. The default
// is module.DefaultRegistry.
func WithRegistry(registry *module.Registry) Option {
	return func(o *options) { o.registry = registry }
}

// WithTransitionObserver reports every request state change.
func WithTransitionObserver(fn ssr.TransitionFunc) Option {
	return func(o *options) { o.onTransition = fn }
}

// New builds the server for the mode selected by cfg. In development it
// creates the dev handle; Start begins watching and Shutdown closes it.
func New(cfg *config.Config, logger logging.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	o := &options{registry: module.DefaultRegistry}
	for _, opt := range opts {
		opt(o)
	}

	paths, err := cfg.SSRPaths()
	if err != nil {
		return nil, err
	}

	s := &Server{
		config: cfg,
		mode:   cfg.Mode(),
		paths:  paths,
		logger: logger.WithComponent("server"),
	}

	loader := module.NewLoader(paths.Root, module.WithRegistry(o.registry), module.WithLogger(logger))

	var resolver ssr.Resolver
	var adapter ssr.DevAdapter
	switch s.mode {
	case ssr.Development:
		s.dev, err = devserver.New(devserver.Config{
			Root:           paths.Root,
			HotReload:      cfg.Development.HotReload,
			WatchPaths:     cfg.Development.WatchPaths,
			Debounce:       cfg.Development.Debounce,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Loader:         loader,
			Logger:         logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating development server: %w", err)
		}
		adapter = s.dev
		resolver = ssr.NewDevResolver(paths, s.dev)
	default:
		entry, err := manifest.ResolveServerEntry(paths.Abs(cfg.Paths.DistDir), paths.ProdEntry)
		if err != nil {
			return nil, fmt.Errorf("resolving production entry: %w", err)
		}
		s.paths.ProdEntry = entry
		resolver = ssr.NewProdResolver(s.paths, loader)
	}

	s.gateway = ssr.NewGateway(ssr.GatewayConfig{
		Mode:         s.mode,
		Marker:       cfg.Render.Marker,
		Resolver:     resolver,
		Executor:     ssr.NewExecutor(cfg.Render.Timeout),
		Diagnostics:  ssr.NewDiagnostics(s.mode, adapter, logger),
		Logger:       logger,
		OnTransition: o.onTransition,
	})

	s.handler, err = s.buildHandler()
	if err != nil {
		s.closeDev(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Server) buildHandler() (http.Handler, error) {
	mux := http.NewServeMux()
	mux.HandleFunc(HealthPath, s.handleHealth)
	if s.dev != nil {
		s.dev.Mount(mux)
	}
	mux.Handle("/", s.gateway)

	chain := middleware.NewChain(
		middleware.RequestID(),
		middleware.AccessLog(s.logger),
		middleware.Recover(s.logger),
	)
	if s.mode == ssr.Production {
		if s.config.Production.Compression {
			compress, err := middleware.Compress(s.config.Production.CompressionMinSize)
			if err != nil {
				return nil, err
			}
			chain.Add(compress)
		}
		chain.Add(middleware.Static(s.paths.Abs(s.config.Paths.ClientDir)))
	}
	return chain.Apply(mux), nil
}

// Handler returns the composed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Mode returns the mode the server was built for.
func (s *Server) Mode() ssr.Mode {
	return s.mode
}

// Paths returns the resolved artifact locations, including the production
// entry chosen from the build manifest.
func (s *Server) Paths() ssr.Paths {
	return s.paths
}

// Addr returns the bound address once the server listens, and the
// configured address before that.
func (s *Server) Addr() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr()
}

// Listen binds the configured address. Start calls it when needed.
func (s *Server) Listen() error {
	s.serverMutex.Lock()
	defer s.serverMutex.Unlock()
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Addr(), err)
	}
	s.listener = ln
	return nil
}

// Start serves until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if s.dev != nil {
		if err := s.dev.Start(ctx); err != nil {
			return fmt.Errorf("starting development server: %w", err)
		}
	}
	if err := s.Listen(); err != nil {
		return err
	}

	s.serverMutex.Lock()
	s.started = time.Now()
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	ln := s.listener
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "Server listening", "addr", ln.Addr().String(), "mode", s.mode.String())

	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones and closes
// the development handle. It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")

		s.serverMutex.RLock()
		server := s.httpServer
		ln := s.listener
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		} else if ln != nil {
			shutdownErr = ln.Close()
		}

		s.closeDev(ctx)
	})

	return shutdownErr
}

func (s *Server) closeDev(ctx context.Context) {
	if s.dev == nil {
		return
	}
	if err := s.dev.Close(ctx); err != nil {
		s.logger.Warn(ctx, err, "Closing development server failed")
	}
}
