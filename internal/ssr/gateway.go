package ssr

import (
	"context"
	"net/http"
	"time"

	"github.com/conneroisu/ssrgate/internal/logging"
)

// State is a stage of one request's lifecycle.
type State int

const (
	StateReceived State = iota
	StateResolving
	StateRendering
	StateComposing
	StateResponded
	StateFailed
)

// String returns the string representation of the State
func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateResolving:
		return "resolving"
	case StateRendering:
		return "rendering"
	case StateComposing:
		return "composing"
	case StateResponded:
		return "responded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TransitionFunc observes state changes of a request.
type TransitionFunc func(ctx context.Context, requestURL string, from, to State)

// GatewayConfig holds the collaborators of a Gateway.
type GatewayConfig struct {
	Mode        Mode
	Marker      string
	Resolver    Resolver
	Executor    *Executor
	Diagnostics *Diagnostics
	Logger      logging.Logger
	// OnTransition is optional.
	OnTransition TransitionFunc
}

// Gateway is the catch-all SSR handler.
type Gateway struct {
	mode         Mode
	marker       string
	resolver     Resolver
	executor     *Executor
	diagnostics  *Diagnostics
	logger       logging.Logger
	onTransition TransitionFunc
}

// NewGateway creates the request gateway.
func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Marker == "" {
		cfg.Marker = DefaultMarker
	}
	if cfg.Executor == nil {
		cfg.Executor = NewExecutor(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	if cfg.Diagnostics == nil {
		cfg.Diagnostics = NewDiagnostics(cfg.Mode, nil, cfg.Logger)
	}

	return &Gateway{
		mode:         cfg.Mode,
		marker:       cfg.Marker,
		resolver:     cfg.Resolver,
		executor:     cfg.Executor,
		diagnostics:  cfg.Diagnostics,
		logger:       cfg.Logger.WithComponent("gateway"),
		onTransition: cfg.OnTransition,
	}
}

// requestRun is the state machine of one request.
type requestRun struct {
	g     *Gateway
	ctx   context.Context
	url   string
	state State
}

func (run *requestRun) transition(to State) {
	from := run.state
	run.state = to
	run.g.logger.Debug(run.ctx, "State transition", "url", run.url, "from", from.String(), "to", to.String())
	if run.g.onTransition != nil {
		run.g.onTransition(run.ctx, run.url, from, to)
	}
}

// ServeHTTP handles every method and path.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	run := &requestRun{g: g, ctx: r.Context(), url: r.URL.RequestURI(), state: StateReceived}

	resp := g.handle(run, NewRenderRequest(r, g.mode))
	if err := resp.WriteTo(w); err != nil {
		g.logger.Warn(run.ctx, err, "Failed to write response", "url", run.url)
	}

	g.logger.Debug(run.ctx, "Request handled",
		"url", run.url,
		"state", run.state.String(),
		"status", resp.Status,
		"duration", time.Since(start).String(),
	)
}

// Render runs the pipeline for req without an HTTP response writer.
func (g *Gateway) Render(ctx context.Context, req *RenderRequest) Response {
	return g.handle(&requestRun{g: g, ctx: ctx, url: req.URL, state: StateReceived}, req)
}

func (g *Gateway) handle(run *requestRun, req *RenderRequest) Response {
	run.transition(StateResolving)
	template, entry, err := g.resolver.Resolve(run.ctx, run.url)
	if err != nil {
		return g.fail(run, err)
	}

	run.transition(StateRendering)
	fragment, err := g.executor.Execute(run.ctx, entry, req)
	if err != nil {
		return g.fail(run, err)
	}

	run.transition(StateComposing)
	if !HasMarker(template, g.marker) {
		g.logger.Debug(run.ctx, "Template has no marker, fragment dropped", "url", run.url, "marker", g.marker)
	}
	resp := Compose(template, g.marker, fragment)

	run.transition(StateResponded)
	return resp
}

func (g *Gateway) fail(run *requestRun, err error) Response {
	run.transition(StateFailed)
	return g.diagnostics.Report(run.ctx, err)
}
