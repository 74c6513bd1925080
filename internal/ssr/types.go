package ssr

import (
	"context"
	"net/http"
	"net/url"

	"github.com/a-h/templ"
)

// RenderRequest is what an entry point sees of the incoming request.
type RenderRequest struct {
	// URL is the original request URI including the query string. It is the
	// addressing key for resolution and template transformation.
	URL    string
	Path   string
	Query  url.Values
	Header http.Header
	Mode   Mode
}

// NewRenderRequest builds the RenderRequest for r.
func NewRenderRequest(r *http.Request, mode Mode) *RenderRequest {
	return &RenderRequest{
		URL:    r.URL.RequestURI(),
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Mode:   mode,
	}
}

// RenderResult is what an entry point returns: either a finished Fragment
// or an ApplicationTree that still has to go through the component renderer.
type RenderResult interface {
	isRenderResult()
}

// Fragment is already-rendered HTML.
type Fragment string

func (Fragment) isRenderResult() {}

// ApplicationTree is an application root rendered by the Executor.
type ApplicationTree struct {
	Root templ.Component
}

func (ApplicationTree) isRenderResult() {}

// EntryPoint produces the application output for one request. It may block
// on its own I/O; the Executor waits for it to finish.
type EntryPoint func(ctx context.Context, req *RenderRequest) (RenderResult, error)

// ModuleLoader resolves a render module path into an entry point.
type ModuleLoader interface {
	Load(ctx context.Context, modulePath string) (EntryPoint, error)
}

// ModuleLoaderFunc adapts a function to ModuleLoader.
type ModuleLoaderFunc func(ctx context.Context, modulePath string) (EntryPoint, error)

// Load calls f.
func (f ModuleLoaderFunc) Load(ctx context.Context, modulePath string) (EntryPoint, error) {
	return f(ctx, modulePath)
}

// DevAdapter is the development-mode collaborator: live template transforms,
// on-demand module loading and trace remapping.
type DevAdapter interface {
	// TransformTemplate applies live-reload transforms keyed by requestURL.
	TransformTemplate(ctx context.Context, requestURL, raw string) (string, error)
	// LoadEntryPoint loads the module at modulePath, reflecting the current
	// contents on disk.
	LoadEntryPoint(ctx context.Context, modulePath string) (EntryPoint, error)
	// RemapStackTrace returns err annotated with original source locations.
	RemapStackTrace(err error) error
}
