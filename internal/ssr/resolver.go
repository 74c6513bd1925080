package ssr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/conneroisu/ssrgate/internal/errors"
)

// Paths locates the artifacts of both modes. Relative entries are resolved
// against Root.
type Paths struct {
	Root         string
	DevTemplate  string
	DevEntry     string
	ProdTemplate string
	ProdEntry    string
}

// DefaultPaths returns the conventional project layout.
func DefaultPaths(root string) Paths {
	return Paths{
		Root:         root,
		DevTemplate:  "index.html",
		DevEntry:     "src/entry-server.gohtml",
		ProdTemplate: "dist/client/index.html",
		ProdEntry:    "dist/server/entry-server.gohtml",
	}
}

// Abs joins p with Root unless p is already absolute.
func (p Paths) Abs(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(p.Root, rel)
}

// Resolver returns the template and entry point for one request.
type Resolver interface {
	Resolve(ctx context.Context, requestURL string) (string, EntryPoint, error)
}

// NewResolver returns the resolver for mode. Development requires adapter,
// production requires loader.
func NewResolver(mode Mode, paths Paths, adapter DevAdapter, loader ModuleLoader) (Resolver, error) {
	switch mode {
	case Development:
		if adapter == nil {
			return nil, fmt.Errorf("development mode requires a dev adapter")
		}
		return NewDevResolver(paths, adapter), nil
	case Production:
		if loader == nil {
			return nil, fmt.Errorf("production mode requires a module loader")
		}
		return NewProdResolver(paths, loader), nil
	default:
		return nil, fmt.Errorf("unknown mode %d", mode)
	}
}

// DevResolver re-reads and re-loads everything on every request.
type DevResolver struct {
	paths   Paths
	adapter DevAdapter
}

// NewDevResolver creates a development resolver.
func NewDevResolver(paths Paths, adapter DevAdapter) *DevResolver {
	return &DevResolver{paths: paths, adapter: adapter}
}

// Resolve reads the template, transforms it and loads the entry point fresh.
func (r *DevResolver) Resolve(ctx context.Context, requestURL string) (string, EntryPoint, error) {
	raw, err := readTemplate(r.paths.Abs(r.paths.DevTemplate))
	if err != nil {
		return "", nil, err
	}

	template, err := r.adapter.TransformTemplate(ctx, requestURL, raw)
	if err != nil {
		return "", nil, errors.NewInternalError(errors.ErrCodeTransform, "failed to transform template", err).
			WithLocation(r.paths.Abs(r.paths.DevTemplate), 0, 0)
	}

	entry, err := r.adapter.LoadEntryPoint(ctx, r.paths.DevEntry)
	if err != nil {
		return "", nil, asModuleLoadError(r.paths.DevEntry, err)
	}

	return template, entry, nil
}

// ProdResolver reads the pre-built template per request and loads the
// pre-built entry point once.
type ProdResolver struct {
	paths  Paths
	loader ModuleLoader

	mu    sync.Mutex
	entry EntryPoint
}

// NewProdResolver creates a production resolver.
func NewProdResolver(paths Paths, loader ModuleLoader) *ProdResolver {
	return &ProdResolver{paths: paths, loader: loader}
}

// Resolve reads the template and returns the memoized entry point.
func (r *ProdResolver) Resolve(ctx context.Context, requestURL string) (string, EntryPoint, error) {
	template, err := readTemplate(r.paths.Abs(r.paths.ProdTemplate))
	if err != nil {
		return "", nil, err
	}

	entry, err := r.entryPoint(ctx)
	if err != nil {
		return "", nil, err
	}

	return template, entry, nil
}

// entryPoint loads the module on first use. Only a successful load is
// memoized; a failed load fails the current request and the next request
// tries again.
func (r *ProdResolver) entryPoint(ctx context.Context) (EntryPoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entry != nil {
		return r.entry, nil
	}

	modulePath := r.paths.Abs(r.paths.ProdEntry)
	entry, err := r.loader.Load(ctx, modulePath)
	if err != nil {
		return nil, asModuleLoadError(modulePath, err)
	}
	if entry == nil {
		return nil, errors.NewModuleLoadError(errors.ErrCodeModuleLoad, modulePath, fmt.Errorf("module has no render entry point"))
	}

	r.entry = entry
	return entry, nil
}

func readTemplate(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", errors.NewReadError(path, err)
	}
	return string(content), nil
}

func asModuleLoadError(modulePath string, err error) error {
	if errors.IsModuleLoadError(err) {
		return err
	}
	return errors.NewModuleLoadError(errors.ErrCodeModuleLoad, modulePath, err)
}
