// Package module turns render module paths into entry points.
//
// Three kinds of module are understood. Compiled-in registry entries are
// consulted first; otherwise the file on disk decides: html/template files
// (.gohtml, .tmpl, .html) are parsed and executed in-process, Go source files
// are run with `go run`, and any other executable file is run directly. The
// two process kinds receive the request through SSR_URL, SSR_PATH and
// SSR_MODE and write the rendered fragment to stdout.
package module

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/ssrgate/internal/errors"
	"github.com/conneroisu/ssrgate/internal/logging"
	"github.com/conneroisu/ssrgate/internal/ssr"
	"github.com/conneroisu/ssrgate/internal/validation"
)

// Kind identifies how a module is loaded.
type Kind int

const (
	KindUnknown Kind = iota
	KindRegistry
	KindTemplate
	KindGoRun
	KindExecutable
)

// String returns the kind's display name.
func (k Kind) String() string {
	switch k {
	case KindRegistry:
		return "registry"
	case KindTemplate:
		return "template"
	case KindGoRun:
		return "go-run"
	case KindExecutable:
		return "executable"
	default:
		return "unknown"
	}
}

var templateExtensions = map[string]bool{
	".gohtml": true,
	".tmpl":   true,
	".html":   true,
}

// Source is a resolved module: where it lives and how it loads.
type Source struct {
	// Name is the module path as requested, relative to the project root
	// when it lies inside it.
	Name string
	Key  string
	// Path is the absolute file path. Empty for registry modules.
	Path string
	Kind Kind
}

// Loader loads render modules relative to a project root. It implements
// ssr.ModuleLoader.
type Loader struct {
	root     string
	registry *Registry
	logger   logging.Logger
	goBinary string
}

// Option configures a Loader.
type Option func(*Loader)

// WithRegistry replaces DefaultRegistry.
func WithRegistry(registry *Registry) Option {
	return func(l *Loader) { l.registry = registry }
}

// WithLogger sets the loader's logger.
func WithLogger(logger logging.Logger) Option {
	return func(l *Loader) { l.logger = logger.WithComponent("module_loader") }
}

// WithGoBinary overrides the command used for Go source modules.
func WithGoBinary(goBinary string) Option {
	return func(l *Loader) { l.goBinary = goBinary }
}

// NewLoader creates a loader rooted at root.
func NewLoader(root string, opts ...Option) *Loader {
	l := &Loader{
		root:     root,
		registry: DefaultRegistry,
		logger:   logging.NewNopLogger(),
		goBinary: "go",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Root returns the project root.
func (l *Loader) Root() string {
	return l.root
}

// Registry returns the registry consulted before the filesystem.
func (l *Loader) Registry() *Registry {
	return l.registry
}

// Resolve works out which module modulePath refers to without loading it.
func (l *Loader) Resolve(modulePath string) (Source, error) {
	name := l.relativeName(modulePath)

	if entry, ok := l.registry.Get(name); ok {
		return Source{Name: name, Key: entry.Key, Kind: KindRegistry}, nil
	}

	file, err := validation.ValidateWithinRoot(l.root, modulePath)
	if err != nil {
		return Source{}, errors.NewModuleLoadError(errors.ErrCodeModuleLoad, name, err)
	}

	info, err := os.Stat(file)
	if err != nil {
		if os.IsNotExist(err) {
			return Source{}, errors.NewModuleLoadError(errors.ErrCodeModuleNotFound, name, err).WithLocation(file, 0, 0)
		}
		return Source{}, errors.NewModuleLoadError(errors.ErrCodeModuleLoad, name, err)
	}
	if info.IsDir() {
		return Source{}, errors.NewModuleLoadError(errors.ErrCodeModuleLoad, name, fmt.Errorf("%s is a directory", file))
	}

	src := Source{Name: name, Key: Key(name), Path: file}
	ext := strings.ToLower(filepath.Ext(file))
	switch {
	case templateExtensions[ext]:
		src.Kind = KindTemplate
	case ext == ".go":
		src.Kind = KindGoRun
	case isExecutable(info):
		src.Kind = KindExecutable
	default:
		return Source{}, errors.NewModuleLoadError(errors.ErrCodeModuleLoad, name,
			fmt.Errorf("unsupported render module %s: not a template, Go source or executable", filepath.Base(file)))
	}
	return src, nil
}

// Load resolves modulePath and returns its entry point.
func (l *Loader) Load(ctx context.Context, modulePath string) (ssr.EntryPoint, error) {
	src, err := l.Resolve(modulePath)
	if err != nil {
		return nil, err
	}

	if src.Kind != KindTemplate {
		return l.LoadSource(ctx, src, nil)
	}

	content, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, errors.NewModuleLoadError(errors.ErrCodeModuleLoad, src.Name, err)
	}
	return l.LoadSource(ctx, src, content)
}

// LoadSource builds the entry point for an already resolved module. content
// is the module's file contents and is only consulted for template modules.
func (l *Loader) LoadSource(ctx context.Context, src Source, content []byte) (ssr.EntryPoint, error) {
	l.logger.Debug(ctx, "Loading render module", "module", src.Name, "kind", src.Kind.String())

	switch src.Kind {
	case KindRegistry:
		entry, ok := l.registry.Get(src.Key)
		if !ok {
			return nil, errors.NewModuleLoadError(errors.ErrCodeModuleNotFound, src.Name, fmt.Errorf("registry entry %s was removed", src.Key))
		}
		return entry.Entry, nil
	case KindTemplate:
		return LoadTemplate(src.Name, src.Path, content)
	case KindGoRun:
		return newGoRunEntry(src.Name, src.Path, l.goBinary)
	case KindExecutable:
		return newExecutableEntry(src.Name, src.Path), nil
	default:
		return nil, errors.NewModuleLoadError(errors.ErrCodeModuleLoad, src.Name, fmt.Errorf("unknown module kind"))
	}
}

func (l *Loader) relativeName(modulePath string) string {
	if !filepath.IsAbs(modulePath) {
		return filepath.ToSlash(filepath.Clean(modulePath))
	}
	absRoot, err := filepath.Abs(l.root)
	if err != nil {
		return filepath.ToSlash(modulePath)
	}
	rel, err := filepath.Rel(absRoot, modulePath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(modulePath)
	}
	return filepath.ToSlash(rel)
}

var _ ssr.ModuleLoader = (*Loader)(nil)
