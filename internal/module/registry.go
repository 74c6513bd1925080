package module

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/ssrgate/internal/ssr"
)

// Registry holds render entry points compiled into the binary, keyed by the
// module path they stand in for.
type Registry struct {
	entries map[string]*Entry
	mutex   sync.RWMutex
}

// Entry is one compiled-in render module.
type Entry struct {
	Key          string
	Description  string
	Entry        ssr.EntryPoint
	RegisteredAt time.Time
}

// DefaultRegistry is the registry consulted by loaders built without an
// explicit one. Programs embedding ssrgate register their entry points here
// from init functions.
var DefaultRegistry = NewRegistry()

// Register adds entry to DefaultRegistry.
func Register(modulePath, description string, entry ssr.EntryPoint) {
	if err := DefaultRegistry.Register(modulePath, description, entry); err != nil {
		panic(err)
	}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
	}
}

// Key canonicalises a module path: forward slashes, no leading "./" or "/",
// no extension. "dist/server/entry-server.gohtml" and
// "./dist/server/entry-server" share a key.
func Key(modulePath string) string {
	p := path.Clean(filepath.ToSlash(modulePath))
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimLeft(p, "/")
	if ext := path.Ext(p); ext != "" {
		p = strings.TrimSuffix(p, ext)
	}
	if p == "." {
		return ""
	}
	return p
}

// Register adds or replaces the entry point for modulePath.
func (r *Registry) Register(modulePath, description string, entry ssr.EntryPoint) error {
	key := Key(modulePath)
	if key == "" {
		return fmt.Errorf("module path %q has an empty key", modulePath)
	}
	if entry == nil {
		return fmt.Errorf("module %s: entry point cannot be nil", key)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.entries[key] = &Entry{
		Key:          key,
		Description:  description,
		Entry:        entry,
		RegisteredAt: time.Now(),
	}
	return nil
}

// Get retrieves the entry registered for modulePath.
func (r *Registry) Get(modulePath string) (*Entry, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entry, exists := r.entries[Key(modulePath)]
	return entry, exists
}

// List returns all entries sorted by key.
func (r *Registry) List() []*Entry {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]*Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}

// Remove deletes the entry for modulePath.
func (r *Registry) Remove(modulePath string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.entries, Key(modulePath))
}

// Count returns the number of registered entries.
func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.entries)
}
