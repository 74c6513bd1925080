package devserver

import (
	"context"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/ssrgate/internal/errors"
	"github.com/conneroisu/ssrgate/internal/logging"
	"github.com/conneroisu/ssrgate/internal/module"
	"github.com/conneroisu/ssrgate/internal/ssr"
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// graphNode is one loaded module. hash is the CRC32-Castagnoli of the
// content the entry was built from.
type graphNode struct {
	source   module.Source
	hash     uint32
	entry    ssr.EntryPoint
	loadedAt time.Time
}

// moduleGraph caches loaded modules by absolute path. A node is reused only
// while the file's content hash is unchanged.
type moduleGraph struct {
	nodes map[string]*graphNode
	mutex sync.RWMutex
}

func newModuleGraph() *moduleGraph {
	return &moduleGraph{nodes: make(map[string]*graphNode)}
}

func (g *moduleGraph) lookup(path string, hash uint32) (ssr.EntryPoint, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	node, ok := g.nodes[path]
	if !ok || node.hash != hash || node.entry == nil {
		return nil, false
	}
	return node.entry, true
}

func (g *moduleGraph) store(node *graphNode) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.nodes[node.source.Path] = node
}

// invalidate drops the node for path and reports whether one existed.
func (g *moduleGraph) invalidate(path string) bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.nodes[path]; !ok {
		return false
	}
	delete(g.nodes, path)
	return true
}

// dirs returns the directories of all known modules.
func (g *moduleGraph) dirs() []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for path := range g.nodes {
		dir := filepath.Dir(path)
		if !seen[dir] {
			seen[dir] = true
			out = append(out, dir)
		}
	}
	sort.Strings(out)
	return out
}

// paths returns the known module paths, sorted.
func (g *moduleGraph) paths() []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	out := make([]string, 0, len(g.nodes))
	for path := range g.nodes {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Modules returns the project-relative paths of the modules currently
// loaded.
func (s *Server) Modules() []string {
	paths := s.graph.paths()
	for i, p := range paths {
		paths[i] = s.display(p)
	}
	return paths
}

// LoadEntryPoint loads the module at modulePath. Template modules are
// re-read on every call and rebuilt whenever their content changed; process
// modules run the current file on every render anyway.
func (s *Server) LoadEntryPoint(ctx context.Context, modulePath string) (ssr.EntryPoint, error) {
	src, err := s.loader.Resolve(modulePath)
	if err != nil {
		return nil, err
	}

	if src.Kind != module.KindTemplate {
		entry, err := s.loader.LoadSource(ctx, src, nil)
		if err != nil {
			return nil, err
		}
		if src.Path != "" {
			s.graph.store(&graphNode{source: src, entry: entry, loadedAt: time.Now()})
		}
		return entry, nil
	}

	content, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, errors.NewModuleLoadError(errors.ErrCodeModuleLoad, src.Name, err)
	}
	hash := crc32.Checksum(content, crcTable)

	if entry, ok := s.graph.lookup(src.Path, hash); ok {
		return entry, nil
	}

	op := logging.StartOperation(s.logger, "load_module")
	entry, err := s.loader.LoadSource(ctx, src, content)
	if err != nil {
		op.EndWithError(ctx, err)
		return nil, err
	}
	op.End(ctx)

	s.graph.store(&graphNode{source: src, hash: hash, entry: entry, loadedAt: time.Now()})
	return entry, nil
}
