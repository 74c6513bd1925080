// Package manifest reads the build manifests emitted next to the production
// bundle. A manifest maps logical entry names to built file paths relative
// to the manifest's directory.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// File names of the manifests inside the dist directory.
const (
	ServerManifest = "manifest-server.json"
	ClientManifest = "manifest-client.json"
)

// serverEntryKeys are tried in order when looking up the server bundle.
var serverEntryKeys = []string{"server.js", "entry-server", "entry-server.js"}

// Manifest maps entry names to built artifact paths.
type Manifest struct {
	dir     string
	entries map[string]string
}

// Load reads and decodes the manifest at path.
func Load(path string) (*Manifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]string)
	if err := json.Unmarshal(content, &entries); err != nil {
		return nil, fmt.Errorf("decoding manifest %s: %w", path, err)
	}

	return &Manifest{dir: filepath.Dir(path), entries: entries}, nil
}

// Lookup returns the manifest-relative path recorded for name.
func (m *Manifest) Lookup(name string) (string, bool) {
	p, ok := m.entries[name]
	return p, ok && p != ""
}

// Path returns the absolute path of the artifact recorded for name.
func (m *Manifest) Path(name string) (string, bool) {
	p, ok := m.Lookup(name)
	if !ok {
		return "", false
	}
	if filepath.IsAbs(p) {
		return p, true
	}
	return filepath.Join(m.dir, filepath.FromSlash(p)), true
}

// ServerEntry returns the absolute path of the server bundle.
func (m *Manifest) ServerEntry() (string, bool) {
	for _, key := range serverEntryKeys {
		if p, ok := m.Path(key); ok {
			return p, true
		}
	}
	return "", false
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	return len(m.entries)
}

// ResolveServerEntry returns the production entry module: the server bundle
// named by distDir's server manifest when one exists, fallback otherwise.
// A manifest that exists but cannot be read or names no server entry is an
// error.
func ResolveServerEntry(distDir, fallback string) (string, error) {
	path := filepath.Join(distDir, ServerManifest)
	m, err := Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fallback, nil
		}
		return "", err
	}

	entry, ok := m.ServerEntry()
	if !ok {
		return "", fmt.Errorf("manifest %s has no server entry (expected one of %v)", path, serverEntryKeys)
	}
	return entry, nil
}
