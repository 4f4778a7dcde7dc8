// Package modelmap translates client-facing model names into the names
// the upstream endpoint serves. Mappings live in a YAML file and can be
// reloaded at runtime without dropping in-flight requests.
package modelmap

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// File is the on-disk mapping format.
type File struct {
	// Models maps a client-facing model name to the upstream model name.
	Models map[string]string `yaml:"models"`
}

// Table holds the active model mapping. Lookups and reloads are safe for
// concurrent use; a reload swaps the whole mapping atomically so a single
// request never sees a half-applied file.
type Table struct {
	mu      sync.RWMutex
	entries map[string]string
}

// New creates a table from an in-memory mapping. A nil mapping yields a
// pure passthrough table.
func New(entries map[string]string) *Table {
	if entries == nil {
		entries = map[string]string{}
	}
	return &Table{entries: entries}
}

// Load reads a mapping file and returns a table backed by it.
func Load(path string) (*Table, error) {
	t := New(nil)
	if err := t.Reload(path); err != nil {
		return nil, err
	}
	return t, nil
}

// Resolve returns the upstream name for a client-facing model name.
// Unmapped names pass through unchanged.
func (t *Table) Resolve(name string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if mapped, ok := t.entries[name]; ok {
		return mapped
	}
	return name
}

// Names returns the client-facing model names in sorted order.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of explicit mappings.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Reload re-reads the mapping file and swaps it in. On any error the
// previous mapping stays active.
func (t *Table) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read model map file %q: %w", path, err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse model map file %q: %w", path, err)
	}
	for client, upstream := range file.Models {
		if upstream == "" {
			return fmt.Errorf("model map file %q: empty upstream name for %q", path, client)
		}
	}

	entries := file.Models
	if entries == nil {
		entries = map[string]string{}
	}

	t.mu.Lock()
	t.entries = entries
	t.mu.Unlock()
	return nil
}
