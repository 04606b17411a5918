// Package modtab tracks loaded modules (spec §1: the instrumentation
// engine calls into the core "on ... module loads") and indexes their
// names for fast prefix lookups. The suppression matcher in
// internal/suppress does not consult this table.
package modtab

import (
	"sort"
	"sync"

	"github.com/derekparker/trie"
)

// Module describes one loaded image.
type Module struct {
	Name string
	Base uint64
	Size uint64
}

// Table is the concurrency-safe module table.
type Table struct {
	mu      sync.RWMutex
	modules []Module
	names   *trie.Trie
}

// New returns an empty module table.
func New() *Table {
	return &Table{names: trie.New()}
}

// OnModuleLoad registers a newly mapped module, or removes it if
// loaded is false (spec §1: "module loads").
func (t *Table) OnModuleLoad(name string, base, size uint64, loaded bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if loaded {
		t.modules = append(t.modules, Module{Name: name, Base: base, Size: size})
		t.names.Add(name, nil)
		return
	}
	for i, m := range t.modules {
		if m.Name == name {
			t.modules = append(t.modules[:i], t.modules[i+1:]...)
			break
		}
	}
	t.names.Remove(name)
}

// ByAddress returns the module containing addr, if any.
func (t *Table) ByAddress(addr uint64) (Module, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, m := range t.modules {
		if addr >= m.Base && addr < m.Base+m.Size {
			return m, true
		}
	}
	return Module{}, false
}

// HasPrefix reports whether any loaded module's name starts with
// prefix. The suppression matcher does not call it; it matches patterns
// against the rendered frame text alone.
func (t *Table) HasPrefix(prefix string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.names.PrefixSearch(prefix)) > 0
}

// Names returns all currently loaded module names, sorted, mostly for
// diagnostics and tests.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, len(t.modules))
	for i, m := range t.modules {
		names[i] = m.Name
	}
	sort.Strings(names)
	return names
}
