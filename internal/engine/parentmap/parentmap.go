// Package parentmap holds the in-memory child-inode→parent-inode table
// spec §9's design notes call for: since a directory's ".." entry is
// synthesized rather than stored, nothing on media records a directory's
// parent, so mount discovery (internal/engine/mount) rebuilds this table
// once and fsops operations keep it current afterward.
//
// Grounded on the teacher's btreeNavigator.nodeCache (a plain map used as
// a process-lifetime lookup cache alongside on-media state), generalized
// from a read cache to a mutated table.
package parentmap

import "github.com/deploymenttheory/go-bpram/internal/types"

// Map is child-ino -> parent-ino for every known directory. The root
// directory is its own parent.
type Map struct {
	parents map[types.InoT]types.InoT
}

// New returns an empty map.
func New() *Map {
	return &Map{parents: make(map[types.InoT]types.InoT)}
}

// FromDiscovery seeds a Map from a mount-time discovery walk's result.
func FromDiscovery(discovered map[types.InoT]types.InoT) *Map {
	m := New()
	for child, parent := range discovered {
		m.parents[child] = parent
	}
	return m
}

// Parent returns ino's parent directory inode, if known.
func (m *Map) Parent(ino types.InoT) (types.InoT, bool) {
	p, ok := m.parents[ino]
	return p, ok
}

// Set records (or overwrites) ino's parent, e.g. after mkdir.
func (m *Map) Set(ino, parent types.InoT) {
	m.parents[ino] = parent
}

// Move updates ino's parent after a rename that relocates a directory.
func (m *Map) Move(ino, newParent types.InoT) {
	m.parents[ino] = newParent
}

// Delete removes ino, e.g. after rmdir. Teardown (unmount) just discards
// the whole Map.
func (m *Map) Delete(ino types.InoT) {
	delete(m.parents, ino)
}

// Len reports how many directories the map currently tracks.
func (m *Map) Len() int { return len(m.parents) }
