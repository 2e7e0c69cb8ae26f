package storage

import (
	"fmt"
	"strings"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store for tests. Paths are plain strings; a
// "directory" is implied by any entry sharing the path prefix. It counts
// moves and removes so tests can assert at-most-once semantics.
type MemoryStore struct {
	mu    sync.Mutex
	files map[string]int64 // path -> size

	Moves   []string // "src -> dst", in order
	Removes []string

	// FailMoves makes every Move return a MoveError without touching state.
	FailMoves bool
	// FailRemoves makes every Remove fail without touching state.
	FailRemoves bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string]int64)}
}

// Put registers a file at path with the given size.
func (m *MemoryStore) Put(path string, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = size
}

func (m *MemoryStore) Move(src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailMoves {
		return &MoveError{Src: src, Dst: dst, Err: fmt.Errorf("injected move failure")}
	}

	moved := false
	for path, size := range m.files {
		if path == src || strings.HasPrefix(path, src+"/") {
			delete(m.files, path)
			m.files[dst+strings.TrimPrefix(path, src)] = size
			moved = true
		}
	}
	if !moved {
		return &MoveError{Src: src, Dst: dst, Err: fmt.Errorf("source does not exist")}
	}
	m.Moves = append(m.Moves, src+" -> "+dst)
	return nil
}

func (m *MemoryStore) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailRemoves {
		return fmt.Errorf("remove %s: injected remove failure", path)
	}

	for p := range m.files {
		if p == path || strings.HasPrefix(p, path+"/") {
			delete(m.files, p)
		}
	}
	m.Removes = append(m.Removes, path)
	return nil
}

func (m *MemoryStore) Exists(path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for p := range m.files {
		if p == path || strings.HasPrefix(p, path+"/") {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) PruneEmptyDirs(_, _ string) error { return nil }

// MoveCount returns the number of successful moves.
func (m *MemoryStore) MoveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Moves)
}
