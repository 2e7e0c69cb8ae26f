// Package storage abstracts the filesystem operations the engine needs to
// relocate and delete media. The engine never touches the filesystem
// directly, so the consensus and reaper logic can be unit-tested against an
// in-memory implementation.
package storage

import "fmt"

// Store is the filesystem surface used by the transition executor and reaper.
type Store interface {
	// Move relocates src to dst, creating missing destination directories.
	// The move is atomic on a single volume; across volumes it falls back to
	// copy, verify, rename-into-place, delete-source. On failure the source
	// is left untouched.
	Move(src, dst string) error

	// Remove deletes the file or directory tree at path.
	Remove(path string) error

	// Exists reports whether path exists.
	Exists(path string) (bool, error)

	// PruneEmptyDirs removes empty directories starting at dir and walking up
	// to, but not including, stopAt.
	PruneEmptyDirs(dir, stopAt string) error
}

// MoveError reports a failed relocation. The source is guaranteed to be in
// its pre-move state.
type MoveError struct {
	Src string
	Dst string
	Err error
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("move %s -> %s: %v", e.Src, e.Dst, e.Err)
}

func (e *MoveError) Unwrap() error { return e.Err }
