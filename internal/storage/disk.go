package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"
)

var _ Store = (*DiskStore)(nil)

// DiskStore implements Store against the real filesystem.
type DiskStore struct{}

// NewDiskStore creates a new DiskStore.
func NewDiskStore() *DiskStore {
	return &DiskStore{}
}

func (d *DiskStore) Move(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &MoveError{Src: src, Dst: dst, Err: err}
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return &MoveError{Src: src, Dst: dst, Err: err}
	}

	// Source and destination live on different volumes: copy to a temporary
	// name beside the destination, verify sizes, rename into place, then
	// delete the source.
	log.Debug("cross-device move, falling back to copy", "src", src, "dst", dst)
	tmp := dst + ".partial"
	if err := copyPath(src, tmp); err != nil {
		_ = os.RemoveAll(tmp)
		return &MoveError{Src: src, Dst: dst, Err: err}
	}

	srcSize, err := treeSize(src)
	if err != nil {
		_ = os.RemoveAll(tmp)
		return &MoveError{Src: src, Dst: dst, Err: err}
	}
	tmpSize, err := treeSize(tmp)
	if err != nil {
		_ = os.RemoveAll(tmp)
		return &MoveError{Src: src, Dst: dst, Err: err}
	}
	if srcSize != tmpSize {
		_ = os.RemoveAll(tmp)
		return &MoveError{Src: src, Dst: dst, Err: fmt.Errorf("copy verification failed: source %d bytes, copy %d bytes", srcSize, tmpSize)}
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.RemoveAll(tmp)
		return &MoveError{Src: src, Dst: dst, Err: err}
	}
	if err := os.RemoveAll(src); err != nil {
		// The destination is complete; a stale source is the lesser evil and
		// the next scan will report it.
		log.Warn("failed to remove source after cross-device move", "src", src, "error", err)
	}
	return nil
}

func (d *DiskStore) Remove(path string) error {
	return os.RemoveAll(path)
}

func (d *DiskStore) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (d *DiskStore) PruneEmptyDirs(dir, stopAt string) error {
	stopAt = filepath.Clean(stopAt)
	for cur := filepath.Clean(dir); cur != stopAt && len(cur) > len(stopAt); cur = filepath.Dir(cur) {
		entries, err := os.ReadDir(cur)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if len(entries) > 0 {
			return nil
		}
		if err := os.Remove(cur); err != nil {
			return err
		}
	}
	return nil
}

// copyPath copies a file or directory tree. Regular files only; anything
// else (symlinks, devices) is skipped.
func copyPath(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(src, dst, info.Mode())
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, fi.Mode())
	})
}

func copyFile(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close() //nolint:errcheck,gosec
		return err
	}
	return out.Close()
}

// treeSize sums the sizes of all regular files under path.
func treeSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}

	var total int64
	err = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			fi, err := d.Info()
			if err != nil {
				return err
			}
			total += fi.Size()
		}
		return nil
	})
	return total, err
}
