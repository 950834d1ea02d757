// Package fsys is the file access layer used by the tree materializer and
// the push path. Paths are slash-separated and relative to the filesystem
// root, which in production is the repository work tree.
package fsys

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// FS provides the file operations needed to mirror rules
type FS interface {
	// WriteFile writes data to name, creating parent directories
	WriteFile(name string, data []byte) error
	ReadFile(name string) ([]byte, error)
	// DirExists reports whether name exists and is a directory
	DirExists(name string) (bool, error)
	// RemoveAll deletes name and everything below it
	RemoveAll(name string) error
}

// Billy implements FS on top of a billy.Filesystem
type Billy struct {
	fs billy.Filesystem
}

// New wraps an existing billy filesystem
func New(fs billy.Filesystem) *Billy {
	return &Billy{fs: fs}
}

// NewOS returns an FS rooted at dir on the local disk
func NewOS(dir string) *Billy {
	return New(osfs.New(dir))
}

// NewMemory returns an empty in-memory FS
func NewMemory() *Billy {
	return New(memfs.New())
}

// WriteFile writes data to name, creating parent directories as needed
func (b *Billy) WriteFile(name string, data []byte) error {
	if dir := path.Dir(name); dir != "." {
		if err := b.fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := util.WriteFile(b.fs, name, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// ReadFile returns the contents of name
func (b *Billy) ReadFile(name string) ([]byte, error) {
	f, err := b.fs.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer func() {
		_ = f.Close()
	}()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// DirExists reports whether name is an existing directory
func (b *Billy) DirExists(name string) (bool, error) {
	info, err := b.fs.Stat(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", name, err)
	}
	return info.IsDir(), nil
}

// RemoveAll deletes name recursively. A missing name is not an error.
func (b *Billy) RemoveAll(name string) error {
	if err := util.RemoveAll(b.fs, name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return nil
}
