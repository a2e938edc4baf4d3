// Package workspace manages the working text that encode, decode and
// obfuscation rewrite in place.
package workspace

import (
	"errors"
	"os"

	"github.com/spf13/afero"

	"github.com/raaihank/termswap/internal/errs"
	"github.com/raaihank/termswap/internal/fsutil"
)

// File is the working-text resource.
type File struct {
	fs   afero.Fs
	path string
}

// NewFile creates a handle for the working text at path.
func NewFile(fs afero.Fs, path string) *File {
	return &File{fs: fs, path: path}
}

// Path returns the working-text location.
func (f *File) Path() string {
	return f.path
}

// Read returns the current content. A missing file is created empty.
func (f *File) Read() (string, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if errors.Is(err, os.ErrNotExist) {
		if err := fsutil.WriteAtomic(f.fs, f.path, nil, 0o644); err != nil {
			return "", errs.IO("failed to create working file", err)
		}
		return "", nil
	}
	if err != nil {
		return "", errs.IO("failed to read working file", err)
	}
	return string(data), nil
}

// Write replaces the content. Readers see either the old or the new text.
func (f *File) Write(content string) error {
	if err := fsutil.WriteAtomic(f.fs, f.path, []byte(content), 0o644); err != nil {
		return errs.IO("failed to write working file", err)
	}
	return nil
}
