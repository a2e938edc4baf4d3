package obfuscation

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/tidwall/pretty"

	"github.com/raaihank/termswap/internal/errs"
	"github.com/raaihank/termswap/internal/fsutil"
)

// DefaultMapFile is the file name of the outstanding map in the workspace.
const DefaultMapFile = ".var_map.json"

// FileStore keeps the outstanding map in a single JSON file. The file's
// existence means a map is outstanding.
type FileStore struct {
	fs   afero.Fs
	path string
}

// NewFileStore creates a file store at path.
func NewFileStore(fs afero.Fs, path string) *FileStore {
	return &FileStore{fs: fs, path: path}
}

func (s *FileStore) Load(ctx context.Context) (*Map, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no obfuscation map at %s: %w", s.path, errs.ErrNotFound)
	}
	if err != nil {
		return nil, errs.IO("failed to read obfuscation map", err)
	}

	mapping := &Map{}
	if err := mapping.UnmarshalJSON(data); err != nil {
		return nil, errs.Config(fmt.Sprintf("obfuscation map %s is malformed", s.path), err)
	}
	return mapping, nil
}

func (s *FileStore) Save(ctx context.Context, m *Map) error {
	exists, err := s.Exists(ctx)
	if err != nil {
		return errs.IO("failed to check obfuscation map", err)
	}
	if exists {
		return fmt.Errorf("obfuscation map %s already exists: %w", s.path, errs.ErrConflict)
	}

	data, err := m.MarshalJSON()
	if err != nil {
		return errs.IO("failed to encode obfuscation map", err)
	}
	data = pretty.PrettyOptions(data, &pretty.Options{Width: 80, Indent: "  "})

	if err := fsutil.WriteAtomic(s.fs, s.path, data, 0o600); err != nil {
		return errs.IO("failed to write obfuscation map", err)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context) error {
	if err := s.fs.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *FileStore) Exists(ctx context.Context) (bool, error) {
	return afero.Exists(s.fs, s.path)
}
