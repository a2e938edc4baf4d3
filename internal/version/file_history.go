package version

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/raaihank/termswap/internal/fsutil"
)

// FileHistory keeps the log as a JSON array, rewritten whole on every change.
type FileHistory struct {
	fs   afero.Fs
	path string
}

// NewFileHistory creates a file-backed history log at path.
func NewFileHistory(fs afero.Fs, path string) *FileHistory {
	return &FileHistory{fs: fs, path: path}
}

// Entries reads the log. A missing file is an empty log.
func (h *FileHistory) Entries(ctx context.Context) ([]HistoryEntry, error) {
	data, err := afero.ReadFile(h.fs, h.path)
	if errors.Is(err, os.ErrNotExist) {
		return []HistoryEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	if len(data) == 0 {
		return []HistoryEntry{}, nil
	}

	var entries []HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse history file %s: %w", h.path, err)
	}
	return entries, nil
}

// Append adds entry at the tail and drops the oldest entries past capacity.
func (h *FileHistory) Append(ctx context.Context, entry HistoryEntry, capacity int) error {
	entries, err := h.Entries(ctx)
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	if capacity > 0 && len(entries) > capacity {
		entries = entries[len(entries)-capacity:]
	}
	return h.write(entries)
}

// Pop removes the tail entry.
func (h *FileHistory) Pop(ctx context.Context) error {
	entries, err := h.Entries(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	return h.write(entries[:len(entries)-1])
}

func (h *FileHistory) write(entries []HistoryEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	return fsutil.WriteAtomic(h.fs, h.path, data, 0o644)
}
