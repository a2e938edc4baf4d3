// Package version keeps the backup snapshots and operation history that make
// rewrites of the working text reversible.
package version

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/raaihank/termswap/internal/errs"
)

const backupTimeLayout = "20060102_150405.000000"

// maxBackupCollisions bounds the suffixes tried when several snapshots land
// on the same name.
const maxBackupCollisions = 100

// ContentHash returns the 8-character digest used in backup names and
// history records.
func ContentHash(content string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(content))[:8]
}

// Store owns the backup directory and the history log.
type Store struct {
	fs      afero.Fs
	config  Config
	history HistoryLog
	logger  *zap.Logger
	now     func() time.Time
}

// NewStore creates a version store. Zero config values fall back to the
// package defaults.
func NewStore(fs afero.Fs, config Config, history HistoryLog, logger *zap.Logger) *Store {
	if config.BackupPrefix == "" {
		config.BackupPrefix = DefaultBackupPrefix
	}
	if config.BackupRetention <= 0 {
		config.BackupRetention = DefaultBackupRetention
	}
	if config.HistoryCapacity <= 0 {
		config.HistoryCapacity = DefaultHistoryCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		fs:      fs,
		config:  config,
		history: history,
		logger:  logger,
		now:     time.Now,
	}
}

// Snapshot writes content as a new backup and evicts the oldest backups
// beyond the retention count.
func (s *Store) Snapshot(content string) (BackupRef, error) {
	if err := s.fs.MkdirAll(s.config.BackupDir, 0o755); err != nil {
		return BackupRef{}, errs.IO("failed to create backup directory", err)
	}

	created := s.now()
	hash := ContentHash(content)
	stem := fmt.Sprintf("%s_%s_%s", s.config.BackupPrefix, created.Format(backupTimeLayout), hash)
	ref := BackupRef{Hash: hash, CreatedAt: created}

	for seq := 0; ; seq++ {
		ref.Name = stem + ".txt"
		if seq > 0 {
			ref.Name = fmt.Sprintf("%s_%d.txt", stem, seq)
		}
		ref.Path = filepath.Join(s.config.BackupDir, ref.Name)

		err := s.writeBackup(ref.Path, content)
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrExist) || seq >= maxBackupCollisions {
			return BackupRef{}, errs.IO("failed to write backup", err)
		}
	}

	if err := s.prune(); err != nil {
		s.logger.Warn("Failed to prune old backups", zap.Error(err))
	}

	s.logger.Debug("Backup created", zap.String("backup", ref.Name), zap.String("hash", hash))
	return ref, nil
}

// writeBackup creates path exclusively so an existing snapshot is never
// overwritten.
func (s *Store) writeBackup(path, content string) error {
	f, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Backups lists existing snapshots, newest first.
func (s *Store) Backups() ([]BackupRef, error) {
	pattern := filepath.Join(s.config.BackupDir, s.config.BackupPrefix+"_*.txt")
	matches, err := afero.Glob(s.fs, pattern)
	if err != nil {
		return nil, errs.IO("failed to list backups", err)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(matches)))

	refs := make([]BackupRef, 0, len(matches))
	for _, path := range matches {
		refs = append(refs, parseBackupName(s.config.BackupPrefix, path))
	}
	return refs, nil
}

// BackupCount returns the number of retained snapshots.
func (s *Store) BackupCount() (int, error) {
	refs, err := s.Backups()
	if err != nil {
		return 0, err
	}
	return len(refs), nil
}

func (s *Store) prune() error {
	refs, err := s.Backups()
	if err != nil {
		return err
	}
	if len(refs) <= s.config.BackupRetention {
		return nil
	}

	var failed error
	for _, ref := range refs[s.config.BackupRetention:] {
		if err := s.fs.Remove(ref.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			failed = err
			continue
		}
		s.logger.Debug("Old backup removed", zap.String("backup", ref.Name))
	}
	return failed
}

// Record appends entry to the history log.
func (s *Store) Record(ctx context.Context, entry HistoryEntry) error {
	if err := s.history.Append(ctx, entry, s.config.HistoryCapacity); err != nil {
		return errs.IO("failed to record history", err)
	}
	return nil
}

// History returns the operation log, oldest first.
func (s *Store) History(ctx context.Context) ([]HistoryEntry, error) {
	entries, err := s.history.Entries(ctx)
	if err != nil {
		return nil, errs.IO("failed to read history", err)
	}
	return entries, nil
}

// Undo reverts the most recent operation. The backup referenced by the tail
// entry is handed to restore; only when restore succeeds is the entry popped.
// An empty log or a missing backup fails with errs.ErrNotFound and leaves the
// log untouched.
func (s *Store) Undo(ctx context.Context, restore func(content string, entry HistoryEntry) error) (HistoryEntry, error) {
	entries, err := s.History(ctx)
	if err != nil {
		return HistoryEntry{}, err
	}
	if len(entries) == 0 {
		return HistoryEntry{}, fmt.Errorf("nothing to undo: %w", errs.ErrNotFound)
	}

	last := entries[len(entries)-1]
	if last.Backup == "" {
		return HistoryEntry{}, fmt.Errorf("last %s operation has no backup: %w", last.Mode, errs.ErrNotFound)
	}

	data, err := afero.ReadFile(s.fs, last.Backup)
	if errors.Is(err, os.ErrNotExist) {
		return HistoryEntry{}, fmt.Errorf("backup %s is gone: %w", filepath.Base(last.Backup), errs.ErrNotFound)
	}
	if err != nil {
		return HistoryEntry{}, errs.IO("failed to read backup", err)
	}

	if err := restore(string(data), last); err != nil {
		return HistoryEntry{}, err
	}

	if err := s.history.Pop(ctx); err != nil {
		return last, errs.IO("content restored but history was not truncated", err)
	}

	s.logger.Info("Operation undone",
		zap.String("mode", last.Mode),
		zap.String("backup", filepath.Base(last.Backup)))

	return last, nil
}

// parseBackupName recovers the timestamp and hash encoded in a backup path.
func parseBackupName(prefix, path string) BackupRef {
	name := filepath.Base(path)
	ref := BackupRef{Name: name, Path: path}

	core := strings.TrimSuffix(strings.TrimPrefix(name, prefix+"_"), ".txt")
	if len(core) <= len(backupTimeLayout) || core[len(backupTimeLayout)] != '_' {
		return ref
	}
	hash := core[len(backupTimeLayout)+1:]
	if idx := strings.IndexByte(hash, '_'); idx >= 0 {
		hash = hash[:idx]
	}
	ref.Hash = hash
	if ts, err := time.ParseInLocation(backupTimeLayout, core[:len(backupTimeLayout)], time.Local); err == nil {
		ref.CreatedAt = ts
	}
	return ref
}
