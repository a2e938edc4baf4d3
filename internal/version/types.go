package version

import (
	"context"
	"encoding/json"
	"time"
)

// Defaults for retention and history capacity.
const (
	DefaultBackupRetention = 20
	DefaultHistoryCapacity = 50
	DefaultBackupPrefix    = "work"
)

// BackupRef identifies an immutable snapshot of the working text.
type BackupRef struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryEntry records one mutating operation.
type HistoryEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	Mode         string    `json:"mode"`
	Replacements int       `json:"replacements"`
	OriginalHash string    `json:"original_hash"`
	NewHash      string    `json:"new_hash"`
	Backup       string    `json:"backup,omitempty"`

	// State carries operation-specific data needed to undo side effects
	// beyond the working text, such as a consumed obfuscation map.
	State json.RawMessage `json:"state,omitempty"`
}

// HistoryLog persists the bounded, ordered operation log. The most recent
// entry is last.
type HistoryLog interface {
	Entries(ctx context.Context) ([]HistoryEntry, error)
	Append(ctx context.Context, entry HistoryEntry, capacity int) error
	Pop(ctx context.Context) error
}

// Config controls where backups live and how much is retained.
type Config struct {
	BackupDir       string `yaml:"backup_dir" mapstructure:"backup_dir"`
	BackupPrefix    string `yaml:"backup_prefix" mapstructure:"backup_prefix"`
	BackupRetention int    `yaml:"backup_retention" mapstructure:"backup_retention"`
	HistoryCapacity int    `yaml:"history_capacity" mapstructure:"history_capacity"`
}
