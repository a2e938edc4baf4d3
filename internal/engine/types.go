package engine

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/raaihank/termswap/internal/obfuscation"
	"github.com/raaihank/termswap/internal/rewrite"
	"github.com/raaihank/termswap/internal/version"
)

// Mode names an engine operation in results and history entries.
type Mode string

const (
	ModeEncode      Mode = "encode"
	ModeDecode      Mode = "decode"
	ModeObfuscate   Mode = "obfuscate"
	ModeDeobfuscate Mode = "deobfuscate"
	ModeUndo        Mode = "undo"
)

// Direction selects which side of the rule table is replaced.
type Direction string

const (
	Forward Direction = "encode"
	Reverse Direction = "decode"
)

// ParseDirection accepts "encode"/"forward" and "decode"/"reverse".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "encode", "forward":
		return Forward, nil
	case "decode", "reverse":
		return Reverse, nil
	default:
		return "", fmt.Errorf("unknown direction %q", s)
	}
}

// Options tunes a mutating operation.
type Options struct {
	// Preview computes the result without touching the working text, the
	// backups or the history.
	Preview bool
}

// Result is returned by every rewrite operation.
type Result struct {
	Success           bool             `json:"success"`
	Mode              Mode             `json:"mode"`
	Preview           bool             `json:"preview,omitempty"`
	Content           string           `json:"content"`
	TotalReplacements int              `json:"total_replacements"`
	Changes           []rewrite.Change `json:"changes"`
	OriginalHash      string           `json:"original_hash"`
	NewHash           string           `json:"new_hash"`
	BackupPath        string           `json:"backup_path,omitempty"`
	Timestamp         time.Time        `json:"timestamp"`
	Warnings          []string         `json:"warnings,omitempty"`

	// Mapping is the obfuscation map produced or consumed by the operation.
	Mapping *obfuscation.Map `json:"mapping,omitempty"`

	// Undone is the history entry reverted by an undo.
	Undone *version.HistoryEntry `json:"undone,omitempty"`

	warnings []error
}

func newResult(mode Mode, original, updated string, changes []rewrite.Change, now time.Time) Result {
	if changes == nil {
		changes = []rewrite.Change{}
	}
	return Result{
		Success:           true,
		Mode:              mode,
		Content:           updated,
		TotalReplacements: rewrite.TotalCount(changes),
		Changes:           changes,
		OriginalHash:      version.ContentHash(original),
		NewHash:           version.ContentHash(updated),
		Timestamp:         now,
	}
}

func (r *Result) warn(err error) {
	if err == nil {
		return
	}
	r.warnings = append(r.warnings, err)
	r.Warnings = append(r.Warnings, err.Error())
}

// Warning combines the persistence failures that did not fail the operation.
// It is nil when everything was persisted.
func (r Result) Warning() error {
	return multierr.Combine(r.warnings...)
}

// FullResult holds the two passes of Full.
type FullResult struct {
	Encode    Result  `json:"encode"`
	Obfuscate *Result `json:"obfuscate,omitempty"`
}

// Committed reports whether the encode pass ran, which is true even when
// the obfuscation pass then failed.
func (f FullResult) Committed() bool {
	return f.Encode.Mode != ""
}

// Stats describes the working text and the engine state.
type Stats struct {
	FileExists             bool `json:"file_exists"`
	Characters             int  `json:"characters"`
	Lines                  int  `json:"lines"`
	Words                  int  `json:"words"`
	RulesLoaded            int  `json:"rules_loaded"`
	OriginalTermsFound     int  `json:"original_terms_found"`
	SanitizedTermsFound    int  `json:"sanitized_terms_found"`
	BackupCount            int  `json:"backup_count"`
	HistoryCount           int  `json:"history_count"`
	ObfuscationOutstanding bool `json:"obfuscation_outstanding"`
}

// CheckResult reports whether text still contains forward terms.
type CheckResult struct {
	Clean    bool              `json:"clean"`
	Found    int               `json:"found"`
	Findings []rewrite.Finding `json:"findings"`
}
