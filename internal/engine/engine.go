// Package engine composes the rule table, the rewriter, the obfuscation mapper
// and the version store into the operations exposed by the CLI and the API.
//
// The engine is synchronous and does no locking of its own: callers sharing
// one engine between goroutines must serialize calls.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/raaihank/termswap/internal/errs"
	"github.com/raaihank/termswap/internal/fsutil"
	"github.com/raaihank/termswap/internal/obfuscation"
	"github.com/raaihank/termswap/internal/rewrite"
	"github.com/raaihank/termswap/internal/rules"
	"github.com/raaihank/termswap/internal/version"
	"github.com/raaihank/termswap/internal/workspace"
)

// Deps are the collaborators an Engine is built from.
type Deps struct {
	Fs       afero.Fs
	BaseDir  string
	Rules    *rules.Holder
	Work     *workspace.File
	Versions *version.Store
	Mapper   *obfuscation.Mapper
}

// Engine is the facade over one working text.
type Engine struct {
	fs        afero.Fs
	baseDir   string
	rules     *rules.Holder
	work      *workspace.File
	versions  *version.Store
	mapper    *obfuscation.Mapper
	logger    *zap.Logger
	now       func() time.Time
	observers []func(Result)
}

// New creates an engine from deps.
func New(deps Deps, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		fs:       deps.Fs,
		baseDir:  deps.BaseDir,
		rules:    deps.Rules,
		work:     deps.Work,
		versions: deps.Versions,
		mapper:   deps.Mapper,
		logger:   logger,
		now:      time.Now,
	}
}

// OnResult registers fn to be called after every committed operation and
// every undo.
func (e *Engine) OnResult(fn func(Result)) {
	e.observers = append(e.observers, fn)
}

func (e *Engine) notify(r Result) {
	for _, fn := range e.observers {
		fn(r)
	}
}

// Table returns the active rule table.
func (e *Engine) Table() *rules.Table {
	return e.rules.Table()
}

// Encode replaces forward terms in the working text.
func (e *Engine) Encode(ctx context.Context, opts Options) (Result, error) {
	return e.rewriteWork(ctx, ModeEncode, e.Table().ForwardRewriter(), opts)
}

// Decode replaces replacements in the working text with their terms.
func (e *Engine) Decode(ctx context.Context, opts Options) (Result, error) {
	return e.rewriteWork(ctx, ModeDecode, e.Table().ReverseRewriter(), opts)
}

func (e *Engine) rewriteWork(ctx context.Context, mode Mode, rw *rewrite.Rewriter, opts Options) (Result, error) {
	original, err := e.work.Read()
	if err != nil {
		return Result{}, err
	}

	updated, changes := rw.Rewrite(original)
	r := newResult(mode, original, updated, changes, e.now())
	if opts.Preview {
		r.Preview = true
		return r, nil
	}

	if err := e.commit(ctx, &r, original, nil); err != nil {
		return Result{}, err
	}
	return r, nil
}

// Obfuscate replaces sensitive words in the working text with generated
// identifiers and keeps the map for Deobfuscate. It fails with
// errs.ErrConflict while a map is outstanding.
func (e *Engine) Obfuscate(ctx context.Context, opts Options) (Result, error) {
	original, err := e.work.Read()
	if err != nil {
		return Result{}, err
	}

	if opts.Preview {
		updated, mapping, changes := e.mapper.Preview(original)
		r := newResult(ModeObfuscate, original, updated, changes, e.now())
		r.Preview = true
		r.Mapping = mapping
		return r, nil
	}

	updated, mapping, changes, err := e.mapper.Obfuscate(ctx, original)
	if err != nil {
		return Result{}, err
	}
	r := newResult(ModeObfuscate, original, updated, changes, e.now())
	r.Mapping = mapping

	state, err := mapping.MarshalJSON()
	if err != nil {
		r.warn(err)
	}
	if err := e.commit(ctx, &r, original, state); err != nil {
		return Result{}, multierr.Append(err, e.mapper.Discard(ctx))
	}
	return r, nil
}

// Deobfuscate inverts the outstanding map over the working text and consumes
// it. It fails with errs.ErrNotFound when no map is outstanding.
func (e *Engine) Deobfuscate(ctx context.Context) (Result, error) {
	original, err := e.work.Read()
	if err != nil {
		return Result{}, err
	}

	updated, mapping, changes, err := e.mapper.Deobfuscate(ctx, original)
	if err != nil {
		return Result{}, err
	}
	r := newResult(ModeDeobfuscate, original, updated, changes, e.now())
	r.Mapping = mapping

	state, err := mapping.MarshalJSON()
	if err != nil {
		r.warn(err)
	}
	if err := e.commit(ctx, &r, original, state); err != nil {
		return Result{}, multierr.Append(err, e.mapper.Reinstate(ctx, mapping))
	}
	return r, nil
}

// Full encodes the working text and then obfuscates it, as two history
// entries. When obfuscation fails the committed encode result is still
// returned.
func (e *Engine) Full(ctx context.Context) (FullResult, error) {
	encoded, err := e.Encode(ctx, Options{})
	if err != nil {
		return FullResult{}, err
	}
	full := FullResult{Encode: encoded}

	obfuscated, err := e.Obfuscate(ctx, Options{})
	if err != nil {
		return full, fmt.Errorf("obfuscation pass failed: %w", err)
	}
	full.Obfuscate = &obfuscated
	return full, nil
}

// commit snapshots original, writes the new content and records history.
// Runs with no replacements change nothing. Only a failed write of the
// working text is an error; backup and history failures become warnings.
func (e *Engine) commit(ctx context.Context, r *Result, original string, state []byte) error {
	if r.TotalReplacements == 0 {
		return nil
	}

	ref, err := e.versions.Snapshot(original)
	if err != nil {
		e.logger.Warn("Backup failed", zap.String("mode", string(r.Mode)), zap.Error(err))
		r.warn(err)
	} else {
		r.BackupPath = ref.Path
	}

	if err := e.work.Write(r.Content); err != nil {
		return err
	}

	entry := version.HistoryEntry{
		Timestamp:    r.Timestamp,
		Mode:         string(r.Mode),
		Replacements: r.TotalReplacements,
		OriginalHash: r.OriginalHash,
		NewHash:      r.NewHash,
		Backup:       r.BackupPath,
		State:        state,
	}
	if err := e.versions.Record(ctx, entry); err != nil {
		e.logger.Warn("History not recorded", zap.String("mode", string(r.Mode)), zap.Error(err))
		r.warn(err)
	}

	e.logger.Debug("Working text rewritten",
		zap.String("mode", string(r.Mode)),
		zap.String("backup", r.BackupPath))

	e.notify(*r)
	return nil
}

// Undo reverts the most recent operation, including its effect on the
// obfuscation map. It fails with errs.ErrNotFound when there is nothing to
// undo; the working text is then left as it was.
func (e *Engine) Undo(ctx context.Context) (Result, error) {
	current, _, err := e.peekWork()
	if err != nil {
		return Result{}, err
	}

	var (
		restored    string
		sideEffects []error
	)
	entry, err := e.versions.Undo(ctx, func(content string, entry version.HistoryEntry) error {
		if err := e.work.Write(content); err != nil {
			return err
		}
		restored = content

		switch Mode(entry.Mode) {
		case ModeObfuscate:
			if err := e.mapper.Discard(ctx); err != nil {
				sideEffects = append(sideEffects, errs.IO("failed to discard obfuscation map", err))
			}
		case ModeDeobfuscate:
			if err := e.reinstateFrom(ctx, entry); err != nil {
				sideEffects = append(sideEffects, err)
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	r := newResult(ModeUndo, current, restored, nil, e.now())
	r.BackupPath = entry.Backup
	r.Undone = &entry
	for _, err := range sideEffects {
		e.logger.Warn("Undo side effect failed", zap.String("mode", entry.Mode), zap.Error(err))
		r.warn(err)
	}

	e.notify(r)
	return r, nil
}

func (e *Engine) reinstateFrom(ctx context.Context, entry version.HistoryEntry) error {
	if len(entry.State) == 0 {
		return fmt.Errorf("history entry carries no obfuscation map: %w", errs.ErrNotFound)
	}
	mapping := &obfuscation.Map{}
	if err := mapping.UnmarshalJSON(entry.State); err != nil {
		return errs.Config("history entry holds a malformed obfuscation map", err)
	}
	return e.mapper.Reinstate(ctx, mapping)
}

// History returns the operation log, oldest first.
func (e *Engine) History(ctx context.Context) ([]version.HistoryEntry, error) {
	return e.versions.History(ctx)
}

// Translate rewrites text in memory in the given direction.
func (e *Engine) Translate(text string, dir Direction) Result {
	rw := e.Table().ForwardRewriter()
	if dir == Reverse {
		rw = e.Table().ReverseRewriter()
	}
	updated, changes := rw.Rewrite(text)
	return newResult(Mode(dir), text, updated, changes, e.now())
}

// Sanitize encodes text in memory with no side effects.
func (e *Engine) Sanitize(text string) string {
	return e.Translate(text, Forward).Content
}

// Restore decodes text in memory with no side effects.
func (e *Engine) Restore(text string) string {
	return e.Translate(text, Reverse).Content
}

// TranslateFile rewrites the file at path in place. Relative paths resolve
// against the workspace directory and the result must stay inside it. No
// backup or history is kept.
func (e *Engine) TranslateFile(ctx context.Context, path string, dir Direction) (Result, error) {
	path, err := e.confine(path)
	if err != nil {
		return Result{}, err
	}

	data, err := afero.ReadFile(e.fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return Result{}, fmt.Errorf("file %s: %w", path, errs.ErrNotFound)
	}
	if err != nil {
		return Result{}, errs.IO(fmt.Sprintf("failed to read %s", path), err)
	}

	r := e.Translate(string(data), dir)
	if r.TotalReplacements > 0 {
		if err := fsutil.WriteAtomic(e.fs, path, []byte(r.Content), 0o644); err != nil {
			return Result{}, errs.IO(fmt.Sprintf("failed to write %s", path), err)
		}
	}

	e.logger.Info("File translated",
		zap.String("path", path),
		zap.String("direction", string(dir)),
		zap.Int("replacements", r.TotalReplacements))

	return r, nil
}

// peekWork reads the working text without creating it.
func (e *Engine) peekWork() (string, bool, error) {
	exists, err := afero.Exists(e.fs, e.work.Path())
	if err != nil {
		return "", false, errs.IO("failed to stat working file", err)
	}
	if !exists {
		return "", false, nil
	}
	content, err := e.work.Read()
	return content, true, err
}

// Stats describes the working text and the stored state.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	table := e.Table()
	content, exists, err := e.peekWork()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		FileExists:  exists,
		RulesLoaded: table.Len(),
	}
	if content != "" {
		stats.Characters = utf8.RuneCountInString(content)
		stats.Lines = strings.Count(content, "\n") + 1
		stats.Words = len(strings.Fields(content))
		stats.OriginalTermsFound = rewrite.CountTerms(content, table.Terms())
		stats.SanitizedTermsFound = rewrite.CountTerms(content, table.Replacements())
	}

	if stats.BackupCount, err = e.versions.BackupCount(); err != nil {
		return Stats{}, err
	}
	history, err := e.versions.History(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats.HistoryCount = len(history)

	if stats.ObfuscationOutstanding, err = e.mapper.Outstanding(ctx); err != nil {
		return Stats{}, errs.IO("failed to check obfuscation map", err)
	}
	return stats, nil
}

// CheckText reports the forward terms remaining in text.
func (e *Engine) CheckText(text string) CheckResult {
	findings := e.FindTerms(text)
	return CheckResult{
		Clean:    len(findings) == 0,
		Found:    len(findings),
		Findings: findings,
	}
}

// IsClean checks the working text.
func (e *Engine) IsClean(ctx context.Context) (CheckResult, error) {
	content, _, err := e.peekWork()
	if err != nil {
		return CheckResult{}, err
	}
	return e.CheckText(content), nil
}

// FindTerms lists every forward term occurrence in text with its position.
func (e *Engine) FindTerms(text string) []rewrite.Finding {
	return rewrite.FindTerms(text, e.Table().Forward())
}

// FindTermsInWork runs FindTerms over the working text.
func (e *Engine) FindTermsInWork(ctx context.Context) ([]rewrite.Finding, error) {
	content, _, err := e.peekWork()
	if err != nil {
		return nil, err
	}
	return e.FindTerms(content), nil
}

// ValidateConfig reports advisory rule table violations.
func (e *Engine) ValidateConfig() []rules.Violation {
	return e.Table().Validate()
}

// Reload re-reads the rules file. On failure the previous table stays
// active and is returned with the error.
func (e *Engine) Reload() (*rules.Table, error) {
	return e.rules.Reload()
}

// Rules returns the rules matching category; empty returns all.
func (e *Engine) Rules(category string) []rules.Rule {
	return e.Table().Filter(category)
}

// Completions suggests replacements starting with prefix.
func (e *Engine) Completions(prefix string) []rules.Completion {
	return e.Table().Completions(prefix, rules.DefaultCompletionLimit)
}

// MergeRules adds or overwrites rules, persists the table and activates it.
func (e *Engine) MergeRules(extra []rules.Rule) (*rules.Table, error) {
	merged, err := e.Table().Merge(extra)
	if err != nil {
		return nil, err
	}
	if err := e.rules.Replace(merged); err != nil {
		return nil, err
	}
	e.logger.Info("Rules merged", zap.Int("added", len(extra)), zap.Int("rules", merged.Len()))
	return merged, nil
}

// confine resolves path against the workspace directory and rejects
// anything that lands outside it.
func (e *Engine) confine(path string) (string, error) {
	base := filepath.Clean(e.baseDir)
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	path = filepath.Clean(path)

	rel, err := filepath.Rel(base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside %s: %w", path, base, errs.ErrInvalid)
	}
	return path, nil
}
