// Package obfuscation replaces sensitive-looking words with generated
// identifiers and keeps the mapping so the rewrite can be inverted later.
package obfuscation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/raaihank/termswap/internal/errs"
	"github.com/raaihank/termswap/internal/rewrite"
)

// Mapper runs obfuscation and deobfuscation against a MapStore. At most one
// map is outstanding at a time.
type Mapper struct {
	catalog *Catalog
	prefix  string
	store   MapStore
	logger  *zap.Logger
}

// NewMapper creates a mapper. Empty config values fall back to
// DefaultPatterns and DefaultIdentifierPrefix.
func NewMapper(config Config, store MapStore, logger *zap.Logger) (*Mapper, error) {
	patterns := config.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}
	catalog, err := NewCatalog(patterns)
	if err != nil {
		return nil, err
	}

	prefix := config.IdentifierPrefix
	if prefix == "" {
		prefix = DefaultIdentifierPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Mapper{catalog: catalog, prefix: prefix, store: store, logger: logger}, nil
}

// Catalog returns the active sensitivity catalog.
func (m *Mapper) Catalog() *Catalog {
	return m.catalog
}

// Preview computes the obfuscated text and its map without persisting
// anything.
func (m *Mapper) Preview(text string) (string, *Map, []rewrite.Change) {
	words := m.catalog.Words(text)
	if len(words) == 0 {
		return text, NewMap(nil), []rewrite.Change{}
	}

	gen := &identifiers{prefix: m.prefix, taken: wordSet(text)}
	entries := make([]Entry, 0, len(words))
	for _, w := range words {
		entries = append(entries, Entry{Original: w, Identifier: gen.Next()})
	}
	mapping := NewMap(entries)

	out, changes := rewrite.Rewrite(text, mapping.Forward(), rewrite.Options{Exact: true})
	return out, mapping, changes
}

// Obfuscate rewrites text and persists the generated map. It fails with
// errs.ErrConflict while an earlier map is outstanding. Text with no
// sensitive words is returned unchanged and no map is stored.
func (m *Mapper) Obfuscate(ctx context.Context, text string) (string, *Map, []rewrite.Change, error) {
	outstanding, err := m.store.Exists(ctx)
	if err != nil {
		return "", nil, nil, errs.IO("failed to check obfuscation map", err)
	}
	if outstanding {
		return "", nil, nil, fmt.Errorf("an obfuscation map is outstanding, deobfuscate first: %w", errs.ErrConflict)
	}

	out, mapping, changes := m.Preview(text)
	if mapping.Len() == 0 {
		return out, mapping, changes, nil
	}

	if err := m.store.Save(ctx, mapping); err != nil {
		return "", nil, nil, err
	}

	m.logger.Info("Text obfuscated",
		zap.Int("identifiers", mapping.Len()),
		zap.Int("replacements", rewrite.TotalCount(changes)))

	return out, mapping, changes, nil
}

// Deobfuscate inverts the outstanding map over text and deletes it. It fails
// with errs.ErrNotFound when no map is outstanding.
func (m *Mapper) Deobfuscate(ctx context.Context, text string) (string, *Map, []rewrite.Change, error) {
	mapping, err := m.store.Load(ctx)
	if err != nil {
		return "", nil, nil, err
	}

	out, changes := rewrite.Rewrite(text, mapping.Inverse(), rewrite.Options{Exact: true})

	if err := m.store.Delete(ctx); err != nil {
		return "", nil, nil, errs.IO("failed to delete obfuscation map", err)
	}

	m.logger.Info("Text deobfuscated",
		zap.Int("identifiers", mapping.Len()),
		zap.Int("replacements", rewrite.TotalCount(changes)))

	return out, mapping, changes, nil
}

// Outstanding reports whether a map is waiting to be consumed.
func (m *Mapper) Outstanding(ctx context.Context) (bool, error) {
	return m.store.Exists(ctx)
}

// Current returns the outstanding map, or nil when there is none.
func (m *Mapper) Current(ctx context.Context) (*Map, error) {
	mapping, err := m.store.Load(ctx)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	return mapping, err
}

// Reinstate stores mapping again as the outstanding map, for undoing a
// deobfuscation.
func (m *Mapper) Reinstate(ctx context.Context, mapping *Map) error {
	return m.store.Save(ctx, mapping)
}

// Discard drops the outstanding map, for undoing an obfuscation.
func (m *Mapper) Discard(ctx context.Context) error {
	return m.store.Delete(ctx)
}
