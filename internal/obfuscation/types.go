package obfuscation

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/raaihank/termswap/internal/rewrite"
)

// DefaultIdentifierPrefix starts every generated identifier.
const DefaultIdentifierPrefix = "var_"

// Config contains obfuscation configuration
type Config struct {
	Patterns         []string `yaml:"patterns" mapstructure:"patterns"`
	IdentifierPrefix string   `yaml:"identifier_prefix" mapstructure:"identifier_prefix"`
}

// Entry pairs an original word with the identifier that replaced it.
type Entry struct {
	Original   string `json:"original"`
	Identifier string `json:"identifier"`
}

// Map is an ordered original→identifier table. The zero value is an empty map.
type Map struct {
	entries []Entry
}

// NewMap builds a map from entries in the given order.
func NewMap(entries []Entry) *Map {
	return &Map{entries: append([]Entry(nil), entries...)}
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Entries returns a copy of the entries in assignment order.
func (m *Map) Entries() []Entry {
	if m == nil {
		return nil
	}
	return append([]Entry(nil), m.entries...)
}

// Identifier returns the identifier assigned to original.
func (m *Map) Identifier(original string) (string, bool) {
	for _, e := range m.Entries() {
		if e.Original == original {
			return e.Identifier, true
		}
	}
	return "", false
}

// Forward returns original→identifier pairs.
func (m *Map) Forward() []rewrite.Pair {
	pairs := make([]rewrite.Pair, 0, m.Len())
	for _, e := range m.Entries() {
		pairs = append(pairs, rewrite.Pair{From: e.Original, To: e.Identifier})
	}
	return pairs
}

// Inverse returns identifier→original pairs.
func (m *Map) Inverse() []rewrite.Pair {
	pairs := make([]rewrite.Pair, 0, m.Len())
	for _, e := range m.Entries() {
		pairs = append(pairs, rewrite.Pair{From: e.Identifier, To: e.Original})
	}
	return pairs
}

// MarshalJSON encodes the map as a JSON object in assignment order.
func (m *Map) MarshalJSON() ([]byte, error) {
	out := []byte("{}")
	for _, e := range m.Entries() {
		var err error
		out, err = sjson.SetBytes(out, escapeKey(e.Original), e.Identifier)
		if err != nil {
			return nil, fmt.Errorf("failed to encode map entry %q: %w", e.Original, err)
		}
	}
	return out, nil
}

// UnmarshalJSON decodes a JSON object, keeping document order.
func (m *Map) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid obfuscation map JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return fmt.Errorf("obfuscation map must be a JSON object")
	}

	var entries []Entry
	var bad error
	root.ForEach(func(key, value gjson.Result) bool {
		if value.Type != gjson.String || value.Str == "" {
			bad = fmt.Errorf("identifier for %q must be a non-empty string", key.String())
			return false
		}
		entries = append(entries, Entry{Original: key.String(), Identifier: value.Str})
		return true
	})
	if bad != nil {
		return bad
	}

	m.entries = entries
	return nil
}

// escapeKey protects sjson path syntax inside a literal key.
func escapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		if strings.ContainsRune(`\.*?|#@!=<>%:`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// MapStore persists the single outstanding obfuscation map.
type MapStore interface {
	// Load returns errs.ErrNotFound when no map is outstanding.
	Load(ctx context.Context) (*Map, error)
	// Save returns errs.ErrConflict when a map is already outstanding.
	Save(ctx context.Context, m *Map) error
	Delete(ctx context.Context) error
	Exists(ctx context.Context) (bool, error)
}
