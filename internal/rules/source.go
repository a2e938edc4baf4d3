package rules

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/raaihank/termswap/internal/errs"
	"github.com/raaihank/termswap/internal/fsutil"
)

// DefaultMetadataPrefix marks keys in the rules file that are not rules.
const DefaultMetadataPrefix = "_"

// DefaultRules seeds a rules file that does not exist yet.
func DefaultRules() []Rule {
	return []Rule{
		{Term: "bypass", Replacement: "bridge_compatibility"},
		{Term: "exploit", Replacement: "performance_case"},
		{Term: "vulnerability", Replacement: "logic_bottleneck"},
	}
}

// Source reads and writes the persisted rules file: a flat JSON object whose
// keys are terms and whose values are replacements.
type Source struct {
	fs     afero.Fs
	path   string
	prefix string
	logger *zap.Logger
}

// NewSource creates a source for path. An empty prefix uses
// DefaultMetadataPrefix.
func NewSource(fs afero.Fs, path, metadataPrefix string, logger *zap.Logger) *Source {
	if metadataPrefix == "" {
		metadataPrefix = DefaultMetadataPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{fs: fs, path: path, prefix: metadataPrefix, logger: logger}
}

// Path returns the rules file location.
func (s *Source) Path() string {
	return s.path
}

// Load parses the rules file. A missing file is created with DefaultRules.
// Malformed content fails with errs.ErrConfig.
func (s *Source) Load() (*Table, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s.createDefault()
	}
	if err != nil {
		return nil, errs.Config(fmt.Sprintf("failed to read rules file %s", s.path), err)
	}

	if !gjson.ValidBytes(data) {
		return nil, errs.Config(fmt.Sprintf("rules file %s is not valid JSON", s.path), nil)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, errs.Config(fmt.Sprintf("rules file %s must contain a JSON object", s.path), nil)
	}

	var (
		list     []Rule
		metadata []metadataEntry
		parseErr error
	)
	root.ForEach(func(key, value gjson.Result) bool {
		term := key.String()
		if strings.HasPrefix(term, s.prefix) {
			metadata = append(metadata, metadataEntry{Key: term, Raw: value.Raw})
			return true
		}
		if value.Type != gjson.String {
			parseErr = errs.Config(fmt.Sprintf("rule %q must map to a string", term), nil)
			return false
		}
		list = append(list, Rule{Term: term, Replacement: value.String()})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	table, err := NewTable(list)
	if err != nil {
		return nil, fmt.Errorf("invalid rules file %s: %w", s.path, err)
	}
	table.metadata = metadata

	s.logger.Info("Rules loaded",
		zap.String("path", s.path),
		zap.Int("rules", table.Len()),
		zap.Int("metadata_keys", len(metadata)))

	return table, nil
}

// Save writes t back to the rules file in order, metadata keys first.
func (s *Source) Save(t *Table) error {
	data, err := encode(t)
	if err != nil {
		return err
	}
	if err := fsutil.WriteAtomic(s.fs, s.path, data, 0o644); err != nil {
		return errs.IO("failed to write rules file", err)
	}

	s.logger.Info("Rules saved", zap.String("path", s.path), zap.Int("rules", t.Len()))
	return nil
}

func (s *Source) createDefault() (*Table, error) {
	table, err := NewTable(DefaultRules())
	if err != nil {
		return nil, err
	}
	if err := s.Save(table); err != nil {
		return nil, errs.Config("failed to create default rules file", err)
	}

	s.logger.Warn("Rules file not found, created defaults",
		zap.String("path", s.path),
		zap.Int("rules", table.Len()))

	return table, nil
}

func encode(t *Table) ([]byte, error) {
	doc := []byte("{}")
	var err error

	for _, m := range t.metadata {
		doc, err = sjson.SetRawBytes(doc, escapeKey(m.Key), []byte(m.Raw))
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata key %q: %w", m.Key, err)
		}
	}
	for _, r := range t.rules {
		doc, err = sjson.SetBytes(doc, escapeKey(r.Term), r.Replacement)
		if err != nil {
			return nil, fmt.Errorf("failed to encode rule %q: %w", r.Term, err)
		}
	}

	return pretty.PrettyOptions(doc, &pretty.Options{Width: 80, Indent: "    "}), nil
}

// escapeKey turns a literal object key into an sjson path.
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
