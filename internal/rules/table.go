// Package rules holds the bidirectional rule table: an ordered list of
// term/replacement pairs with case-insensitive lookup in both directions.
package rules

import (
	"fmt"
	"strings"

	"github.com/raaihank/termswap/internal/errs"
	"github.com/raaihank/termswap/internal/rewrite"
)

// DefaultCompletionLimit caps Completions when no limit is given.
const DefaultCompletionLimit = 20

// Rule pairs a sensitive term with its neutral replacement.
type Rule struct {
	Term        string `json:"term"`
	Replacement string `json:"replacement"`
}

// Table is an immutable, ordered rule set. Build a new Table to change it.
type Table struct {
	rules         []Rule
	byTerm        map[string]int
	byReplacement map[string]int
	metadata      []metadataEntry

	forward *rewrite.Rewriter
	reverse *rewrite.Rewriter
}

// metadataEntry keeps a reserved-prefix key and its raw JSON value so the
// table can be written back without losing it.
type metadataEntry struct {
	Key string
	Raw string
}

// NewTable builds a table from rules in order. A later rule whose term equals
// an earlier one (ignoring case) replaces it in place.
func NewTable(list []Rule) (*Table, error) {
	t := &Table{
		rules:         make([]Rule, 0, len(list)),
		byTerm:        make(map[string]int, len(list)),
		byReplacement: make(map[string]int, len(list)),
	}

	for i, r := range list {
		term := strings.TrimSpace(r.Term)
		replacement := strings.TrimSpace(r.Replacement)
		if term == "" || replacement == "" {
			return nil, errs.Config(fmt.Sprintf("rule %d has an empty term or replacement", i), nil)
		}

		key := strings.ToLower(term)
		if idx, ok := t.byTerm[key]; ok {
			t.rules[idx] = Rule{Term: term, Replacement: replacement}
			continue
		}
		t.byTerm[key] = len(t.rules)
		t.rules = append(t.rules, Rule{Term: term, Replacement: replacement})
	}

	for i, r := range t.rules {
		key := strings.ToLower(r.Replacement)
		if _, ok := t.byReplacement[key]; !ok {
			t.byReplacement[key] = i
		}
	}

	t.forward = rewrite.Compile(t.Forward(), rewrite.Options{})
	t.reverse = rewrite.Compile(t.Reverse(), rewrite.Options{})
	return t, nil
}

// Len returns the number of rules.
func (t *Table) Len() int {
	return len(t.rules)
}

// Rules returns a copy of the rules in insertion order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Forward returns the term→replacement view in insertion order.
func (t *Table) Forward() []rewrite.Pair {
	pairs := make([]rewrite.Pair, len(t.rules))
	for i, r := range t.rules {
		pairs[i] = rewrite.Pair{From: r.Term, To: r.Replacement}
	}
	return pairs
}

// Reverse returns the replacement→term view in insertion order.
func (t *Table) Reverse() []rewrite.Pair {
	pairs := make([]rewrite.Pair, len(t.rules))
	for i, r := range t.rules {
		pairs[i] = rewrite.Pair{From: r.Replacement, To: r.Term}
	}
	return pairs
}

// ForwardRewriter returns the compiled encoder for this table.
func (t *Table) ForwardRewriter() *rewrite.Rewriter {
	return t.forward
}

// ReverseRewriter returns the compiled decoder for this table.
func (t *Table) ReverseRewriter() *rewrite.Rewriter {
	return t.reverse
}

// Terms returns the forward-direction terms.
func (t *Table) Terms() []string {
	out := make([]string, len(t.rules))
	for i, r := range t.rules {
		out[i] = r.Term
	}
	return out
}

// Replacements returns the replacement values.
func (t *Table) Replacements() []string {
	out := make([]string, len(t.rules))
	for i, r := range t.rules {
		out[i] = r.Replacement
	}
	return out
}

// Lookup returns the replacement for term, ignoring case.
func (t *Table) Lookup(term string) (string, bool) {
	idx, ok := t.byTerm[strings.ToLower(term)]
	if !ok {
		return "", false
	}
	return t.rules[idx].Replacement, true
}

// ReverseLookup returns the term for replacement, ignoring case. With
// duplicate replacements the earliest rule wins.
func (t *Table) ReverseLookup(replacement string) (string, bool) {
	idx, ok := t.byReplacement[strings.ToLower(replacement)]
	if !ok {
		return "", false
	}
	return t.rules[idx].Term, true
}

// Filter returns the rules whose term or replacement contains category,
// ignoring case. An empty category returns every rule.
func (t *Table) Filter(category string) []Rule {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		return t.Rules()
	}

	out := make([]Rule, 0)
	for _, r := range t.rules {
		if strings.Contains(strings.ToLower(r.Term), category) || strings.Contains(strings.ToLower(r.Replacement), category) {
			out = append(out, r)
		}
	}
	return out
}

// Completion suggests a replacement for a typed prefix.
type Completion struct {
	Label  string `json:"label"`
	Detail string `json:"detail"`
}

// Completions returns up to limit replacements that start with prefix,
// ignoring case. A non-positive limit uses DefaultCompletionLimit.
func (t *Table) Completions(prefix string, limit int) []Completion {
	if limit <= 0 {
		limit = DefaultCompletionLimit
	}
	prefix = strings.ToLower(prefix)

	out := make([]Completion, 0)
	for _, r := range t.rules {
		if !strings.HasPrefix(strings.ToLower(r.Replacement), prefix) {
			continue
		}
		out = append(out, Completion{
			Label:  r.Replacement,
			Detail: "restores to: " + r.Term,
		})
		if len(out) == limit {
			break
		}
	}
	return out
}

// Merge returns a new table with extra appended; rules whose term already
// exists overwrite the stored replacement. Metadata is carried over.
func (t *Table) Merge(extra []Rule) (*Table, error) {
	merged, err := NewTable(append(t.Rules(), extra...))
	if err != nil {
		return nil, err
	}
	merged.metadata = append([]metadataEntry(nil), t.metadata...)
	return merged, nil
}

// Violation is an advisory finding from Validate.
type Violation struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Terms   []string `json:"terms"`
}

// Violation kinds.
const (
	ViolationDuplicateReplacement = "duplicate_replacement"
	ViolationTermIsReplacement    = "term_is_replacement"
)

// Validate reports duplicate replacement values and terms that also act as a
// replacement of another rule. Findings are advisory; the table stays usable.
func (t *Table) Validate() []Violation {
	violations := make([]Violation, 0)

	groups := make(map[string][]string)
	order := make([]string, 0)
	for _, r := range t.rules {
		key := strings.ToLower(r.Replacement)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r.Term)
	}
	for _, key := range order {
		terms := groups[key]
		if len(terms) < 2 {
			continue
		}
		violations = append(violations, Violation{
			Kind:    ViolationDuplicateReplacement,
			Message: fmt.Sprintf("replacement %q is shared by %s", key, strings.Join(terms, ", ")),
			Terms:   terms,
		})
	}

	for i, r := range t.rules {
		idx, ok := t.byReplacement[strings.ToLower(r.Term)]
		if !ok {
			continue
		}
		other := t.rules[idx]
		if idx == i {
			continue
		}
		violations = append(violations, Violation{
			Kind:    ViolationTermIsReplacement,
			Message: fmt.Sprintf("%q is a term and also the replacement of %q", r.Term, other.Term),
			Terms:   []string{r.Term, other.Term},
		})
	}

	return violations
}
