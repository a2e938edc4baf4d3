// Package rewrite implements the whole-word, case-preserving substitution pass
// shared by encoding, decoding and obfuscation.
package rewrite

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Rewriter applies an ordered set of pairs to text. Pairs are compiled once
// and sorted longest-first, so a Rewriter can be reused for many calls.
type Rewriter struct {
	rules []compiledPair
	opts  Options
}

type compiledPair struct {
	Pair
	pattern *regexp.Regexp
}

// Compile sorts pairs by descending key length, keeping insertion order for
// ties, and prepares their matchers. Pairs with an empty From are skipped.
func Compile(pairs []Pair, opts Options) *Rewriter {
	sorted := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		if p.From == "" {
			continue
		}
		sorted = append(sorted, p)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return utf8.RuneCountInString(sorted[i].From) > utf8.RuneCountInString(sorted[j].From)
	})

	rules := make([]compiledPair, len(sorted))
	for i, p := range sorted {
		rules[i] = compiledPair{Pair: p, pattern: compileTerm(p.From, opts.Exact)}
	}

	return &Rewriter{rules: rules, opts: opts}
}

// Rewrite is a one-shot helper around Compile.
func Rewrite(text string, pairs []Pair, opts Options) (string, []Change) {
	return Compile(pairs, opts).Rewrite(text)
}

// Len returns the number of compiled pairs.
func (r *Rewriter) Len() int {
	return len(r.rules)
}

// Pairs returns the compiled pairs in application order.
func (r *Rewriter) Pairs() []Pair {
	out := make([]Pair, len(r.rules))
	for i, rule := range r.rules {
		out[i] = rule.Pair
	}
	return out
}

// Rewrite replaces every whole-word occurrence of each pair, one pass per
// pair, in longest-first order. Later pairs see the text produced by earlier
// ones. One Change is returned per pair that matched at least once.
func (r *Rewriter) Rewrite(text string) (string, []Change) {
	changes := make([]Change, 0)
	if text == "" {
		return text, changes
	}

	for _, rule := range r.rules {
		matches := findWords(rule.pattern, text)
		if len(matches) == 0 {
			continue
		}

		var b strings.Builder
		b.Grow(len(text))
		last := 0
		for _, m := range matches {
			b.WriteString(text[last:m[0]])
			if r.opts.Exact {
				b.WriteString(rule.To)
			} else {
				b.WriteString(AdaptCase(text[m[0]:m[1]], rule.To))
			}
			last = m[1]
		}
		b.WriteString(text[last:])
		text = b.String()

		changes = append(changes, Change{
			Original:    rule.From,
			Replacement: rule.To,
			Count:       len(matches),
		})
	}

	return text, changes
}

// Count returns how many whole-word occurrences of each pair's From exist in
// text, without rewriting. Pairs with no occurrence are omitted.
func (r *Rewriter) Count(text string) []Change {
	changes := make([]Change, 0)
	for _, rule := range r.rules {
		if n := len(findWords(rule.pattern, text)); n > 0 {
			changes = append(changes, Change{Original: rule.From, Replacement: rule.To, Count: n})
		}
	}
	return changes
}
