package rewrite

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

func compileTerm(term string, exact bool) *regexp.Regexp {
	expr := regexp.QuoteMeta(term)
	if !exact {
		expr = "(?i)" + expr
	}
	return regexp.MustCompile(expr)
}

// IsWordRune reports whether r counts as part of a word: letters, digits and
// the underscore.
func IsWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// atBoundary reports whether text[start:end] is delimited by non-word runes or
// the edges of text.
func atBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if IsWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if IsWordRune(r) {
			return false
		}
	}
	return true
}

// findWords returns the byte ranges of non-overlapping whole-word matches of
// pattern, scanning left to right. A candidate that fails the boundary check
// only advances the scan by one rune, so a valid match starting inside it is
// still found.
func findWords(pattern *regexp.Regexp, text string) [][2]int {
	var out [][2]int
	pos := 0
	for pos < len(text) {
		loc := pattern.FindStringIndex(text[pos:])
		if loc == nil || loc[1] == loc[0] {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if atBoundary(text, start, end) {
			out = append(out, [2]int{start, end})
			pos = end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		pos = start + size
	}
	return out
}

// AdaptCase shapes replacement after the casing of matched: an all-uppercase
// match yields an uppercase replacement, an initial capital yields a
// replacement with its first letter capitalized and the rest untouched, and
// anything else yields the replacement as stored.
func AdaptCase(matched, replacement string) string {
	switch {
	case isAllUpper(matched):
		return strings.ToUpper(replacement)
	case startsUpper(matched):
		r, size := utf8.DecodeRuneInString(replacement)
		if r == utf8.RuneError {
			return replacement
		}
		return string(unicode.ToUpper(r)) + replacement[size:]
	default:
		return replacement
	}
}

// isAllUpper mirrors str.isupper: at least one cased rune and no lowercase.
func isAllUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) || unicode.IsTitle(r) {
			cased = true
		}
	}
	return cased
}

func startsUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r) || unicode.IsTitle(r)
}

// Contains reports whether term occurs in text as a whole word, ignoring case.
func Contains(text, term string) bool {
	if term == "" || text == "" {
		return false
	}
	return len(findWords(compileTerm(term, false), text)) > 0
}

// CountTerms returns how many of terms occur at least once in text.
func CountTerms(text string, terms []string) int {
	n := 0
	for _, term := range terms {
		if Contains(text, term) {
			n++
		}
	}
	return n
}

// FindTerms reports every whole-word occurrence of each pair's From in text,
// ordered by offset. It never modifies text and, unlike Rewrite, checks each
// pair independently against the original text.
func FindTerms(text string, pairs []Pair) []Finding {
	findings := make([]Finding, 0)
	if text == "" {
		return findings
	}

	for _, p := range pairs {
		if p.From == "" {
			continue
		}
		for _, m := range findWords(compileTerm(p.From, false), text) {
			line, column := position(text, m[0])
			findings = append(findings, Finding{
				Term:        p.From,
				Counterpart: p.To,
				Matched:     text[m[0]:m[1]],
				Start:       m[0],
				End:         m[1],
				Line:        line,
				Column:      column,
			})
		}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Start < findings[j].Start
	})
	return findings
}

// position converts a byte offset into a 1-based line and a 1-based column
// measured from the nearest preceding line break.
func position(text string, offset int) (int, int) {
	prefix := text[:offset]
	line := strings.Count(prefix, "\n") + 1
	column := offset - strings.LastIndexByte(prefix, '\n')
	return line, column
}
