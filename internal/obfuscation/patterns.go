package obfuscation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/raaihank/termswap/internal/errs"
	"github.com/raaihank/termswap/internal/rewrite"
)

// DefaultPatterns is the built-in sensitivity catalog. Each entry is a word
// prefix.
func DefaultPatterns() []string {
	return []string{
		"password", "secret", "key", "token", "admin", "root", "shell",
		"payload", "exploit", "hack", "credential", "auth", "private",
		"cipher", "encrypt", "decrypt", "injection", "bypass", "malware",
		"virus", "trojan", "backdoor",
	}
}

// Catalog matches whole words that begin with any of its prefixes.
type Catalog struct {
	prefixes []string
	pattern  *regexp.Regexp
}

// NewCatalog compiles prefixes into one case-insensitive matcher. Blank
// prefixes are ignored; an empty catalog is a configuration error.
func NewCatalog(prefixes []string) (*Catalog, error) {
	var kept, quoted []string
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kept = append(kept, p)
		quoted = append(quoted, regexp.QuoteMeta(p))
	}
	if len(kept) == 0 {
		return nil, errs.Config("obfuscation catalog has no patterns", nil)
	}

	expr := fmt.Sprintf(`(?i)(?:%s)[\p{L}\p{Nd}_]*`, strings.Join(quoted, "|"))
	pattern, err := regexp.Compile(expr)
	if err != nil {
		return nil, errs.Config("invalid obfuscation pattern", err)
	}
	return &Catalog{prefixes: kept, pattern: pattern}, nil
}

// Prefixes returns the configured prefixes.
func (c *Catalog) Prefixes() []string {
	return append([]string(nil), c.prefixes...)
}

// Words returns the distinct matched words in first-seen order. Words are
// distinct by exact spelling.
func (c *Catalog) Words(text string) []string {
	var words []string
	seen := make(map[string]bool)

	pos := 0
	for pos < len(text) {
		loc := c.pattern.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if start > 0 {
			if r, _ := utf8.DecodeLastRuneInString(text[:start]); rewrite.IsWordRune(r) {
				_, size := utf8.DecodeRuneInString(text[start:])
				pos = start + size
				continue
			}
		}
		word := text[start:end]
		if !seen[word] {
			seen[word] = true
			words = append(words, word)
		}
		pos = end
	}
	return words
}

// wordSet collects every whole word present in text.
func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.FieldsFunc(text, func(r rune) bool { return !rewrite.IsWordRune(r) }) {
		set[w] = true
	}
	return set
}

// identifiers yields prefix+letter+round names: a1..z1, a2..z2 and so on,
// skipping names in taken.
type identifiers struct {
	prefix string
	taken  map[string]bool
	next   int
}

func (g *identifiers) Next() string {
	for {
		i := g.next
		g.next++
		name := fmt.Sprintf("%s%c%d", g.prefix, 'a'+rune(i%26), i/26+1)
		if !g.taken[name] {
			return name
		}
	}
}
