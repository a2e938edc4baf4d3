package rewrite

// Pair maps one side of a rule onto the other for a single direction.
type Pair struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Change aggregates the replacements made by one rule during a rewrite.
type Change struct {
	Original    string `json:"original"`
	Replacement string `json:"replacement"`
	Count       int    `json:"count"`
}

// Finding is a single positional match reported by FindTerms.
type Finding struct {
	Term        string `json:"term"`
	Counterpart string `json:"counterpart"`
	Matched     string `json:"matched"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Line        int    `json:"line"`
	Column      int    `json:"column"`
}

// Options tunes matching and replacement.
type Options struct {
	// Exact switches to case-sensitive matching and inserts replacements
	// verbatim, with no case adaptation.
	Exact bool
}

// TotalCount sums the occurrence counts of changes.
func TotalCount(changes []Change) int {
	total := 0
	for _, c := range changes {
		total += c.Count
	}
	return total
}
