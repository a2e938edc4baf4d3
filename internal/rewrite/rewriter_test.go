package rewrite

import (
	"testing"
)

func TestRewrite(t *testing.T) {
	t.Run("CaseFidelity", func(t *testing.T) {
		pairs := []Pair{{From: "secret", To: "node"}}
		cases := map[string]string{
			"Secret": "Node",
			"SECRET": "NODE",
			"secret": "node",
			"sEcret": "node",
		}
		for in, want := range cases {
			got, _ := Rewrite(in, pairs, Options{})
			if got != want {
				t.Errorf("Rewrite(%q) = %q, want %q", in, got, want)
			}
		}
	})

	t.Run("CapitalizeKeepsRest", func(t *testing.T) {
		got, _ := Rewrite("Bypass the filter", []Pair{{From: "bypass", To: "bridge_Compat"}}, Options{})
		if got != "Bridge_Compat the filter" {
			t.Errorf("unexpected rewrite: %q", got)
		}
	})

	t.Run("BypassScenario", func(t *testing.T) {
		got, changes := Rewrite("Bypass the filter", []Pair{{From: "bypass", To: "bridge_compatibility"}}, Options{})
		if got != "Bridge_compatibility the filter" {
			t.Errorf("unexpected rewrite: %q", got)
		}
		if TotalCount(changes) != 1 {
			t.Errorf("expected 1 replacement, got %d", TotalCount(changes))
		}
	})

	t.Run("WholeWordOnly", func(t *testing.T) {
		got, changes := Rewrite("keys key keyboard monkey key_a key-b", []Pair{{From: "key", To: "slot"}}, Options{})
		if got != "keys slot keyboard monkey key_a slot-b" {
			t.Errorf("unexpected rewrite: %q", got)
		}
		if len(changes) != 1 || changes[0].Count != 2 {
			t.Errorf("unexpected changes: %+v", changes)
		}
	})

	t.Run("LongestFirstRegardlessOfOrder", func(t *testing.T) {
		pairs := []Pair{
			{From: "shell", To: "cell"},
			{From: "reverse shell", To: "mirror channel"},
		}
		got, changes := Rewrite("open a reverse shell now", pairs, Options{})
		if got != "open a mirror channel now" {
			t.Errorf("unexpected rewrite: %q", got)
		}
		if len(changes) != 1 || changes[0].Original != "reverse shell" {
			t.Errorf("unexpected changes: %+v", changes)
		}
	})

	t.Run("TiesKeepInsertionOrder", func(t *testing.T) {
		r := Compile([]Pair{{From: "abc", To: "1"}, {From: "xyz", To: "2"}, {From: "a", To: "3"}}, Options{})
		pairs := r.Pairs()
		if pairs[0].From != "abc" || pairs[1].From != "xyz" || pairs[2].From != "a" {
			t.Errorf("unexpected order: %+v", pairs)
		}
	})

	t.Run("UnicodeBoundaries", func(t *testing.T) {
		got, _ := Rewrite("ação senha senhaçø", []Pair{{From: "senha", To: "chave"}}, Options{})
		if got != "ação chave senhaçø" {
			t.Errorf("unexpected rewrite: %q", got)
		}
	})

	t.Run("EmptyInputs", func(t *testing.T) {
		got, changes := Rewrite("", []Pair{{From: "a", To: "b"}}, Options{})
		if got != "" || len(changes) != 0 {
			t.Error("empty text should be untouched")
		}
		got, changes = Rewrite("same text", nil, Options{})
		if got != "same text" || len(changes) != 0 {
			t.Error("empty mapping should be identity")
		}
	})

	t.Run("ExactMode", func(t *testing.T) {
		got, _ := Rewrite("Password password", []Pair{{From: "password", To: "var_a1"}}, Options{Exact: true})
		if got != "Password var_a1" {
			t.Errorf("unexpected rewrite: %q", got)
		}
	})

	t.Run("RetryInsideRejectedCandidate", func(t *testing.T) {
		got, _ := Rewrite("aa-a", []Pair{{From: "a-a", To: "x"}}, Options{})
		if got != "aa-a" {
			t.Errorf("unexpected rewrite: %q", got)
		}
		got, _ = Rewrite("x a-a", []Pair{{From: "a-a", To: "y"}}, Options{})
		if got != "x y" {
			t.Errorf("unexpected rewrite: %q", got)
		}
	})
}

func TestProperties(t *testing.T) {
	pairs := []Pair{
		{From: "bypass", To: "bridge_compatibility"},
		{From: "exploit", To: "performance_case"},
		{From: "vulnerability", To: "logic_bottleneck"},
	}
	reverse := make([]Pair, len(pairs))
	for i, p := range pairs {
		reverse[i] = Pair{From: p.To, To: p.From}
	}
	text := "Exploit the VULNERABILITY, then bypass.\nBypass again: exploit!"

	t.Run("RoundTrip", func(t *testing.T) {
		encoded, _ := Rewrite(text, pairs, Options{})
		decoded, _ := Rewrite(encoded, reverse, Options{})
		if decoded != text {
			t.Errorf("round trip mismatch:\n got: %q\nwant: %q", decoded, text)
		}
	})

	t.Run("Idempotence", func(t *testing.T) {
		once, _ := Rewrite(text, pairs, Options{})
		twice, changes := Rewrite(once, pairs, Options{})
		if twice != once {
			t.Errorf("second pass changed text: %q", twice)
		}
		if len(changes) != 0 {
			t.Errorf("second pass reported changes: %+v", changes)
		}
	})
}

func TestFindTerms(t *testing.T) {
	pairs := []Pair{{From: "bypass", To: "bridge_compatibility"}, {From: "exploit", To: "performance_case"}}
	text := "first line\nan Exploit and a bypass\nBYPASS"

	findings := FindTerms(text, pairs)
	if len(findings) != 3 {
		t.Fatalf("expected 3 findings, got %d: %+v", len(findings), findings)
	}

	first := findings[0]
	if first.Term != "exploit" || first.Matched != "Exploit" || first.Line != 2 || first.Column != 4 {
		t.Errorf("unexpected first finding: %+v", first)
	}
	if text[first.Start:first.End] != "Exploit" {
		t.Errorf("offsets do not cover the match: %+v", first)
	}
	if findings[1].Term != "bypass" || findings[1].Line != 2 || findings[1].Column != 18 {
		t.Errorf("unexpected second finding: %+v", findings[1])
	}
	if findings[2].Line != 3 || findings[2].Column != 1 || findings[2].Counterpart != "bridge_compatibility" {
		t.Errorf("unexpected third finding: %+v", findings[2])
	}

	if got := FindTerms("", pairs); len(got) != 0 {
		t.Error("empty text should have no findings")
	}
}

func TestContains(t *testing.T) {
	if !Contains("a Token here", "token") {
		t.Error("expected match")
	}
	if Contains("tokens", "token") {
		t.Error("partial word must not match")
	}
	if got := CountTerms("bypass and exploit", []string{"bypass", "exploit", "virus"}); got != 2 {
		t.Errorf("CountTerms = %d, want 2", got)
	}
}

func TestAdaptCase(t *testing.T) {
	cases := []struct{ matched, replacement, want string }{
		{"ABC", "node", "NODE"},
		{"Abc", "node", "Node"},
		{"abc", "Node", "Node"},
		{"A", "node", "NODE"},
		{"123", "node", "node"},
		{"Éclair", "über", "Über"},
	}
	for _, c := range cases {
		if got := AdaptCase(c.matched, c.replacement); got != c.want {
			t.Errorf("AdaptCase(%q, %q) = %q, want %q", c.matched, c.replacement, got, c.want)
		}
	}
}
