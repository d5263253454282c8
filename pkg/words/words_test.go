package words_test

import (
	"strings"
	"testing"

	"github.com/thomasrohde/oscript/pkg/stdlib"
	"github.com/thomasrohde/oscript/pkg/words"
)

func TestEveryBuiltinIsDocumented(t *testing.T) {
	for _, name := range stdlib.Default().Names() {
		w, ok := words.Lookup(name)
		if !ok {
			t.Errorf("builtin %s has no word", name)
			continue
		}
		if w.Kind != words.KindFunction || w.Documentation == "" {
			t.Errorf("%s: kind %s, doc %q", name, w.Kind, w.Documentation)
		}
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		token string
		label string
	}{
		{"data_feed", "data_feed"},
		{"asset", "asset["},
		{"amount", "amount="},
		{"otherwise", "OTHERWISE"},
		{"!", "NOT"},
		{"trigger.initial_address", "trigger.initial_address"},
	}
	for _, tt := range tests {
		w, ok := words.Lookup(tt.token)
		if !ok || w.Label != tt.label {
			t.Errorf("Lookup(%q) = %q, %v; want %q", tt.token, w.Label, ok, tt.label)
		}
	}
	if w, ok := words.LookupSearch("asset"); !ok || w.Label != "asset=" {
		t.Errorf("LookupSearch(asset) = %q", w.Label)
	}
	if _, ok := words.Lookup("frobnicate"); ok {
		t.Error("unknown token found")
	}
}

func TestComplete(t *testing.T) {
	got := words.Complete("is_", false)
	if len(got) != 7 {
		t.Errorf("is_ completions = %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Label > got[i].Label {
			t.Error("completions are not sorted")
		}
	}

	search := words.Complete("feed", true)
	if len(search) != 2 {
		t.Errorf("feed completions in search = %v", search)
	}
	if len(words.Complete("feed", false)) != 0 {
		t.Error("search conditions offered outside [[ ]]")
	}
	if w := words.Complete("if", false); len(w) != 1 || w[0].InsertText != "if ()" {
		t.Errorf("if completion = %+v", w)
	}
}

func TestDocumentationKeepsReferenceText(t *testing.T) {
	tests := []struct {
		token string
		want  []string
	}{
		{"data_feed", []string{
			"* `min_mci`: number, optional",
			"look like valid IEEE754 numbers are returned as numbers",
			"the original type of `ifnone` value is always preserved",
			"Examples:",
			"data_feed[[oracles=this_address, feed_name='score']]",
		}},
		{"attestation", []string{
			"Examples:",
			"ifnone='anonymous']].steem_username",
			"previous AA responses are also searched",
		}},
		{"round", []string{"\tround(number [, decimal_places])", "ROUND_HALF_EVEN"}},
	}
	for _, tt := range tests {
		w, ok := words.Lookup(tt.token)
		if !ok {
			t.Fatalf("%s not found", tt.token)
		}
		for _, want := range tt.want {
			if !strings.Contains(w.Documentation, want) {
				t.Errorf("%s documentation lacks %q", tt.token, want)
			}
		}
	}
	// the fence indentation survives loading
	if w, _ := words.Lookup("sqrt"); !strings.HasPrefix(w.Documentation, "\t`{") {
		t.Errorf("sqrt documentation = %q", w.Documentation)
	}
}
