// Package help holds the reference text printed by `oscript help`.
package help

import (
	"fmt"
	"strings"

	"github.com/thomasrohde/oscript/pkg/stdlib"
	"github.com/thomasrohde/oscript/pkg/words"
)

// Version is the language level described by the reference.
const Version = "v1.0"

// TopicList is the order topics are listed in.
var TopicList = []string{"syntax", "types", "resolvers", "state", "stdlib", "complexity", "modes", "diagnostics", "examples"}

// QUICKREF is printed by `oscript help` without a topic.
var QUICKREF = `oscript ` + Version + ` quick reference

  $name = expr;                 local, assigned once
  var['key'] = expr;            state var (state script only; += -= *= /= %= ||=)
  response['key'] = expr;       response var (AA mode)
  if (cond) { ... } else { ... }
  return expr;  bounce(msg);
  cond ? a : b   a OTHERWISE b   a || b (concat)   a ^ b

  data_feed[[oracles=..., feed_name=...]]   in_data_feed[[...]]
  attestation[[attestors=..., address=...]].field
  trigger.output[[asset=base]]   input[[...]]  output[[...]]
  asset[a].cap   balance[base]   var[addr]['key']

Commands: check, run, fmt, trace, serve, deploy, config, help
Topics: ` + strings.Join(TopicList, ", ") + `
Run 'oscript help <topic>' for details.
`

// Topics maps a topic name to its text.
var Topics = map[string]string{
	"syntax": `Syntax

A program is a sequence of statements followed by an optional result
expression. Statements end with ';'. Blocks use braces.

  $x = 1;              locals are assigned once
  $x = 2;              rejected with E_LOCAL_REASSIGN
  if ($x > 0) { response['pos'] = true; } else if ($x < 0) { bounce('neg'); }
  return $x * 2;       return must be the last statement of its block

Keywords AND, OR, NOT, OTHERWISE accept lower case. '!' is NOT.
Strings use single or double quotes. Comments are // and /* */.
`,
	"types": `Types

Values are numbers (decimal, 15 significant digits), strings, booleans and
JSON objects or arrays read from trigger.data or state vars.

Coercion: arithmetic turns true/false into 1/0 and accepts numeric
strings. '||' concatenates strings, numbers and booleans. Strings compare
with strings; a non-numeric string compared with a number fails. Booleans
compare only for equality. A missing lookup reads as false.
`,
	"resolvers": `Resolvers

data_feed[[oracles, feed_name, min_mci, feed_value, ifseveral, ifnone, type]]
in_data_feed[[oracles, feed_name, feed_value, min_mci]]  (returns a boolean)
attestation[[attestors, address, ifseveral, ifnone, type]][field]
trigger.output[[asset]].amount   input[[...]]  output[[...]]
asset[a].field                   balance[asset]  balance[address][asset]

A search with no match fails unless ifnone is given. ifseveral picks the
last or the abort behavior when several postings match.
`,
	"state": `State

var['k'] reads this AA's state, var[addr]['k'] another AA's. Writes are
buffered and committed only when the script returns. A bounce or an error
discards every write. Assigning false deletes the variable, true is
stored as 1.
`,
	"stdlib": "Builtins\n\n" + StdlibIndex(),
	"complexity": `Complexity

Resolvers, state var access and the heavier builtins each count one
operation. 'oscript check' reports the largest count on any branch; a
program over the limit (default 100) is rejected before running.
`,
	"modes": `Modes

aa       formula inside an AA definition (default for fragments)
state    the state script, the only place var[] may be assigned
formula  non-AA formula over its own unit; no trigger or response vars
`,
	"diagnostics": `Diagnostics

E_LEX E_PARSE          syntax errors
E_RETURN_NOT_LAST      return followed by more statements
E_LOCAL_REASSIGN       local assigned twice
E_UNKNOWN_FN E_ARGS    unknown builtin or wrong arity
E_MODE                 construct unavailable in the chosen mode
E_CRITERIA E_FIELD     bad search criteria or field
E_TYPE E_NOT_FOUND E_AMBIGUOUS E_COMPLEXITY
E_BOUNCE E_LEDGER E_CHAIN_DEPTH E_IO

Exit codes: 0 ok, 1 usage or I/O, 2 diagnostics, 3 bounce, 4 runtime error.
`,
	"examples": `Examples

  // count triggers per sender
  var[trigger.address] += 1;

  // price from an oracle, refuse stale feeds
  $price = data_feed[[oracles=this_address, feed_name='PRICE', min_mci=mci-100]];
  if (!$price) { bounce('no price'); }
  response['price'] = round($price, 2);
`,
}

// MatchTopic finds a topic by exact name or unique prefix.
func MatchTopic(query string) (string, string, error) {
	if content, ok := Topics[query]; ok {
		return query, content, nil
	}
	var matches []string
	for _, name := range TopicList {
		if strings.HasPrefix(name, query) {
			matches = append(matches, name)
		}
	}
	switch len(matches) {
	case 0:
		return "", "", fmt.Errorf("unknown help topic %q", query)
	case 1:
		return matches[0], Topics[matches[0]], nil
	}
	return "", "", fmt.Errorf("ambiguous help topic %q: %s", query, strings.Join(matches, ", "))
}

// StdlibIndex lists every builtin with its one-line documentation.
func StdlibIndex() string {
	names := stdlib.Default().Names()
	var b strings.Builder
	for _, name := range names {
		doc := ""
		if w, ok := words.Lookup(name); ok {
			doc = synopsis(w.Documentation)
		}
		fmt.Fprintf(&b, "  %-24s %s\n", name, doc)
	}
	fmt.Fprintf(&b, "Total: %d functions\n", len(names))
	return b.String()
}

// synopsis returns the first line of a word's documentation that is not
// part of the code fence, usually the call signature.
func synopsis(doc string) string {
	for _, line := range strings.Split(doc, "\n") {
		line = strings.Trim(line, "\t `{}")
		if line != "" {
			return line
		}
	}
	return ""
}
