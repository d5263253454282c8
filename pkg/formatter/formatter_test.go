package formatter_test

import (
	"testing"

	"github.com/thomasrohde/oscript/pkg/formatter"
	"github.com/thomasrohde/oscript/pkg/parser"
)

func format(t *testing.T, source string) string {
	t.Helper()
	prog, errs := parser.Parse(source, "test.oscript")
	if len(errs) > 0 {
		t.Fatalf("parse %q: %s", source, errs[0].Message)
	}
	return formatter.Format(prog)
}

func TestFormatExpressions(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"1+2*3", "1 + 2 * 3\n"},
		{"(1+2)*3", "(1 + 2) * 3\n"},
		{"1-(2-3)", "1 - (2 - 3)\n"},
		{"(1-2)-3", "1 - 2 - 3\n"},
		{"2^3^2", "2 ^ 3 ^ 2\n"},
		{"(2^3)^2", "(2 ^ 3) ^ 2\n"},
		{"-2^2", "-2 ^ 2\n"},
		{"(-2)^2", "(-2) ^ 2\n"},
		{"not ($a and $b)", "!($a AND $b)\n"},
		{"$a || 'x' == 'ax'", "$a || 'x' == 'ax'\n"},
		{"($a == 1) == true", "($a == 1) == true\n"},
		{"$a ? $b : $c ? 1 : 2", "$a ? $b : $c ? 1 : 2\n"},
		{"($a ? $b : $c) ? 1 : 2", "($a ? $b : $c) ? 1 : 2\n"},
		{"\"it's\"", "'it\\'s'\n"},
		{"trigger.data.x[0]", "trigger.data.x[0]\n"},
		{"(1 + 2).x", "(1 + 2).x\n"},
		{"$a otherwise 5", "$a OTHERWISE 5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := format(t, tt.src); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatResolvers(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"var[ 'a' ]", "var['a']\n"},
		{"var[this_address]['a']", "var[this_address]['a']\n"},
		{"data_feed[[oracles=this_address,feed_name='X']]", "data_feed[[oracles = this_address, feed_name = 'X']]\n"},
		{"trigger.output[[asset=base]].amount", "trigger.output[[asset = base]]\n"},
		{"trigger.output[[asset!=base]].asset", "trigger.output[[asset != base]].asset\n"},
		{"attestation[[attestors=this_address, address=this_address]]['user id']", "attestation[[attestors = this_address, address = this_address]]['user id']\n"},
		{"attestation[[attestors=this_address, address=this_address]]['email']", "attestation[[attestors = this_address, address = this_address]].email\n"},
		{"asset[base][trigger.data.f]", "asset[base][trigger.data.f]\n"},
		{"balance[[this_address]][base]", "balance[this_address][base]\n"},
		{"input[[asset=base]].address", "input[[asset = base]].address\n"},
		{"(var['a'])['b']", "(var['a'])['b']\n"},
		{"(asset[base].cap)[0]", "(asset[base].cap)[0]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := format(t, tt.src); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatStatements(t *testing.T) {
	src := `$x=1;if($x>0){var['n']+=1;response['ok']=true;}else if($x<0){bounce('neg');}else{return;} $x`
	want := `$x = 1;
if ($x > 0) {
  var['n'] += 1;
  response['ok'] = true;
} else if ($x < 0) {
  bounce('neg');
} else {
  return;
}
$x
`
	if got := format(t, src); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatIsStable(t *testing.T) {
	for _, src := range []string{
		"$a = trigger.data.a OTHERWISE 0; $b = -($a + 1) ^ 2; var['x'] = $b || 'y';",
		"if (!is_valid_address(trigger.address)) { bounce('bad'); } balance[base] - 10000",
		"$r = round(data_feed[[oracles='JPQKPRI5FMTQRJF4ZZMYZYDQVRD55OTC', feed_name='BTC_USD', ifnone=0]], 2); $r",
	} {
		once := format(t, src)
		twice := format(t, once)
		if once != twice {
			t.Errorf("formatting is not stable:\n%s\n%s", once, twice)
		}
	}
}

func TestHasComments(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"1 + 2", false},
		{"1 // one", true},
		{"/* c */ 1", true},
		{"'http://x'", false},
		{`"a /* b"`, false},
		{`'it\'s' // c`, true},
		{"4 / 2", false},
	}
	for _, tt := range tests {
		if got := formatter.HasComments(tt.src); got != tt.want {
			t.Errorf("HasComments(%q) = %v, want %v", tt.src, got, tt.want)
		}
	}
}
