package evaluator

import (
	"fmt"
	"sort"

	"github.com/thomasrohde/oscript/pkg/ast"
)

// OpSet is the set of comparison operators a search field accepts.
type OpSet int

const (
	OpsEq    OpSet = iota // "=" only
	OpsEqNe               // "=" and "!="
	OpsOrder              // all six comparisons
)

// Allows reports whether op is in the set.
func (s OpSet) Allows(op string) bool {
	switch s {
	case OpsEq:
		return op == "="
	case OpsEqNe:
		return op == "=" || op == "!="
	}
	switch op {
	case "=", "!=", ">", ">=", "<", "<=":
		return true
	}
	return false
}

// FieldRule describes one search field.
type FieldRule struct {
	Ops      OpSet
	Required bool
}

// Search kinds, keys of SearchFields.
const (
	SearchDataFeed      = "data_feed"
	SearchInDataFeed    = "in_data_feed"
	SearchAttestation   = "attestation"
	SearchInput         = "input"
	SearchOutput        = "output"
	SearchTriggerOutput = "trigger.output"
)

// SearchFields lists the fields each [[...]] search accepts.
var SearchFields = map[string]map[string]FieldRule{
	SearchDataFeed: {
		"oracles":    {Ops: OpsEq, Required: true},
		"feed_name":  {Ops: OpsEq, Required: true},
		"feed_value": {Ops: OpsOrder},
		"min_mci":    {Ops: OpsEq},
		"ifseveral":  {Ops: OpsEq},
		"ifnone":     {Ops: OpsEq},
		"what":       {Ops: OpsEq},
		"type":       {Ops: OpsEq},
	},
	SearchInDataFeed: {
		"oracles":    {Ops: OpsEq, Required: true},
		"feed_name":  {Ops: OpsEq, Required: true},
		"feed_value": {Ops: OpsOrder, Required: true},
		"min_mci":    {Ops: OpsEq},
	},
	SearchAttestation: {
		"attestors": {Ops: OpsEq, Required: true},
		"address":   {Ops: OpsEq, Required: true},
		"ifseveral": {Ops: OpsEq},
		"ifnone":    {Ops: OpsEq},
		"type":      {Ops: OpsEq},
	},
	SearchInput: {
		"asset":   {Ops: OpsEqNe},
		"address": {Ops: OpsEqNe},
		"amount":  {Ops: OpsOrder},
	},
	SearchOutput: {
		"asset":   {Ops: OpsEqNe},
		"address": {Ops: OpsEqNe},
		"amount":  {Ops: OpsOrder},
	},
	SearchTriggerOutput: {
		"asset": {Ops: OpsEqNe, Required: true},
	},
}

// CheckCriteria validates field names, operators, duplicates and required
// fields of a search without evaluating values.
func CheckCriteria(kind string, list []ast.Criterion) (string, *ast.Span) {
	rules := SearchFields[kind]
	seen := make(map[string]bool, len(list))
	for i := range list {
		c := &list[i]
		rule, ok := rules[c.Field]
		if !ok {
			return fmt.Sprintf("unknown field '%s' in %s search", c.Field, kind), &c.Span
		}
		if !rule.Ops.Allows(c.Op) {
			return fmt.Sprintf("operator '%s' is not allowed for '%s' in %s search", c.Op, c.Field, kind), &c.Span
		}
		if seen[c.Field] {
			return fmt.Sprintf("duplicate field '%s' in %s search", c.Field, kind), &c.Span
		}
		seen[c.Field] = true
	}
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if rules[name].Required && !seen[name] {
			return fmt.Sprintf("%s search requires '%s'", kind, name), nil
		}
	}
	return "", nil
}

type criterion struct {
	op    string
	value Value
	span  ast.Span
}

type criteria map[string]criterion

func (c criteria) has(name string) bool {
	_, ok := c[name]
	return ok
}

// evalCriteria checks a search and evaluates its values left to right.
func (ev *evaluator) evalCriteria(kind string, list []ast.Criterion, span ast.Span) (criteria, error) {
	if msg, where := CheckCriteria(kind, list); msg != "" {
		err := criteriaErrorf("%s", msg)
		if where != nil {
			err.Span = where
		} else {
			s := span
			err.Span = &s
		}
		return nil, err
	}
	out := make(criteria, len(list))
	for _, c := range list {
		v, err := ev.evalExpr(c.Value)
		if err != nil {
			return nil, err
		}
		out[c.Field] = criterion{op: c.Op, value: v, span: c.Span}
	}
	return out, nil
}

// stringField returns a criterion value as a string, or def when absent.
func (c criteria) stringField(name, def string) (string, error) {
	cr, ok := c[name]
	if !ok {
		return def, nil
	}
	s, err := ToString(cr.value)
	if err != nil {
		return "", at(err, cr.span)
	}
	return s, nil
}

// choice returns a string criterion restricted to allowed values.
func (c criteria) choice(name, def string, allowed ...string) (string, error) {
	s, err := c.stringField(name, def)
	if err != nil {
		return "", err
	}
	for _, a := range allowed {
		if s == a {
			return s, nil
		}
	}
	cr := c[name]
	return "", at(criteriaErrorf("%s must be one of %v, got %q", name, allowed, s), cr.span)
}
