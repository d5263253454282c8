package evaluator

import (
	"math"
	"strconv"
	"strings"

	"github.com/thomasrohde/oscript/pkg/ast"
	"github.com/thomasrohde/oscript/pkg/ledger"
)

// splitAddresses splits a ':'-separated oracle or attestor list.
func splitAddresses(field, s string, span ast.Span) ([]string, error) {
	parts := strings.Split(s, ":")
	for _, p := range parts {
		if p == "" {
			return nil, at(criteriaErrorf("%s contains an empty address", field), span)
		}
	}
	return parts, nil
}

// matchStored compares a value stored on the ledger against a criterion.
// The comparison is numeric when both sides are numbers, textual otherwise.
func matchStored(stored string, c criterion) (bool, error) {
	var want string
	switch v := c.value.(type) {
	case Number:
		if !IsNumericString(stored) {
			return c.op == "!=", nil
		}
		n, _ := strconv.ParseFloat(stored, 64)
		return ordered(criterionOp(c.op), cmpFloat(n, v.Value)), nil
	case String:
		want = v.Value
	default:
		return false, at(typeErrorf("search value must be a string or number, got %s", TypeName(c.value)), c.span)
	}
	if IsNumericString(stored) && IsNumericString(want) {
		a, _ := strconv.ParseFloat(stored, 64)
		b, _ := strconv.ParseFloat(want, 64)
		return ordered(criterionOp(c.op), cmpFloat(a, b)), nil
	}
	return ordered(criterionOp(c.op), strings.Compare(stored, want)), nil
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func criterionOp(op string) ast.BinaryOp {
	if op == "=" {
		return ast.OpEqEq
	}
	return ast.BinaryOp(op)
}

// typedStored converts a stored string per the type criterion: auto turns
// numeric-looking strings into numbers.
func typedStored(s, typ string) Value {
	if typ == "auto" && IsNumericString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) {
			return NewNumber(f)
		}
	}
	return NewString(s)
}

func (ev *evaluator) evalDataFeed(e *ast.DataFeed) (Value, error) {
	kind, op := SearchDataFeed, OpDataFeed
	if e.In {
		kind, op = SearchInDataFeed, OpInDataFeed
	}
	crit, err := ev.evalCriteria(kind, e.Criteria, e.Span)
	if err != nil {
		return nil, err
	}
	if ev.ec.Ledger == nil {
		return nil, at(modeErrorf("no ledger is attached"), e.Span)
	}

	oraclesStr, err := crit.stringField("oracles", "")
	if err != nil {
		return nil, err
	}
	oracles, err := splitAddresses("oracles", oraclesStr, crit["oracles"].span)
	if err != nil {
		return nil, err
	}
	feedName, err := crit.stringField("feed_name", "")
	if err != nil {
		return nil, err
	}
	var minMCI int64
	if c, ok := crit["min_mci"]; ok {
		n, err := ToNumber(c.value)
		if err != nil || n < 0 || n != math.Trunc(n) {
			return nil, at(criteriaErrorf("min_mci must be a non-negative integer"), c.span)
		}
		minMCI = int64(n)
	}
	ifseveral, err := crit.choice("ifseveral", "last", "last", "abort")
	if err != nil {
		return nil, err
	}
	what, err := crit.choice("what", "value", "value", "unit")
	if err != nil {
		return nil, err
	}
	typ, err := crit.choice("type", "auto", "auto", "string")
	if err != nil {
		return nil, err
	}

	if err := ev.charge(op, e.Span); err != nil {
		return nil, err
	}
	// newest first
	postings, err := ev.ec.Ledger.DataFeeds(ev.ctx, ledger.FeedQuery{
		Oracles:  oracles,
		FeedName: feedName,
		MinMCI:   minMCI,
		MaxMCI:   ev.ec.MCI,
	})
	if err != nil {
		return nil, at(ledgerError(err), e.Span)
	}

	var matches []ledger.FeedPosting
	for _, p := range postings {
		if p.MCI > ev.ec.MCI || p.MCI < minMCI {
			continue
		}
		if c, ok := crit["feed_value"]; ok {
			hit, err := matchStored(p.Value, c)
			if err != nil {
				return nil, err
			}
			if !hit {
				continue
			}
		}
		matches = append(matches, p)
	}
	ev.emit(TraceLookup, &e.Span, map[string]string{
		"kind":    kind,
		"feed":    feedName,
		"matches": strconv.Itoa(len(matches)),
	})

	if e.In {
		return NewBool(len(matches) > 0), nil
	}
	if len(matches) == 0 {
		if c, ok := crit["ifnone"]; ok {
			return c.value, nil
		}
		return nil, at(notFoundf("data feed %s not found", feedName), e.Span)
	}
	if len(matches) > 1 && ifseveral == "abort" {
		return nil, at(ambiguousf("data feed %s has %d matching postings and ifseveral is abort", feedName, len(matches)), e.Span)
	}
	latest := matches[0]
	if what == "unit" {
		return NewString(latest.Unit), nil
	}
	return typedStored(latest.Value, typ), nil
}

func (ev *evaluator) evalAttestation(e *ast.Attestation) (Value, error) {
	crit, err := ev.evalCriteria(SearchAttestation, e.Criteria, e.Span)
	if err != nil {
		return nil, err
	}
	if ev.ec.Ledger == nil {
		return nil, at(modeErrorf("no ledger is attached"), e.Span)
	}
	attestorsStr, err := crit.stringField("attestors", "")
	if err != nil {
		return nil, err
	}
	attestors, err := splitAddresses("attestors", attestorsStr, crit["attestors"].span)
	if err != nil {
		return nil, err
	}
	address, err := crit.stringField("address", "")
	if err != nil {
		return nil, err
	}
	ifseveral, err := crit.choice("ifseveral", "last", "last", "abort")
	if err != nil {
		return nil, err
	}
	typ, err := crit.choice("type", "auto", "auto", "string")
	if err != nil {
		return nil, err
	}
	field := ""
	if e.Field != nil {
		field, err = ev.evalString(e.Field)
		if err != nil {
			return nil, err
		}
	}

	if err := ev.charge(OpAttestation, e.Span); err != nil {
		return nil, err
	}
	rows, err := ev.ec.Ledger.Attestations(ev.ctx, ledger.AttestationQuery{
		Attestors: attestors,
		Address:   address,
		MaxMCI:    ev.ec.MCI,
	})
	if err != nil {
		return nil, at(ledgerError(err), e.Span)
	}

	var matches []ledger.Attestation
	for _, a := range rows {
		if a.MCI > ev.ec.MCI {
			continue
		}
		if field != "" {
			if _, ok := a.Fields[field]; !ok {
				continue
			}
		}
		matches = append(matches, a)
	}
	ev.emit(TraceLookup, &e.Span, map[string]string{
		"kind":    SearchAttestation,
		"address": address,
		"matches": strconv.Itoa(len(matches)),
	})

	if len(matches) == 0 {
		if c, ok := crit["ifnone"]; ok {
			return c.value, nil
		}
		return NewBool(false), nil
	}
	if len(matches) > 1 && ifseveral == "abort" {
		return nil, at(ambiguousf("%d attestations of %s match and ifseveral is abort", len(matches), address), e.Span)
	}
	if field == "" {
		return NewBool(true), nil
	}
	return typedStored(matches[0].Fields[field], typ), nil
}
