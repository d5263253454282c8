package evaluator

import (
	"encoding/base64"
	"math"
	"strconv"

	"lukechampine.com/uint128"

	"github.com/thomasrohde/oscript/pkg/ast"
	"github.com/thomasrohde/oscript/pkg/ledger"
)

// maxSafeAmount is the largest integer a float64 represents exactly.
const maxSafeAmount = 1 << 53

// AssetFields lists the fields asset[...] exposes.
var AssetFields = map[string]bool{
	"exists":                 true,
	"cap":                    true,
	"is_private":             true,
	"is_transferrable":       true,
	"auto_destroy":           true,
	"fixed_denominations":    true,
	"issued_by_definer_only": true,
	"cosigned_by_definer":    true,
	"spender_attested":       true,
	"is_issued":              true,
	"definer_address":        true,
}

// IsValidAssetID reports whether id is "base" or the base64 form of a
// 32-byte hash.
func IsValidAssetID(id string) bool {
	if id == ledger.BaseAsset {
		return true
	}
	if len(id) != 44 {
		return false
	}
	b, err := base64.StdEncoding.DecodeString(id)
	return err == nil && len(b) == 32
}

func assetOf(asset string) string {
	if asset == "" {
		return ledger.BaseAsset
	}
	return asset
}

// amountSum accumulates amounts in 128 bits and rejects totals that do not
// fit a float64 exactly.
type amountSum struct {
	total uint128.Uint128
}

func (s *amountSum) add(amount int64) error {
	if amount < 0 {
		return typeErrorf("negative amount %d", amount)
	}
	next := s.total.AddWrap(uint128.From64(uint64(amount)))
	if next.Cmp(s.total) < 0 {
		return typeErrorf("amount overflow")
	}
	s.total = next
	return nil
}

func (s *amountSum) value() (Value, error) {
	if s.total.Hi != 0 || s.total.Lo > maxSafeAmount {
		return nil, typeErrorf("amount %s exceeds the representable range", s.total.String())
	}
	return NewNumber(float64(s.total.Lo)), nil
}

func (ev *evaluator) triggerAvailable(span ast.Span) error {
	if ev.ec.Mode == ModeFormula {
		return at(modeErrorf("trigger is not available in formula mode"), span)
	}
	return nil
}

func (ev *evaluator) evalTriggerField(e *ast.TriggerField) (Value, error) {
	if err := ev.triggerAvailable(e.Span); err != nil {
		return nil, err
	}
	t := ev.ec.Trigger
	switch e.Field {
	case "address":
		return NewString(t.Address), nil
	case "initial_address":
		if t.InitialAddress == "" {
			return NewString(t.Address), nil
		}
		return NewString(t.InitialAddress), nil
	case "unit":
		return NewString(t.Unit), nil
	case "data":
		if ev.data == nil {
			if len(t.Data) == 0 {
				ev.data = NewBool(false)
			} else {
				v, err := ParseJSONToValue(t.Data)
				if err != nil {
					return nil, at(typeErrorf("trigger data is not valid JSON: %v", err), e.Span)
				}
				ev.data = v
			}
		}
		return ev.data, nil
	}
	return nil, at(typeErrorf("unknown trigger field %s", e.Field), e.Span)
}

// evalTriggerOutput sums trigger outputs to this AA, grouped by asset.
func (ev *evaluator) evalTriggerOutput(e *ast.TriggerOutput) (Value, error) {
	if err := ev.triggerAvailable(e.Span); err != nil {
		return nil, err
	}
	crit, err := ev.evalCriteria(SearchTriggerOutput, e.Criteria, e.Span)
	if err != nil {
		return nil, err
	}
	assetCrit := crit["asset"]
	want, err := ToString(assetCrit.value)
	if err != nil {
		return nil, at(err, assetCrit.span)
	}

	var order []string
	sums := make(map[string]*amountSum)
	for _, o := range ev.ec.Trigger.Outputs {
		if o.Address != "" && o.Address != ev.ec.ThisAddress {
			continue
		}
		asset := assetOf(o.Asset)
		if (asset == want) != (assetCrit.op == "=") {
			continue
		}
		s, ok := sums[asset]
		if !ok {
			s = &amountSum{}
			sums[asset] = s
			order = append(order, asset)
		}
		if err := s.add(o.Amount); err != nil {
			return nil, at(err, e.Span)
		}
	}

	switch len(order) {
	case 0:
		if e.Field == "asset" {
			return NewString("none"), nil
		}
		return NewNumber(0), nil
	case 1:
		if e.Field == "asset" {
			return NewString(order[0]), nil
		}
		v, err := sums[order[0]].value()
		if err != nil {
			return nil, at(err, e.Span)
		}
		return v, nil
	}
	if e.Field == "asset" {
		return NewString("ambiguous"), nil
	}
	return nil, at(ambiguousf("trigger has outputs in %d assets matching asset%s%s", len(order), assetCrit.op, want), e.Span)
}

func (ev *evaluator) evalUnitIO(e *ast.UnitIO) (Value, error) {
	kind := SearchInput
	if e.Output {
		kind = SearchOutput
	}
	if ev.ec.Mode != ModeFormula {
		return nil, at(modeErrorf("%s[[...]] is available only in formula mode", kind), e.Span)
	}
	crit, err := ev.evalCriteria(kind, e.Criteria, e.Span)
	if err != nil {
		return nil, err
	}
	if ev.ec.Unit == nil {
		return nil, at(notFoundf("no unit is attached to the formula"), e.Span)
	}

	type io struct {
		address, asset string
		amount         int64
	}
	var rows []io
	if e.Output {
		for _, o := range ev.ec.Unit.Outputs {
			rows = append(rows, io{o.Address, assetOf(o.Asset), o.Amount})
		}
	} else {
		for _, in := range ev.ec.Unit.Inputs {
			rows = append(rows, io{in.Address, assetOf(in.Asset), in.Amount})
		}
	}

	var matches []io
	for _, r := range rows {
		ok, err := matchIO(crit, r.address, r.asset, r.amount)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, r)
		}
	}
	switch {
	case len(matches) == 0:
		return nil, at(notFoundf("no %s matches the search", kind), e.Span)
	case len(matches) > 1:
		return nil, at(ambiguousf("%d %ss match the search", len(matches), kind), e.Span)
	}
	m := matches[0]
	switch e.Field {
	case "address":
		return NewString(m.address), nil
	case "asset":
		return NewString(m.asset), nil
	}
	var sum amountSum
	if err := sum.add(m.amount); err != nil {
		return nil, at(err, e.Span)
	}
	v, err := sum.value()
	if err != nil {
		return nil, at(err, e.Span)
	}
	return v, nil
}

func matchIO(crit criteria, address, asset string, amount int64) (bool, error) {
	for field, c := range crit {
		switch field {
		case "address", "asset":
			want, err := ToString(c.value)
			if err != nil {
				return false, at(err, c.span)
			}
			got := address
			if field == "asset" {
				got = asset
			}
			if (got == want) != (c.op == "=") {
				return false, nil
			}
		case "amount":
			want, err := ToNumber(c.value)
			if err != nil {
				return false, at(err, c.span)
			}
			if !ordered(criterionOp(c.op), cmpFloat(float64(amount), want)) {
				return false, nil
			}
		}
	}
	return true, nil
}

func (ev *evaluator) evalAsset(e *ast.AssetInfo) (Value, error) {
	id, err := ev.evalString(e.Asset)
	if err != nil {
		return nil, err
	}
	field, err := ev.evalString(e.Field)
	if err != nil {
		return nil, err
	}
	if !AssetFields[field] {
		return nil, at(typeErrorf("unknown asset field '%s'", field), e.Field.NodeSpan())
	}
	if err := ev.charge(OpAsset, e.Span); err != nil {
		return nil, err
	}
	if !IsValidAssetID(id) {
		return NewBool(false), nil
	}
	if ev.ec.Ledger == nil {
		return nil, at(modeErrorf("no ledger is attached"), e.Span)
	}
	info, ok, err := ev.ec.Ledger.Asset(ev.ctx, id)
	if err != nil {
		return nil, at(ledgerError(err), e.Span)
	}
	ev.emit(TraceLookup, &e.Span, map[string]string{"kind": "asset", "asset": id, "found": strconv.FormatBool(ok)})
	if !ok {
		return NewBool(false), nil
	}
	return assetField(info, field), nil
}

func assetField(info ledger.AssetInfo, field string) Value {
	switch field {
	case "exists":
		return NewBool(true)
	case "cap":
		if info.Cap <= 0 || math.IsInf(info.Cap, 0) {
			return NewBool(false)
		}
		return NewNumber(info.Cap)
	case "is_private":
		return NewBool(info.IsPrivate)
	case "is_transferrable":
		return NewBool(info.IsTransferrable)
	case "auto_destroy":
		return NewBool(info.AutoDestroy)
	case "fixed_denominations":
		return NewBool(info.FixedDenominations)
	case "issued_by_definer_only":
		return NewBool(info.IssuedByDefinerOnly)
	case "cosigned_by_definer":
		return NewBool(info.CosignedByDefiner)
	case "spender_attested":
		return NewBool(info.SpenderAttested)
	case "is_issued":
		return NewBool(info.IsIssued)
	case "definer_address":
		if info.DefinerAddress == "" {
			return NewBool(false)
		}
		return NewString(info.DefinerAddress)
	}
	return NewBool(false)
}

// evalBalance returns the ledger balance plus what the trigger sends to the
// address when it is the evaluating AA.
func (ev *evaluator) evalBalance(e *ast.Balance) (Value, error) {
	address := ev.ec.ThisAddress
	if e.Address != nil {
		a, err := ev.evalString(e.Address)
		if err != nil {
			return nil, err
		}
		address = a
	}
	asset, err := ev.evalString(e.Asset)
	if err != nil {
		return nil, err
	}
	if err := ev.charge(OpBalance, e.Span); err != nil {
		return nil, err
	}
	if ev.ec.Ledger == nil {
		return nil, at(modeErrorf("no ledger is attached"), e.Span)
	}
	bal, err := ev.ec.Ledger.Balance(ev.ctx, address, asset)
	if err != nil {
		return nil, at(ledgerError(err), e.Span)
	}

	var sum amountSum
	if err := sum.add(bal); err != nil {
		return nil, at(err, e.Span)
	}
	if address == ev.ec.ThisAddress && ev.ec.Mode != ModeFormula {
		for _, o := range ev.ec.Trigger.Outputs {
			if (o.Address == "" || o.Address == address) && assetOf(o.Asset) == asset {
				if err := sum.add(o.Amount); err != nil {
					return nil, at(err, e.Span)
				}
			}
		}
	}
	v, err := sum.value()
	if err != nil {
		return nil, at(err, e.Span)
	}
	return v, nil
}
