package evaluator

import (
	"bytes"
	"encoding/json"
)

// ResponseVars is the write-only bag of response variables. Keys keep their
// first assignment order; values are scalars.
type ResponseVars struct {
	pairs []KeyValue
	index map[string]int
}

// NewResponseVars creates an empty bag.
func NewResponseVars() *ResponseVars {
	return &ResponseVars{index: make(map[string]int)}
}

// Set assigns a response variable, overwriting in place. Objects are stored
// as true.
func (r *ResponseVars) Set(key string, val Value) {
	val = Scalar(val)
	if i, ok := r.index[key]; ok {
		r.pairs[i].Value = val
		return
	}
	r.index[key] = len(r.pairs)
	r.pairs = append(r.pairs, KeyValue{Key: key, Value: val})
}

// Get returns a response variable. Scripts cannot read responses; this is
// for hosts and tests.
func (r *ResponseVars) Get(key string) (Value, bool) {
	i, ok := r.index[key]
	if !ok {
		return nil, false
	}
	return r.pairs[i].Value, true
}

// Len returns the number of response variables.
func (r *ResponseVars) Len() int {
	return len(r.pairs)
}

// Pairs returns the variables in assignment order.
func (r *ResponseVars) Pairs() []KeyValue {
	return append([]KeyValue(nil), r.pairs...)
}

// MarshalJSON renders {"responseVars": {...}}.
func (r *ResponseVars) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"responseVars":`)
	if err := writeJSON(&buf, Object{Pairs: r.pairs}, false); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

var _ json.Marshaler = (*ResponseVars)(nil)
