// Package evaluator implements the oscript runtime evaluator.
package evaluator

import "strconv"

// Value is the interface for all oscript runtime values.
// The sealed marker method restricts implementations to this package.
type Value interface {
	value() // sealed marker
}

// String is a string value.
type String struct {
	Value string
}

func (String) value() {}

// Number is an IEEE-754 double.
type Number struct {
	Value float64
}

func (Number) value() {}

// Bool is a boolean value.
type Bool struct {
	Value bool
}

func (Bool) value() {}

// KeyValue is a key-value pair in an ordered object.
type KeyValue struct {
	Key   string
	Value Value
}

// Object is an ordered mapping of string keys to values. Arrays are objects
// with Array set and keys "0".."n-1".
type Object struct {
	Pairs []KeyValue
	Array bool
	index map[string]int
}

func (Object) value() {}

// NewString creates a string value.
func NewString(s string) Value {
	return String{Value: s}
}

// NewNumber creates a numeric value. Negative zero is folded into zero.
func NewNumber(n float64) Value {
	if n == 0 {
		n = 0
	}
	return Number{Value: n}
}

// NewBool creates a boolean value.
func NewBool(b bool) Value {
	return Bool{Value: b}
}

// NewObject creates an object from key-value pairs. Later duplicates of a
// key overwrite earlier ones in place.
func NewObject(pairs []KeyValue) Value {
	idx := make(map[string]int, len(pairs))
	out := make([]KeyValue, 0, len(pairs))
	for _, kv := range pairs {
		if i, ok := idx[kv.Key]; ok {
			out[i].Value = kv.Value
			continue
		}
		idx[kv.Key] = len(out)
		out = append(out, kv)
	}
	return Object{Pairs: out, index: idx}
}

// NewArray creates an array value.
func NewArray(items []Value) Value {
	pairs := make([]KeyValue, len(items))
	idx := make(map[string]int, len(items))
	for i, item := range items {
		key := strconv.Itoa(i)
		pairs[i] = KeyValue{Key: key, Value: item}
		idx[key] = i
	}
	return Object{Pairs: pairs, Array: true, index: idx}
}

// Get retrieves a value by key.
func (o Object) Get(key string) (Value, bool) {
	if o.index != nil {
		i, ok := o.index[key]
		if !ok {
			return nil, false
		}
		return o.Pairs[i].Value, true
	}
	for _, kv := range o.Pairs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// Len returns the number of entries.
func (o Object) Len() int {
	return len(o.Pairs)
}

// Keys returns all keys in insertion order.
func (o Object) Keys() []string {
	keys := make([]string, len(o.Pairs))
	for i, kv := range o.Pairs {
		keys[i] = kv.Key
	}
	return keys
}

// Items returns the values of an object in key order.
func (o Object) Items() []Value {
	items := make([]Value, len(o.Pairs))
	for i, kv := range o.Pairs {
		items[i] = kv.Value
	}
	return items
}

// TypeName returns the oscript type name of a value.
func TypeName(v Value) string {
	switch v.(type) {
	case String:
		return "string"
	case Number:
		return "number"
	case Bool:
		return "boolean"
	case Object:
		return "object"
	}
	return "unknown"
}

// Truthy returns the boolean interpretation of a value.
// false, 0, and "" are falsy; everything else is truthy.
func Truthy(v Value) bool {
	switch val := v.(type) {
	case Bool:
		return val.Value
	case Number:
		return val.Value != 0
	case String:
		return val.Value != ""
	case nil:
		return false
	default:
		return true
	}
}

// Scalar converts a value to the form state and response variables hold:
// objects become true.
func Scalar(v Value) Value {
	if _, ok := v.(Object); ok {
		return NewBool(true)
	}
	if v == nil {
		return NewBool(false)
	}
	return v
}
