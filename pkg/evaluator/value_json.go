package evaluator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
)

// ValueToJSON marshals a Value to JSON bytes.
// Objects preserve key order and arrays are emitted as JSON arrays.
func ValueToJSON(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v, false); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ValueToJSONString is a convenience that returns a string.
func ValueToJSONString(v Value) string {
	b, err := ValueToJSON(v)
	if err != nil {
		return "false"
	}
	return string(b)
}

// CanonicalJSON renders a value with object keys sorted, the form used for
// object equality and json_stringify.
func CanonicalJSON(v Value) string {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v, true); err != nil {
		return ""
	}
	return buf.String()
}

func writeJSON(buf *bytes.Buffer, v Value, sorted bool) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("false")
	case Bool:
		buf.WriteString(strconv.FormatBool(val.Value))
	case Number:
		if math.IsNaN(val.Value) || math.IsInf(val.Value, 0) {
			return fmt.Errorf("cannot encode non-finite number")
		}
		buf.WriteString(FormatNumber(val.Value))
	case String:
		b, err := json.Marshal(val.Value)
		if err != nil {
			return err
		}
		buf.Write(b)
	case Object:
		if val.Array {
			buf.WriteByte('[')
			for i, kv := range val.Pairs {
				if i > 0 {
					buf.WriteByte(',')
				}
				if err := writeJSON(buf, kv.Value, sorted); err != nil {
					return err
				}
			}
			buf.WriteByte(']')
			return nil
		}
		pairs := val.Pairs
		if sorted {
			pairs = append([]KeyValue(nil), pairs...)
			sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
		}
		buf.WriteByte('{')
		for i, kv := range pairs {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(kv.Key)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeJSON(buf, kv.Value, sorted); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("cannot encode %T", v)
	}
	return nil
}

// ParseJSONToValue converts a JSON document to a Value, keeping object key
// order. JSON null becomes false.
func ParseJSONToValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case nil:
		return NewBool(false), nil
	case bool:
		return NewBool(t), nil
	case string:
		return NewString(t), nil
	case json.Number:
		f, err := strconv.ParseFloat(t.String(), 64)
		if err != nil || math.IsInf(f, 0) {
			return nil, fmt.Errorf("number %s out of range", t)
		}
		return NewNumber(f), nil
	case json.Delim:
		switch t {
		case '[':
			var items []Value
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return NewArray(items), nil
		case '{':
			var pairs []KeyValue
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key must be a string")
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				pairs = append(pairs, KeyValue{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return NewObject(pairs), nil
		}
	}
	return nil, fmt.Errorf("unexpected JSON token %v", tok)
}
