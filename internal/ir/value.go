package ir

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"
	"unicode/utf16"

	"github.com/cockroachdb/errors"
)

// IRValue is a sealed interface over the value types a row or an argument
// list may carry. Floats and null are not representable.
type IRValue interface {
	irValue()
}

// IRString is a text value.
type IRString string

func (IRString) irValue() {}

// IRInt is an integer value. Unsigned column values are stored as IRInt and
// range-checked against the column type at the boundary.
type IRInt int64

func (IRInt) irValue() {}

// IRBool is a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRObject maps field names to values. It is used for both argument lists
// and table rows. Iterate with SortedKeys for deterministic order.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// Clone returns a shallow copy of obj. Nested objects are shared.
func (obj IRObject) Clone() IRObject {
	out := make(IRObject, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	return out
}

// SortedKeys returns keys ordered by UTF-16 code units (RFC 8785).
// This differs from sort.Strings for characters outside the BMP.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// MarshalJSON writes the object with RFC 8785 key order. It is not the
// hashing form; use MarshalCanonical for ids.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal key %q", k)
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := MarshalIRValue(obj[k])
		if err != nil {
			return nil, errors.Wrapf(err, "marshal value for key %q", k)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object, rejecting floats and null.
func (obj *IRObject) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalIRValue(data)
	if err != nil {
		return err
	}
	o, ok := v.(IRObject)
	if !ok {
		return errors.Newf("expected JSON object, got %T", v)
	}
	*obj = o
	return nil
}

// MarshalIRValue encodes a single value as plain JSON.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case IRString:
		return json.Marshal(string(val))
	case IRInt:
		return json.Marshal(int64(val))
	case IRBool:
		return json.Marshal(bool(val))
	case IRObject:
		return val.MarshalJSON()
	default:
		return nil, errors.Newf("unknown IRValue type: %T", v)
	}
}

// UnmarshalIRValue decodes JSON into an IRValue. Numbers must be integers
// within int64; null and arrays are rejected.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode JSON")
	}
	return FromGo(raw)
}

// FromGo converts a decoded JSON or YAML value into an IRValue.
// Whole-number float64 values (as produced by some YAML decoders) are
// accepted as integers.
func FromGo(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return nil, errors.New("null is not a valid value")
	case IRValue:
		return val, nil
	case string:
		return IRString(val), nil
	case bool:
		return IRBool(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case uint32:
		return IRInt(val), nil
	case uint64:
		if val > 1<<63-1 {
			return nil, errors.Newf("integer out of range: %d", val)
		}
		return IRInt(val), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, errors.Newf("floats are not allowed: %s", s)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, errors.Newf("integer out of range: %s", s)
		}
		return IRInt(n), nil
	case float64:
		if val != float64(int64(val)) {
			return nil, errors.Newf("floats are not allowed: %v", val)
		}
		return IRInt(int64(val)), nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, errors.Wrapf(err, "field %q", k)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, errors.Newf("unsupported type: %T", v)
	}
}

// ObjectFromGo converts a generic map into an IRObject. A nil map yields an
// empty object.
func ObjectFromGo(m map[string]any) (IRObject, error) {
	if m == nil {
		return IRObject{}, nil
	}
	v, err := FromGo(m)
	if err != nil {
		return nil, err
	}
	return v.(IRObject), nil
}

// ToGo converts an IRValue back to plain Go values (string, int64, bool,
// map[string]any). Used for expression environments and YAML comparison.
func ToGo(v IRValue) any {
	switch val := v.(type) {
	case IRString:
		return string(val)
	case IRInt:
		return int64(val)
	case IRBool:
		return bool(val)
	case IRObject:
		m := make(map[string]any, len(val))
		for k, elem := range val {
			m[k] = ToGo(elem)
		}
		return m
	default:
		return nil
	}
}
