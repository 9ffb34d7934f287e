// Package oplog implements the append-only operation log that records
// every mutation accepted by the dictionary's client server.
package oplog

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the logical effect of an Operation on the dictionary.
type Kind int

const (
	// Insert records a key that did not previously exist.
	Insert Kind = iota
	// Update records a key that already had a value, carrying the prior
	// value when the writer observed it.
	Update
	// Delete records a key being removed.
	Delete
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "Insert"
	case Update:
		return "Update"
	case Delete:
		return "Delete"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Key is a tagged union over the two key representations the log format
// supports. The client wire protocol only ever produces string keys;
// numeric keys exist for future API extensions (spec Open Question c).
type Key struct {
	numeric   int32
	str       string
	isNumeric bool
}

// StringKey builds a Key from a string.
func StringKey(s string) Key { return Key{str: s} }

// NumericKey builds a Key from a signed 32-bit integer.
func NumericKey(n int32) Key { return Key{numeric: n, isNumeric: true} }

// IsNumeric reports whether the key is the numeric variant.
func (k Key) IsNumeric() bool { return k.isNumeric }

// String returns the key's string representation regardless of variant,
// for display and JSON encoding.
func (k Key) String() string {
	if k.isNumeric {
		return fmt.Sprintf("%d", k.numeric)
	}
	return k.str
}

// MarshalJSON renders a Key as its string form; the numeric/string
// distinction is not observable over the wire protocol today, so JSON
// consumers (the diagnostics endpoint, the shipper) see a plain string.
func (k Key) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", k.String())), nil
}

// ValueKind tags the variant carried by a Value.
type ValueKind int

const (
	NumericValue ValueKind = iota
	StringValue
	BooleanValue
	MapValue
	SliceValue
)

// Value is a recursive tagged union mirroring the log's value model:
// numeric, string, boolean, nested mapping, or ordered sequence.
type Value struct {
	kind    ValueKind
	number  int32
	text    string
	boolean bool
	mapping map[string]Value
	items   []Value
}

// NewStringValue builds a string-valued Value. This is the only variant
// the client wire protocol can ever produce; the others exist for
// non-wire producers of log entries.
func NewStringValue(s string) Value { return Value{kind: StringValue, text: s} }

// NewNumericValue builds a numeric-valued Value.
func NewNumericValue(n int32) Value { return Value{kind: NumericValue, number: n} }

// NewBooleanValue builds a boolean-valued Value.
func NewBooleanValue(b bool) Value { return Value{kind: BooleanValue, boolean: b} }

// NewMapValue builds a nested-mapping Value.
func NewMapValue(m map[string]Value) Value { return Value{kind: MapValue, mapping: m} }

// NewSliceValue builds an ordered-sequence Value.
func NewSliceValue(items []Value) Value { return Value{kind: SliceValue, items: items} }

// Kind reports the variant carried by v.
func (v Value) Kind() ValueKind { return v.kind }

// String renders v for display; for the wire protocol's only producible
// variant (StringValue) this is exact.
func (v Value) String() string {
	switch v.kind {
	case StringValue:
		return v.text
	case NumericValue:
		return fmt.Sprintf("%d", v.number)
	case BooleanValue:
		return fmt.Sprintf("%t", v.boolean)
	case MapValue:
		return fmt.Sprintf("%v", v.asInterface())
	case SliceValue:
		return fmt.Sprintf("%v", v.asInterface())
	default:
		return ""
	}
}

func (v Value) asInterface() interface{} {
	switch v.kind {
	case NumericValue:
		return v.number
	case StringValue:
		return v.text
	case BooleanValue:
		return v.boolean
	case MapValue:
		out := make(map[string]interface{}, len(v.mapping))
		for k, val := range v.mapping {
			out[k] = val.asInterface()
		}
		return out
	case SliceValue:
		out := make([]interface{}, len(v.items))
		for i, val := range v.items {
			out[i] = val.asInterface()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON encodes a Value as its underlying Go representation, so
// callers (diagnostics endpoint, shipper) get ordinary JSON scalars,
// objects, and arrays without a discriminator wrapper.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.asInterface())
}
