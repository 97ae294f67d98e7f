// Package document implements OxiDB's dynamically typed value model: a
// self-describing tree of null, boolean, number, string, array and
// string-keyed map values, with a total order defined within each kind and
// a canonical key-tuple form used by the index engine.
package document

import (
	"fmt"
	"sort"
	"strings"
)

// Kind identifies the variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a tagged-variant JSON-like value. Exactly one of the typed
// fields is meaningful, selected by Kind.
type Value struct {
	Kind Kind
	B    bool
	N    float64
	S    string
	A    []Value
	O    *Object
}

// Object is an ordered string-keyed map. Insertion order is preserved so
// that re-marshaling a document round-trips field order, matching the
// behavior callers expect from a "self-describing" store.
type Object struct {
	keys   []string
	values map[string]Value
}

// NewObject returns an empty ordered object.
func NewObject() *Object {
	return &Object{values: make(map[string]Value)}
}

// Get returns the value for key and whether it was present.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Null(), false
	}
	v, ok := o.values[key]
	return v, ok
}

// Set inserts or overwrites key, preserving original insertion order on update.
func (o *Object) Set(key string, v Value) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Delete removes key if present.
func (o *Object) Delete(key string) {
	if _, ok := o.values[key]; !ok {
		return
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Len returns the number of fields.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Clone produces a deep copy.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	clone := NewObject()
	for _, k := range o.keys {
		clone.Set(k, o.values[k].Clone())
	}
	return clone
}

// Constructors.

func Null() Value                 { return Value{Kind: KindNull} }
func Bool(b bool) Value           { return Value{Kind: KindBool, B: b} }
func Number(n float64) Value      { return Value{Kind: KindNumber, N: n} }
func String(s string) Value       { return Value{Kind: KindString, S: s} }
func Array(items []Value) Value   { return Value{Kind: KindArray, A: items} }
func ObjectValue(o *Object) Value { return Value{Kind: KindObject, O: o} }

// IsNull reports whether v is the null value (or the zero Value).
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Clone produces a deep copy of v.
func (v Value) Clone() Value {
	switch v.Kind {
	case KindArray:
		items := make([]Value, len(v.A))
		for i, e := range v.A {
			items[i] = e.Clone()
		}
		return Array(items)
	case KindObject:
		return ObjectValue(v.O.Clone())
	default:
		return v
	}
}

// Equal reports structural equality (used by $eq / array-membership matching).
func Equal(a, b Value) bool {
	return Compare(a, b) == 0 && a.Kind == b.Kind
}

// Compare defines a total order within each kind: Null < Bool < Number <
// String < Array < Object, and within a kind, value comparison. Cross-kind
// comparisons still return a deterministic order (by Kind) so sort/ordered
// index structures work, but range-operator semantics treat cross-kind
// comparisons as non-matching (see query package).
func Compare(a, b Value) int {
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	switch a.Kind {
	case KindNull:
		return 0
	case KindBool:
		if a.B == b.B {
			return 0
		}
		if !a.B {
			return -1
		}
		return 1
	case KindNumber:
		switch {
		case a.N < b.N:
			return -1
		case a.N > b.N:
			return 1
		default:
			return 0
		}
	case KindString:
		return strings.Compare(a.S, b.S)
	case KindArray:
		for i := 0; i < len(a.A) && i < len(b.A); i++ {
			if c := Compare(a.A[i], b.A[i]); c != 0 {
				return c
			}
		}
		return len(a.A) - len(b.A)
	case KindObject:
		ak, bk := a.O.Keys(), b.O.Keys()
		sort.Strings(ak)
		sort.Strings(bk)
		for i := 0; i < len(ak) && i < len(bk); i++ {
			if c := strings.Compare(ak[i], bk[i]); c != 0 {
				return c
			}
			av, _ := a.O.Get(ak[i])
			bv, _ := b.O.Get(bk[i])
			if c := Compare(av, bv); c != 0 {
				return c
			}
		}
		return len(ak) - len(bk)
	}
	return 0
}

// String renders a debug representation (not the wire JSON form).
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.B)
	case KindNumber:
		return fmt.Sprintf("%g", v.N)
	case KindString:
		return fmt.Sprintf("%q", v.S)
	case KindArray:
		parts := make([]string, len(v.A))
		for i, e := range v.A {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ",") + "]"
	case KindObject:
		parts := make([]string, 0, v.O.Len())
		for _, k := range v.O.Keys() {
			e, _ := v.O.Get(k)
			parts = append(parts, fmt.Sprintf("%q:%s", k, e.String()))
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return "?"
	}
}
