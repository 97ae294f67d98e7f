package document

import (
	"strconv"
	"strings"
)

// Path is a parsed dotted field path ("a.b.c"); numeric segments address
// array indices.
type Path []string

// ParsePath splits a dotted path string into segments.
func ParsePath(s string) Path {
	return strings.Split(s, ".")
}

// String renders the path back to dotted form.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Get descends v following path, returning (value, true) if every segment
// resolves, or (Null, false) otherwise. A missing object field or
// out-of-range array index is a miss, not an error.
func Get(v Value, path Path) (Value, bool) {
	cur := v
	for _, seg := range path {
		switch cur.Kind {
		case KindObject:
			next, ok := cur.O.Get(seg)
			if !ok {
				return Null(), false
			}
			cur = next
		case KindArray:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(cur.A) {
				return Null(), false
			}
			cur = cur.A[idx]
		default:
			return Null(), false
		}
	}
	return cur, true
}

// Realized returns every value reachable at path, exploding arrays
// encountered along the way (per spec §3 invariant 2: indexing an
// array-valued field inserts one entry per element). If any segment is
// missing, the sentinel NullKey value is returned as the sole result.
func Realized(v Value, path Path) []Value {
	vals := []Value{v}
	for _, seg := range path {
		var next []Value
		for _, cur := range vals {
			switch cur.Kind {
			case KindObject:
				if f, ok := cur.O.Get(seg); ok {
					next = append(next, f)
				}
			case KindArray:
				if idx, err := strconv.Atoi(seg); err == nil {
					if idx >= 0 && idx < len(cur.A) {
						next = append(next, cur.A[idx])
					}
				} else {
					// Non-numeric segment on an array: descend into each element.
					for _, e := range cur.A {
						if e.Kind == KindObject {
							if f, ok := e.O.Get(seg); ok {
								next = append(next, f)
							}
						}
					}
				}
			}
		}
		vals = next
		if len(vals) == 0 {
			return []Value{NullKey()}
		}
	}
	// Explode any array results at the leaf.
	var out []Value
	for _, v := range vals {
		if v.Kind == KindArray {
			out = append(out, v.A...)
		} else {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return []Value{NullKey()}
	}
	return out
}

// NullKey is the sentinel used by the index engine for a missing field; it
// sorts below all realized values (see Compare: Kind order already puts
// KindNull first, and NullKey is simply Null()).
func NullKey() Value { return Null() }

// Set deep-sets path to value, creating intermediate objects as needed.
// Numeric path segments on a missing container create an object, not an
// array (arrays are only descended into when they already exist).
func Set(v Value, path Path, val Value) Value {
	if len(path) == 0 {
		return val
	}
	seg := path[0]
	rest := path[1:]

	if idx, err := strconv.Atoi(seg); err == nil && v.Kind == KindArray {
		arr := append([]Value(nil), v.A...)
		for len(arr) <= idx {
			arr = append(arr, Null())
		}
		if len(rest) == 0 {
			arr[idx] = val
		} else {
			arr[idx] = Set(arr[idx], rest, val)
		}
		return Array(arr)
	}

	obj := NewObject()
	if v.Kind == KindObject {
		obj = v.O.Clone()
	}
	cur, _ := obj.Get(seg)
	if len(rest) == 0 {
		obj.Set(seg, val)
	} else {
		obj.Set(seg, Set(cur, rest, val))
	}
	return ObjectValue(obj)
}

// Unset deep-removes path, leaving intermediate containers in place.
func Unset(v Value, path Path) Value {
	if len(path) == 0 || v.Kind != KindObject {
		return v
	}
	seg := path[0]
	rest := path[1:]
	obj := v.O.Clone()
	if len(rest) == 0 {
		obj.Delete(seg)
		return ObjectValue(obj)
	}
	cur, ok := obj.Get(seg)
	if !ok {
		return v
	}
	obj.Set(seg, Unset(cur, rest))
	return ObjectValue(obj)
}
