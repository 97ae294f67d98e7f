package document

import "strings"

// KeyTuple is a canonical, ordered tuple of values projected from a
// document onto an index's field list. It implements a total order
// consistent across processes: numbers compare by value, strings by
// codepoint, and the null sentinel sorts below all realized values
// (see spec.md §4.2, §9).
type KeyTuple []Value

// Compare orders two key tuples lexicographically.
func (k KeyTuple) Compare(other KeyTuple) int {
	for i := 0; i < len(k) && i < len(other); i++ {
		if c := Compare(k[i], other[i]); c != 0 {
			return c
		}
	}
	return len(k) - len(other)
}

// HasPrefix reports whether k begins with prefix (used for composite-index
// prefix scans).
func (k KeyTuple) HasPrefix(prefix KeyTuple) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if Compare(k[i], prefix[i]) != 0 {
			return false
		}
	}
	return true
}

// String renders a human-readable form, used as a map key for the
// in-memory ordered index structures (see pkg/index).
func (k KeyTuple) String() string {
	parts := make([]string, len(k))
	for i, v := range k {
		parts[i] = v.String()
	}
	return strings.Join(parts, "\x1f")
}

// ProjectOne projects a single field path to its key tuple fan-out: one
// KeyTuple per realized/exploded value (see Realized). For a single-field
// index this is the direct fan-out; composite indexes combine per-field
// fan-outs via ProjectComposite.
func ProjectOne(doc Value, path Path) []KeyTuple {
	vals := Realized(doc, path)
	out := make([]KeyTuple, len(vals))
	for i, v := range vals {
		out[i] = KeyTuple{v}
	}
	return out
}

// ProjectComposite projects a document onto an ordered list of field paths,
// producing the cartesian fan-out across fields that each explode into
// multiple values (arrays). Most documents yield exactly one tuple.
func ProjectComposite(doc Value, paths []Path) []KeyTuple {
	fanouts := make([][]Value, len(paths))
	for i, p := range paths {
		fanouts[i] = Realized(doc, p)
	}
	tuples := []KeyTuple{{}}
	for _, fan := range fanouts {
		var next []KeyTuple
		for _, t := range tuples {
			for _, v := range fan {
				nt := make(KeyTuple, len(t)+1)
				copy(nt, t)
				nt[len(t)] = v
				next = append(next, nt)
			}
		}
		tuples = next
	}
	return tuples
}
