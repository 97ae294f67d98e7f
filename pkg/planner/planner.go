// Package planner picks an access path for a filter document against a
// collection's index catalog: it splits the filter into per-field
// constraints, scores each index that can serve one of them, and falls
// back to a full scan when nothing qualifies.
package planner

import (
	"sort"

	"github.com/oxidb/oxidb/pkg/document"
	"github.com/oxidb/oxidb/pkg/index"
)

// Access names the shape of an access path chosen for one constraint.
type Access string

const (
	AccessUniqueEquality Access = "unique_equality"
	AccessEquality       Access = "equality"
	AccessCompositeEq    Access = "composite_equality"
	AccessCompositeRange Access = "composite_prefix_range"
	AccessRange          Access = "range"
	AccessText           Access = "text"
	AccessScan           Access = "scan"
)

// rank orders access kinds by preference, highest first (spec §4.4 step 3).
var rank = map[Access]int{
	AccessUniqueEquality: 0,
	AccessEquality:       1,
	AccessCompositeEq:    2,
	AccessCompositeRange: 3,
	AccessRange:          4,
	AccessText:           5,
	AccessScan:           6,
}

// Constraint is one top-level field predicate extracted from the filter.
type Constraint struct {
	Path document.Path
	Cond document.Value // either a scalar (implicit equality) or an operator document
}

// Plan is the chosen access path plus the leftover filter to post-apply.
type Plan struct {
	Access     Access
	IndexName  string // empty for a full scan
	Constraint *Constraint
	PostFilter document.Value // original filter, always re-applied as a correctness backstop
}

// Catalog is the set of indexes available for one collection, keyed by name.
type Catalog map[string]*index.Index

// Plan selects an access path for filter given the collection's catalog.
// The returned Plan always carries the full original filter as PostFilter
// so callers never need to trust partial index coverage for correctness.
func Plan(filter document.Value, cat Catalog) Plan {
	constraints := splitConstraints(filter)
	if len(constraints) == 0 || len(cat) == 0 {
		return Plan{Access: AccessScan, PostFilter: filter}
	}

	type candidate struct {
		access     Access
		name       string
		constraint *Constraint
		estimate   float64
	}
	var candidates []candidate

	for _, c := range constraints {
		for name, idx := range cat {
			access, ok := accessFor(c, idx)
			if !ok {
				continue
			}
			candidates = append(candidates, candidate{
				access:     access,
				name:       name,
				constraint: c,
				estimate:   estimate(access, idx),
			})
		}
	}

	if len(candidates) == 0 {
		return Plan{Access: AccessScan, PostFilter: filter}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if rank[a.access] != rank[b.access] {
			return rank[a.access] < rank[b.access]
		}
		if a.estimate != b.estimate {
			return a.estimate < b.estimate
		}
		return a.name < b.name
	})

	best := candidates[0]
	return Plan{
		Access:     best.access,
		IndexName:  best.name,
		Constraint: best.constraint,
		PostFilter: filter,
	}
}

// splitConstraints flattens a top-level $and and collects one Constraint
// per plain field key; logical/operator-only keys ($or, $not, $text) are
// left for the post-filter since no index access path directly serves
// them as a leading constraint.
func splitConstraints(filter document.Value) []*Constraint {
	if filter.Kind != document.KindObject {
		return nil
	}
	var out []*Constraint
	for _, key := range filter.O.Keys() {
		val, _ := filter.O.Get(key)
		switch key {
		case "$and":
			if val.Kind == document.KindArray {
				for _, sub := range val.A {
					out = append(out, splitConstraints(sub)...)
				}
			}
		case "$or", "$not", "$text":
			// no single index serves these as a leading access path
		default:
			out = append(out, &Constraint{Path: document.ParsePath(key), Cond: val})
		}
	}
	return out
}

func fieldsMatchPrefix(idx *index.Index, path document.Path) bool {
	if len(idx.Def.Fields) == 0 {
		return false
	}
	return idx.Def.Fields[0].String() == path.String()
}

func singleFieldIndex(idx *index.Index, path document.Path) bool {
	return len(idx.Def.Fields) == 1 && idx.Def.Fields[0].String() == path.String()
}

// accessFor reports what access path (if any) idx can serve for constraint c.
func accessFor(c *Constraint, idx *index.Index) (Access, bool) {
	isEquality, isRange := classify(c.Cond)

	switch idx.Def.Kind {
	case index.KindText:
		return "", false // $text constraints never appear as a plain Constraint
	case index.KindSingle:
		if !singleFieldIndex(idx, c.Path) {
			return "", false
		}
		if isEquality {
			if idx.Def.Unique {
				return AccessUniqueEquality, true
			}
			return AccessEquality, true
		}
		if isRange {
			return AccessRange, true
		}
		return "", false
	case index.KindComposite:
		if !fieldsMatchPrefix(idx, c.Path) {
			return "", false
		}
		if isEquality && len(idx.Def.Fields) == 1 {
			if idx.Def.Unique {
				return AccessUniqueEquality, true
			}
			return AccessCompositeEq, true
		}
		if isEquality {
			return AccessCompositeEq, true
		}
		if isRange {
			return AccessCompositeRange, true
		}
	}
	return "", false
}

// classify reports whether cond is an equality-shaped or range-shaped
// constraint. $in/$exists/$regex are deliberately not classified as
// equality/range: they don't map onto a single key-tuple lookup cleanly,
// so constraints using them fall through to the post-filter over a scan
// or another qualifying index.
func classify(cond document.Value) (equality, rangeQ bool) {
	if cond.Kind != document.KindObject {
		return true, false // implicit scalar equality
	}
	if !isOperatorDoc(cond) {
		return true, false
	}
	for _, op := range cond.O.Keys() {
		switch op {
		case "$eq":
			equality = true
		case "$gt", "$gte", "$lt", "$lte":
			rangeQ = true
		}
	}
	return equality, rangeQ
}

func isOperatorDoc(v document.Value) bool {
	if v.Kind != document.KindObject || v.O.Len() == 0 {
		return false
	}
	for _, k := range v.O.Keys() {
		if len(k) == 0 || k[0] != '$' {
			return false
		}
	}
	return true
}

// estimate scores an access path by fraction of the index's entries it is
// expected to touch (spec §4.4 step 4): unique equality is always 1 row;
// equality/composite-equality use average entries-per-key; range/prefix
// use total coverage as a conservative estimate.
func estimate(access Access, idx *index.Index) float64 {
	switch access {
	case AccessUniqueEquality:
		return 1
	case AccessEquality, AccessCompositeEq:
		keys := idx.KeyCount()
		if keys == 0 {
			return 0
		}
		return float64(idx.TotalEntries()) / float64(keys)
	default:
		return float64(idx.TotalEntries())
	}
}
