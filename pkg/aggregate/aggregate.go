// Package aggregate implements OxiDB's aggregation pipeline: a sequence
// of stages ($match, $project, $group, $sort, $limit, $skip, $unwind)
// applied to a collection's documents, grounded on the query evaluator's
// value and projection semantics so the pipeline never redefines
// equality, comparison, or field navigation on its own.
package aggregate

import (
	"sort"

	"github.com/oxidb/oxidb/pkg/document"
	"github.com/oxidb/oxidb/pkg/oxierr"
	"github.com/oxidb/oxidb/pkg/query"
)

// Run executes pipeline (an array of single-key stage documents) over
// docs and returns the resulting documents. $group emits one document per
// distinct _id, in the order each _id first appears in the stage's input;
// a following $sort is needed for any other order (see DESIGN.md's Open
// Question resolution for this stage).
func Run(docs []document.Value, pipeline document.Value) ([]document.Value, error) {
	if pipeline.Kind != document.KindArray {
		return nil, oxierr.New(oxierr.BadRequest, "pipeline must be an array of stages")
	}

	cur := docs
	for _, stageDoc := range pipeline.A {
		if stageDoc.Kind != document.KindObject || stageDoc.O.Len() != 1 {
			return nil, oxierr.New(oxierr.BadRequest, "each pipeline stage must be a single-key object")
		}
		name := stageDoc.O.Keys()[0]
		arg, _ := stageDoc.O.Get(name)

		var err error
		switch name {
		case "$match":
			cur = applyMatch(cur, arg)
		case "$project":
			cur, err = applyProject(cur, arg)
		case "$group":
			cur, err = applyGroup(cur, arg)
		case "$sort":
			cur, err = applySort(cur, arg)
		case "$limit":
			cur, err = applyLimit(cur, arg)
		case "$skip":
			cur, err = applySkip(cur, arg)
		case "$unwind":
			cur, err = applyUnwind(cur, arg)
		default:
			return nil, oxierr.New(oxierr.BadRequest, "unknown aggregation stage %q", name)
		}
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

func applyMatch(docs []document.Value, filter document.Value) []document.Value {
	var out []document.Value
	for _, d := range docs {
		if query.Match(d, filter) {
			out = append(out, d)
		}
	}
	return out
}

func applyProject(docs []document.Value, spec document.Value) ([]document.Value, error) {
	out := make([]document.Value, len(docs))
	for i, d := range docs {
		projected, err := query.Project(d, spec)
		if err != nil {
			return nil, err
		}
		out[i] = projected
	}
	return out, nil
}

func applySort(docs []document.Value, spec document.Value) ([]document.Value, error) {
	if spec.Kind != document.KindObject {
		return nil, oxierr.New(oxierr.BadRequest, "$sort requires an object of field -> 1|-1")
	}
	keys := spec.O.Keys()
	dirs := make([]int, len(keys))
	for i, k := range keys {
		v, _ := spec.O.Get(k)
		if v.Kind == document.KindNumber && v.N < 0 {
			dirs[i] = -1
		} else {
			dirs[i] = 1
		}
	}
	out := append([]document.Value(nil), docs...)
	sort.SliceStable(out, func(i, j int) bool {
		for idx, k := range keys {
			vi, _ := document.Get(out[i], document.ParsePath(k))
			vj, _ := document.Get(out[j], document.ParsePath(k))
			c := document.Compare(vi, vj)
			if c != 0 {
				if dirs[idx] < 0 {
					return c > 0
				}
				return c < 0
			}
		}
		return false
	})
	return out, nil
}

func applyLimit(docs []document.Value, arg document.Value) ([]document.Value, error) {
	if arg.Kind != document.KindNumber {
		return nil, oxierr.New(oxierr.BadRequest, "$limit requires a number")
	}
	n := int(arg.N)
	if n < 0 || n >= len(docs) {
		return docs, nil
	}
	return docs[:n], nil
}

func applySkip(docs []document.Value, arg document.Value) ([]document.Value, error) {
	if arg.Kind != document.KindNumber {
		return nil, oxierr.New(oxierr.BadRequest, "$skip requires a number")
	}
	n := int(arg.N)
	if n < 0 {
		n = 0
	}
	if n >= len(docs) {
		return nil, nil
	}
	return docs[n:], nil
}

func applyUnwind(docs []document.Value, arg document.Value) ([]document.Value, error) {
	if arg.Kind != document.KindString {
		return nil, oxierr.New(oxierr.BadRequest, "$unwind requires a field path string")
	}
	path := document.ParsePath(trimDollar(arg.S))
	var out []document.Value
	for _, d := range docs {
		v, ok := document.Get(d, path)
		if !ok || v.Kind != document.KindArray {
			continue
		}
		for _, elem := range v.A {
			out = append(out, document.Set(d, path, elem))
		}
	}
	return out, nil
}

func trimDollar(s string) string {
	if len(s) > 0 && s[0] == '$' {
		return s[1:]
	}
	return s
}
