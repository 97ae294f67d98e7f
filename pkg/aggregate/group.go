package aggregate

import (
	"github.com/oxidb/oxidb/pkg/document"
	"github.com/oxidb/oxidb/pkg/oxierr"
)

// applyGroup implements $group: { _id: <expr or literal>, field: {$accum: <expr>}, ... }.
// Groups are emitted in the order their _id first appears in docs (see
// Run's doc comment); follow $group with $sort for any other order.
func applyGroup(docs []document.Value, spec document.Value) ([]document.Value, error) {
	if spec.Kind != document.KindObject {
		return nil, oxierr.New(oxierr.BadRequest, "$group requires an object operand")
	}
	idExpr, hasID := spec.O.Get("_id")
	if !hasID {
		return nil, oxierr.New(oxierr.BadRequest, "$group requires an _id expression")
	}

	type bucket struct {
		key     document.Value
		members []document.Value
	}
	buckets := make(map[string]*bucket)
	var order []string

	for _, d := range docs {
		key := evalExpr(d, idExpr)
		k := key.String()
		b, ok := buckets[k]
		if !ok {
			b = &bucket{key: key}
			buckets[k] = b
			order = append(order, k)
		}
		b.members = append(b.members, d)
	}

	fieldNames := spec.O.Keys()
	out := make([]document.Value, 0, len(order))
	for _, k := range order {
		b := buckets[k]
		o := document.NewObject()
		o.Set("_id", b.key)
		for _, field := range fieldNames {
			if field == "_id" {
				continue
			}
			accumSpec, _ := spec.O.Get(field)
			val, err := accumulate(b.members, accumSpec)
			if err != nil {
				return nil, err
			}
			o.Set(field, val)
		}
		out = append(out, document.ObjectValue(o))
	}
	return out, nil
}

// evalExpr evaluates a grouping/accumulator expression: a "$field" path
// reference, or a literal value.
func evalExpr(doc document.Value, expr document.Value) document.Value {
	if expr.Kind == document.KindString && len(expr.S) > 0 && expr.S[0] == '$' {
		v, ok := document.Get(doc, document.ParsePath(expr.S[1:]))
		if !ok {
			return document.Null()
		}
		return v
	}
	return expr
}

func accumulate(members []document.Value, accumSpec document.Value) (document.Value, error) {
	if accumSpec.Kind != document.KindObject || accumSpec.O.Len() != 1 {
		return document.Value{}, oxierr.New(oxierr.BadRequest, "accumulator must be a single-key object")
	}
	op := accumSpec.O.Keys()[0]
	expr, _ := accumSpec.O.Get(op)

	switch op {
	case "$count":
		return document.Number(float64(len(members))), nil
	case "$sum":
		sum := 0.0
		for _, m := range members {
			v := evalExpr(m, expr)
			if v.Kind == document.KindNumber {
				sum += v.N
			}
		}
		return document.Number(sum), nil
	case "$avg":
		if len(members) == 0 {
			return document.Number(0), nil
		}
		sum := 0.0
		count := 0
		for _, m := range members {
			v := evalExpr(m, expr)
			if v.Kind == document.KindNumber {
				sum += v.N
				count++
			}
		}
		if count == 0 {
			return document.Number(0), nil
		}
		return document.Number(sum / float64(count)), nil
	case "$min":
		return extremum(members, expr, -1), nil
	case "$max":
		return extremum(members, expr, 1), nil
	case "$push":
		items := make([]document.Value, 0, len(members))
		for _, m := range members {
			items = append(items, evalExpr(m, expr))
		}
		return document.Array(items), nil
	default:
		return document.Value{}, oxierr.New(oxierr.BadRequest, "unknown accumulator %q", op)
	}
}

// extremum returns the min (want<0) or max (want>0) evaluated value across
// members, skipping members where the expression doesn't resolve.
func extremum(members []document.Value, expr document.Value, want int) document.Value {
	var best document.Value
	found := false
	for _, m := range members {
		v := evalExpr(m, expr)
		if v.IsNull() {
			continue
		}
		if !found {
			best = v
			found = true
			continue
		}
		c := document.Compare(v, best)
		if (want < 0 && c < 0) || (want > 0 && c > 0) {
			best = v
		}
	}
	if !found {
		return document.Null()
	}
	return best
}
