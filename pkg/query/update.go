package query

import (
	"github.com/oxidb/oxidb/pkg/document"
	"github.com/oxidb/oxidb/pkg/oxierr"
)

// ApplyUpdate applies an update document (containing one or more of
// $set/$unset/$inc/$push/$pull) to doc and returns the result. doc is not
// mutated in place; a new Value tree is returned.
func ApplyUpdate(doc document.Value, update document.Value) (document.Value, error) {
	if update.Kind != document.KindObject || update.O.Len() == 0 {
		return doc, oxierr.New(oxierr.BadRequest, "update document must contain at least one update operator")
	}
	idPath := document.ParsePath("_id")
	originalID, hadID := document.Get(doc, idPath)

	out := doc
	for _, op := range update.O.Keys() {
		arg, _ := update.O.Get(op)
		var err error
		switch op {
		case "$set":
			out, err = applySet(out, arg)
		case "$unset":
			out, err = applyUnset(out, arg)
		case "$inc":
			out, err = applyInc(out, arg)
		case "$push":
			out, err = applyPush(out, arg)
		case "$pull":
			out, err = applyPull(out, arg)
		default:
			return doc, oxierr.New(oxierr.BadRequest, "unknown update operator %q", op)
		}
		if err != nil {
			return doc, err
		}
	}
	if hadID {
		out = document.Set(out, idPath, originalID)
	}
	return out, nil
}

func applySet(doc, arg document.Value) (document.Value, error) {
	if arg.Kind != document.KindObject {
		return doc, oxierr.New(oxierr.BadRequest, "$set requires an object operand")
	}
	for _, k := range arg.O.Keys() {
		v, _ := arg.O.Get(k)
		doc = document.Set(doc, document.ParsePath(k), v)
	}
	return doc, nil
}

func applyUnset(doc, arg document.Value) (document.Value, error) {
	if arg.Kind != document.KindObject {
		return doc, oxierr.New(oxierr.BadRequest, "$unset requires an object operand")
	}
	for _, k := range arg.O.Keys() {
		doc = document.Unset(doc, document.ParsePath(k))
	}
	return doc, nil
}

func applyInc(doc, arg document.Value) (document.Value, error) {
	if arg.Kind != document.KindObject {
		return doc, oxierr.New(oxierr.BadRequest, "$inc requires an object operand")
	}
	for _, k := range arg.O.Keys() {
		delta, _ := arg.O.Get(k)
		if delta.Kind != document.KindNumber {
			return doc, oxierr.New(oxierr.BadRequest, "$inc operand for %q must be a number", k)
		}
		path := document.ParsePath(k)
		cur, ok := document.Get(doc, path)
		base := 0.0
		if ok {
			if cur.Kind != document.KindNumber {
				return doc, oxierr.New(oxierr.BadRequest, "$inc target %q is not a number", k)
			}
			base = cur.N
		}
		doc = document.Set(doc, path, document.Number(base+delta.N))
	}
	return doc, nil
}

func applyPush(doc, arg document.Value) (document.Value, error) {
	if arg.Kind != document.KindObject {
		return doc, oxierr.New(oxierr.BadRequest, "$push requires an object operand")
	}
	for _, k := range arg.O.Keys() {
		item, _ := arg.O.Get(k)
		path := document.ParsePath(k)
		cur, ok := document.Get(doc, path)
		var arr []document.Value
		if ok {
			if cur.Kind != document.KindArray {
				return doc, oxierr.New(oxierr.BadRequest, "$push target %q is not an array", k)
			}
			arr = append(arr, cur.A...)
		}
		arr = append(arr, item)
		doc = document.Set(doc, path, document.Array(arr))
	}
	return doc, nil
}

func applyPull(doc, arg document.Value) (document.Value, error) {
	if arg.Kind != document.KindObject {
		return doc, oxierr.New(oxierr.BadRequest, "$pull requires an object operand")
	}
	for _, k := range arg.O.Keys() {
		cond, _ := arg.O.Get(k)
		path := document.ParsePath(k)
		cur, ok := document.Get(doc, path)
		if !ok {
			continue
		}
		if cur.Kind != document.KindArray {
			return doc, oxierr.New(oxierr.BadRequest, "$pull target %q is not an array", k)
		}
		kept := make([]document.Value, 0, len(cur.A))
		for _, e := range cur.A {
			if pullMatches(e, cond) {
				continue
			}
			kept = append(kept, e)
		}
		doc = document.Set(doc, path, document.Array(kept))
	}
	return doc, nil
}

// pullMatches reports whether an array element should be removed: either it
// equals the scalar condition, or — if cond is a filter document — it
// satisfies the filter (so $pull can remove object elements by predicate).
func pullMatches(elem, cond document.Value) bool {
	if cond.Kind == document.KindObject {
		return Match(elem, cond)
	}
	return document.Equal(elem, cond)
}
