package query

import (
	"github.com/oxidb/oxidb/pkg/document"
	"github.com/oxidb/oxidb/pkg/oxierr"
)

// Project applies an inclusion or exclusion projection document to doc.
// Mixing inclusion and exclusion keys (other than "_id") is rejected, same
// as the operator dialect this mirrors. A nil or empty projection returns
// doc unchanged.
func Project(doc document.Value, projection document.Value) (document.Value, error) {
	if projection.Kind != document.KindObject || projection.O.Len() == 0 {
		return doc, nil
	}

	inclusion, exclusion := false, false
	for _, k := range projection.O.Keys() {
		if k == "_id" {
			continue
		}
		v, _ := projection.O.Get(k)
		if truthy(v) {
			inclusion = true
		} else {
			exclusion = true
		}
	}
	if inclusion && exclusion {
		return doc, oxierr.New(oxierr.BadRequest, "projection cannot mix inclusion and exclusion fields")
	}

	idIncluded := true
	if v, ok := projection.O.Get("_id"); ok {
		idIncluded = truthy(v)
	}

	if inclusion {
		out := document.NewObject()
		if idIncluded {
			if v, ok := document.Get(doc, document.Path{"_id"}); ok {
				out.Set("_id", v)
			}
		}
		for _, k := range projection.O.Keys() {
			if k == "_id" {
				continue
			}
			v, _ := projection.O.Get(k)
			if !truthy(v) {
				continue
			}
			if field, ok := document.Get(doc, document.ParsePath(k)); ok {
				out.Set(k, field)
			}
		}
		return document.ObjectValue(out), nil
	}

	// Exclusion (or only "_id": 0/1 given): start from a clone, drop named fields.
	out := doc.Clone()
	for _, k := range projection.O.Keys() {
		if k == "_id" {
			if !idIncluded {
				out = document.Unset(out, document.Path{"_id"})
			}
			continue
		}
		if v, _ := projection.O.Get(k); !truthy(v) {
			out = document.Unset(out, document.ParsePath(k))
		}
	}
	return out, nil
}

func truthy(v document.Value) bool {
	switch v.Kind {
	case document.KindBool:
		return v.B
	case document.KindNumber:
		return v.N != 0
	default:
		return true
	}
}
