package query

import (
	"regexp"

	"github.com/oxidb/oxidb/pkg/document"
	"github.com/oxidb/oxidb/pkg/index"
)

// Match reports whether doc satisfies filter.
func Match(doc document.Value, filter document.Value) bool {
	if filter.Kind != document.KindObject {
		return false
	}
	for _, key := range filter.O.Keys() {
		val, _ := filter.O.Get(key)
		switch key {
		case "$and":
			if !matchAnd(doc, val) {
				return false
			}
		case "$or":
			if !matchOr(doc, val) {
				return false
			}
		case "$not":
			if Match(doc, val) {
				return false
			}
		case "$text":
			if !matchText(doc, val) {
				return false
			}
		default:
			if !matchField(doc, document.ParsePath(key), val) {
				return false
			}
		}
	}
	return true
}

func matchAnd(doc, arr document.Value) bool {
	if arr.Kind != document.KindArray {
		return false
	}
	for _, f := range arr.A {
		if !Match(doc, f) {
			return false
		}
	}
	return true
}

func matchOr(doc, arr document.Value) bool {
	if arr.Kind != document.KindArray {
		return false
	}
	for _, f := range arr.A {
		if Match(doc, f) {
			return true
		}
	}
	return false
}

func matchText(doc, q document.Value) bool {
	if q.Kind != document.KindString {
		return false
	}
	queryTokens := index.Tokenize(q.S)
	if len(queryTokens) == 0 {
		return true
	}
	docTokens := make(map[string]struct{})
	for _, tok := range index.Tokenize(flattenStrings(doc)) {
		docTokens[tok] = struct{}{}
	}
	for _, qt := range queryTokens {
		if _, ok := docTokens[qt]; !ok {
			return false
		}
	}
	return true
}

func flattenStrings(v document.Value) string {
	switch v.Kind {
	case document.KindString:
		return v.S
	case document.KindArray:
		out := ""
		for _, e := range v.A {
			out += flattenStrings(e) + " "
		}
		return out
	case document.KindObject:
		out := ""
		for _, k := range v.O.Keys() {
			e, _ := v.O.Get(k)
			out += flattenStrings(e) + " "
		}
		return out
	default:
		return ""
	}
}

// matchField evaluates one field constraint, which is either an implicit
// equality (scalar/array operand) or an operator document ({$gt: ..., ...}).
func matchField(doc document.Value, path document.Path, cond document.Value) bool {
	fieldVals := document.Realized(doc, path)
	exists := fieldExists(doc, path)

	if cond.Kind == document.KindObject && isOperatorDoc(cond) {
		for _, op := range cond.O.Keys() {
			arg, _ := cond.O.Get(op)
			if !evalOperator(op, arg, fieldVals, exists) {
				return false
			}
		}
		return true
	}
	return anyEquals(fieldVals, cond)
}

func fieldExists(doc document.Value, path document.Path) bool {
	_, ok := document.Get(doc, path)
	return ok
}

func isOperatorDoc(v document.Value) bool {
	if v.O.Len() == 0 {
		return false
	}
	for _, k := range v.O.Keys() {
		if len(k) == 0 || k[0] != '$' {
			return false
		}
	}
	return true
}

func evalOperator(op string, arg document.Value, fieldVals []document.Value, exists bool) bool {
	switch op {
	case "$eq":
		return anyEquals(fieldVals, arg)
	case "$ne":
		return !anyEquals(fieldVals, arg)
	case "$gt":
		return anyCompare(fieldVals, arg, func(c int) bool { return c > 0 })
	case "$gte":
		return anyCompare(fieldVals, arg, func(c int) bool { return c >= 0 })
	case "$lt":
		return anyCompare(fieldVals, arg, func(c int) bool { return c < 0 })
	case "$lte":
		return anyCompare(fieldVals, arg, func(c int) bool { return c <= 0 })
	case "$in":
		if arg.Kind != document.KindArray {
			return false
		}
		for _, v := range arg.A {
			if anyEquals(fieldVals, v) {
				return true
			}
		}
		return false
	case "$nin":
		if arg.Kind != document.KindArray {
			return true
		}
		for _, v := range arg.A {
			if anyEquals(fieldVals, v) {
				return false
			}
		}
		return true
	case "$exists":
		want := arg.Kind == document.KindBool && arg.B
		return exists == want
	case "$regex":
		if arg.Kind != document.KindString {
			return false
		}
		re, err := regexp.Compile(arg.S)
		if err != nil {
			return false
		}
		for _, v := range fieldVals {
			if v.Kind == document.KindString && re.MatchString(v.S) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// anyEquals reports whether cond equals any field value, or — if the field
// is an array — any element of it (spec.md §4.3 "implicit" row).
func anyEquals(fieldVals []document.Value, cond document.Value) bool {
	for _, v := range fieldVals {
		if v.Kind == document.KindArray {
			for _, e := range v.A {
				if document.Equal(e, cond) {
					return true
				}
			}
			continue
		}
		if document.Equal(v, cond) {
			return true
		}
	}
	return false
}

// anyCompare applies a same-kind comparison; cross-kind comparisons never
// match (spec.md §4.3 "$gt/$gte/$lt/$lte" row).
func anyCompare(fieldVals []document.Value, cond document.Value, ok func(int) bool) bool {
	for _, v := range fieldVals {
		if v.Kind == document.KindArray {
			for _, e := range v.A {
				if e.Kind == cond.Kind && ok(document.Compare(e, cond)) {
					return true
				}
			}
			continue
		}
		if v.Kind == cond.Kind && ok(document.Compare(v, cond)) {
			return true
		}
	}
	return false
}
