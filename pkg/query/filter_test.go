package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oxidb/oxidb/pkg/document"
)

func obj(pairs ...interface{}) document.Value {
	o := document.NewObject()
	for i := 0; i+1 < len(pairs); i += 2 {
		o.Set(pairs[i].(string), pairs[i+1].(document.Value))
	}
	return document.ObjectValue(o)
}

func TestMatchImplicitEquality(t *testing.T) {
	doc := obj("status", document.String("active"), "age", document.Number(30))

	assert.True(t, Match(doc, obj("status", document.String("active"))))
	assert.False(t, Match(doc, obj("status", document.String("closed"))))
}

func TestMatchImplicitArrayMembership(t *testing.T) {
	doc := obj("tags", document.Array([]document.Value{document.String("a"), document.String("b")}))
	assert.True(t, Match(doc, obj("tags", document.String("a"))))
	assert.False(t, Match(doc, obj("tags", document.String("z"))))
}

func TestMatchComparisonOperators(t *testing.T) {
	doc := obj("age", document.Number(30))

	assert.True(t, Match(doc, obj("age", obj("$gte", document.Number(30)))))
	assert.True(t, Match(doc, obj("age", obj("$gt", document.Number(29)))))
	assert.False(t, Match(doc, obj("age", obj("$lt", document.Number(30)))))
	assert.True(t, Match(doc, obj("age", obj("$in", document.Array([]document.Value{
		document.Number(10), document.Number(30),
	})))))
}

func TestMatchCrossKindComparisonNeverMatches(t *testing.T) {
	doc := obj("age", document.String("thirty"))
	assert.False(t, Match(doc, obj("age", obj("$gt", document.Number(1)))))
}

func TestMatchExists(t *testing.T) {
	doc := obj("age", document.Number(30))
	assert.True(t, Match(doc, obj("age", obj("$exists", document.Bool(true)))))
	assert.False(t, Match(doc, obj("missing", obj("$exists", document.Bool(true)))))
	assert.True(t, Match(doc, obj("missing", obj("$exists", document.Bool(false)))))
}

func TestMatchLogicalOperators(t *testing.T) {
	doc := obj("age", document.Number(30), "status", document.String("active"))

	and := obj("$and", document.Array([]document.Value{
		obj("age", obj("$gte", document.Number(18))),
		obj("status", document.String("active")),
	}))
	assert.True(t, Match(doc, and))

	or := obj("$or", document.Array([]document.Value{
		obj("status", document.String("closed")),
		obj("age", obj("$gte", document.Number(18))),
	}))
	assert.True(t, Match(doc, or))

	not := obj("$not", obj("status", document.String("active")))
	assert.False(t, Match(doc, not))
}

func TestMatchDottedPath(t *testing.T) {
	inner := obj("city", document.String("nyc"))
	doc := obj("address", inner)
	assert.True(t, Match(doc, obj("address.city", document.String("nyc"))))
}

func TestMatchText(t *testing.T) {
	doc := obj("bio", document.String("Go engineer who loves databases"))
	assert.True(t, Match(doc, obj("$text", document.String("databases"))))
	assert.False(t, Match(doc, obj("$text", document.String("kubernetes"))))
}

func TestApplyUpdateSetIncPushPull(t *testing.T) {
	doc := obj("count", document.Number(1), "tags", document.Array([]document.Value{document.String("a")}))

	updated, err := ApplyUpdate(doc, obj(
		"$set", obj("status", document.String("active")),
		"$inc", obj("count", document.Number(4)),
		"$push", obj("tags", document.String("b")),
	))
	assert.NoError(t, err)

	status, ok := document.Get(updated, document.ParsePath("status"))
	assert.True(t, ok)
	assert.Equal(t, "active", status.S)

	count, _ := document.Get(updated, document.ParsePath("count"))
	assert.Equal(t, 5.0, count.N)

	tags, _ := document.Get(updated, document.ParsePath("tags"))
	assert.Len(t, tags.A, 2)

	pulled, err := ApplyUpdate(updated, obj("$pull", obj("tags", document.String("a"))))
	assert.NoError(t, err)
	tags2, _ := document.Get(pulled, document.ParsePath("tags"))
	assert.Len(t, tags2.A, 1)
	assert.Equal(t, "b", tags2.A[0].S)
}

func TestApplyUpdateUnset(t *testing.T) {
	doc := obj("a", document.Number(1), "b", document.Number(2))
	updated, err := ApplyUpdate(doc, obj("$unset", obj("a", document.Bool(true))))
	assert.NoError(t, err)
	_, ok := document.Get(updated, document.ParsePath("a"))
	assert.False(t, ok)
}

func TestProjectInclusionAndExclusion(t *testing.T) {
	doc := obj("_id", document.String("1"), "a", document.Number(1), "b", document.Number(2))

	inc, err := Project(doc, obj("a", document.Bool(true)))
	assert.NoError(t, err)
	_, hasB := document.Get(inc, document.ParsePath("b"))
	assert.False(t, hasB)
	_, hasID := document.Get(inc, document.ParsePath("_id"))
	assert.True(t, hasID)

	exc, err := Project(doc, obj("b", document.Bool(false)))
	assert.NoError(t, err)
	_, hasA := document.Get(exc, document.ParsePath("a"))
	assert.True(t, hasA)
	_, stillHasB := document.Get(exc, document.ParsePath("b"))
	assert.False(t, stillHasB)
}

func TestProjectRejectsMixedInclusionExclusion(t *testing.T) {
	doc := obj("a", document.Number(1), "b", document.Number(2))
	_, err := Project(doc, obj("a", document.Bool(true), "b", document.Bool(false)))
	assert.Error(t, err)
}
