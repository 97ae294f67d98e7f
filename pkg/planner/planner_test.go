package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oxidb/oxidb/pkg/document"
	"github.com/oxidb/oxidb/pkg/index"
)

func newDoc(pairs ...interface{}) document.Value {
	o := document.NewObject()
	for i := 0; i+1 < len(pairs); i += 2 {
		o.Set(pairs[i].(string), pairs[i+1].(document.Value))
	}
	return document.ObjectValue(o)
}

func filterDoc(pairs ...interface{}) document.Value {
	return newDoc(pairs...)
}

func TestPlanChoosesUniqueEqualityOverScan(t *testing.T) {
	emailIdx := index.New(index.Def{
		Name:   "email_single",
		Kind:   index.KindSingle,
		Fields: []document.Path{document.ParsePath("email")},
		Unique: true,
	})
	assert.NoError(t, emailIdx.Insert("1", newDoc("email", document.String("a@example.com"))))

	cat := Catalog{"email_single": emailIdx}
	plan := Plan(filterDoc("email", document.String("a@example.com")), cat)

	assert.Equal(t, AccessUniqueEquality, plan.Access)
	assert.Equal(t, "email_single", plan.IndexName)
}

func TestPlanFallsBackToScanWithoutIndex(t *testing.T) {
	plan := Plan(filterDoc("age", document.Number(10)), Catalog{})
	assert.Equal(t, AccessScan, plan.Access)
}

func TestPlanPrefersRangeOverScan(t *testing.T) {
	ageIdx := index.New(index.Def{
		Name:   "age_single",
		Kind:   index.KindSingle,
		Fields: []document.Path{document.ParsePath("age")},
	})
	assert.NoError(t, ageIdx.Insert("1", newDoc("age", document.Number(20))))
	assert.NoError(t, ageIdx.Insert("2", newDoc("age", document.Number(30))))

	cond := newDoc("$gte", document.Number(25))
	plan := Plan(filterDoc("age", cond), Catalog{"age_single": ageIdx})

	assert.Equal(t, AccessRange, plan.Access)
	assert.Equal(t, "age_single", plan.IndexName)
}

func TestPlanBreaksTiesByIndexNameLexicalOrder(t *testing.T) {
	idxA := index.New(index.Def{Name: "a_status_single", Kind: index.KindSingle,
		Fields: []document.Path{document.ParsePath("status")}})
	idxB := index.New(index.Def{Name: "b_status_single", Kind: index.KindSingle,
		Fields: []document.Path{document.ParsePath("status")}})
	assert.NoError(t, idxA.Insert("1", newDoc("status", document.String("active"))))
	assert.NoError(t, idxB.Insert("1", newDoc("status", document.String("active"))))

	plan := Plan(filterDoc("status", document.String("active")), Catalog{
		"b_status_single": idxB,
		"a_status_single": idxA,
	})
	assert.Equal(t, "a_status_single", plan.IndexName)
}

func TestPlanFlattensTopLevelAnd(t *testing.T) {
	statusIdx := index.New(index.Def{Name: "status_single", Kind: index.KindSingle,
		Fields: []document.Path{document.ParsePath("status")}})
	assert.NoError(t, statusIdx.Insert("1", newDoc("status", document.String("active"))))

	filter := newDoc("$and", document.Array([]document.Value{
		filterDoc("status", document.String("active")),
		filterDoc("age", newDoc("$gt", document.Number(18))),
	}))
	plan := Plan(filter, Catalog{"status_single": statusIdx})
	assert.Equal(t, AccessEquality, plan.Access)
	assert.Equal(t, "status_single", plan.IndexName)
}
