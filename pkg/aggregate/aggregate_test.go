package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxidb/oxidb/pkg/document"
)

func docOf(pairs ...interface{}) document.Value {
	o := document.NewObject()
	for i := 0; i+1 < len(pairs); i += 2 {
		o.Set(pairs[i].(string), pairs[i+1].(document.Value))
	}
	return document.ObjectValue(o)
}

func arr(vs ...document.Value) document.Value { return document.Array(vs) }

func TestRunMatchSortLimit(t *testing.T) {
	docs := []document.Value{
		docOf("name", document.String("a"), "age", document.Number(40)),
		docOf("name", document.String("b"), "age", document.Number(20)),
		docOf("name", document.String("c"), "age", document.Number(30)),
	}
	pipeline := arr(
		docOf("$match", docOf("age", docOf("$gte", document.Number(20)))),
		docOf("$sort", docOf("age", document.Number(1))),
		docOf("$limit", document.Number(2)),
	)
	out, err := Run(docs, pipeline)
	require.NoError(t, err)
	require.Len(t, out, 2)
	first, _ := document.Get(out[0], document.ParsePath("name"))
	assert.Equal(t, "b", first.S)
}

func TestRunGroupSumAvgCount(t *testing.T) {
	docs := []document.Value{
		docOf("dept", document.String("eng"), "salary", document.Number(100)),
		docOf("dept", document.String("eng"), "salary", document.Number(200)),
		docOf("dept", document.String("sales"), "salary", document.Number(50)),
	}
	pipeline := arr(docOf("$group", docOf(
		"_id", document.String("$dept"),
		"total", docOf("$sum", document.String("$salary")),
		"avg", docOf("$avg", document.String("$salary")),
		"count", docOf("$count", document.Null()),
	)))
	out, err := Run(docs, pipeline)
	require.NoError(t, err)
	require.Len(t, out, 2)

	totals := map[string]float64{}
	avgs := map[string]float64{}
	counts := map[string]float64{}
	for _, d := range out {
		id, _ := document.Get(d, document.ParsePath("_id"))
		total, _ := document.Get(d, document.ParsePath("total"))
		avg, _ := document.Get(d, document.ParsePath("avg"))
		count, _ := document.Get(d, document.ParsePath("count"))
		totals[id.S] = total.N
		avgs[id.S] = avg.N
		counts[id.S] = count.N
	}
	assert.Equal(t, 300.0, totals["eng"])
	assert.Equal(t, 50.0, totals["sales"])
	assert.Equal(t, 150.0, avgs["eng"])
	assert.Equal(t, 50.0, avgs["sales"])
	assert.Equal(t, 2.0, counts["eng"])
	assert.Equal(t, 1.0, counts["sales"])
}

func TestRunUnwind(t *testing.T) {
	docs := []document.Value{
		docOf("tags", arr(document.String("a"), document.String("b"))),
	}
	out, err := Run(docs, arr(docOf("$unwind", document.String("$tags"))))
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestRunRejectsUnknownStage(t *testing.T) {
	_, err := Run(nil, arr(docOf("$bogus", document.Null())))
	assert.Error(t, err)
}
