package sqlsubset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxidb/oxidb/pkg/document"
	"github.com/oxidb/oxidb/pkg/query"
)

func TestParseSelectStar(t *testing.T) {
	q, err := Parse("SELECT * FROM users")
	require.NoError(t, err)
	assert.Equal(t, "users", q.Collection)
	assert.True(t, q.Projection.IsNull())
	assert.False(t, q.HasLimit)
}

func TestParseProjectionFields(t *testing.T) {
	q, err := Parse("SELECT name, age FROM users")
	require.NoError(t, err)
	v, ok := document.Get(q.Projection, document.ParsePath("name"))
	require.True(t, ok)
	assert.Equal(t, document.Number(1), v)
}

func TestParseWhereComparisonAndLimit(t *testing.T) {
	q, err := Parse("SELECT * FROM users WHERE age >= 21 LIMIT 5")
	require.NoError(t, err)
	require.True(t, q.HasLimit)
	assert.Equal(t, 5, q.Limit)

	doc := document.ObjectValue(func() *document.Object {
		o := document.NewObject()
		o.Set("age", document.Number(30))
		return o
	}())
	assert.True(t, query.Match(doc, q.Filter))

	young := document.ObjectValue(func() *document.Object {
		o := document.NewObject()
		o.Set("age", document.Number(10))
		return o
	}())
	assert.False(t, query.Match(young, q.Filter))
}

func TestParseAndOrNotPrecedence(t *testing.T) {
	q, err := Parse("SELECT * FROM users WHERE (status = 'active' OR status = 'pending') AND NOT age < 18")
	require.NoError(t, err)

	match := document.ObjectValue(func() *document.Object {
		o := document.NewObject()
		o.Set("status", document.String("active"))
		o.Set("age", document.Number(25))
		return o
	}())
	assert.True(t, query.Match(match, q.Filter))

	minor := document.ObjectValue(func() *document.Object {
		o := document.NewObject()
		o.Set("status", document.String("active"))
		o.Set("age", document.Number(10))
		return o
	}())
	assert.False(t, query.Match(minor, q.Filter))
}

func TestParseInList(t *testing.T) {
	q, err := Parse("SELECT * FROM users WHERE role IN ('admin', 'read_write')")
	require.NoError(t, err)

	doc := document.ObjectValue(func() *document.Object {
		o := document.NewObject()
		o.Set("role", document.String("read_write"))
		return o
	}())
	assert.True(t, query.Match(doc, q.Filter))
}

func TestParseRejectsGarbageTrailingInput(t *testing.T) {
	_, err := Parse("SELECT * FROM users garbage")
	assert.Error(t, err)
}

func TestParseRejectsMissingFrom(t *testing.T) {
	_, err := Parse("SELECT * users")
	assert.Error(t, err)
}
