package collection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxidb/oxidb/pkg/document"
	"github.com/oxidb/oxidb/pkg/index"
)

func docOf(pairs ...interface{}) document.Value {
	o := document.NewObject()
	for i := 0; i+1 < len(pairs); i += 2 {
		o.Set(pairs[i].(string), pairs[i+1].(document.Value))
	}
	return document.ObjectValue(o)
}

func TestInsertFindUpdateDelete(t *testing.T) {
	dir := t.TempDir()
	c, err := Open("users", dir)
	require.NoError(t, err)
	defer c.Close()

	id, err := c.Insert(docOf("name", document.String("ada"), "age", document.Number(30)))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	found, ok, err := c.FindOne(docOf("name", document.String("ada")))
	require.NoError(t, err)
	assert.True(t, ok)
	name, _ := document.Get(found, document.ParsePath("name"))
	assert.Equal(t, "ada", name.S)

	n, err := c.Update(docOf("name", document.String("ada")), docOf("$inc", docOf("age", document.Number(1))))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	found2, _, _ := c.FindOne(docOf("name", document.String("ada")))
	age, _ := document.Get(found2, document.ParsePath("age"))
	assert.Equal(t, 31.0, age.N)

	removed, err := c.Delete(docOf("name", document.String("ada")))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok, _ = c.FindOne(docOf("name", document.String("ada")))
	assert.False(t, ok)
}

func TestUniqueIndexRejectsDuplicate(t *testing.T) {
	dir := t.TempDir()
	c, err := Open("users", dir)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.CreateIndex(index.Def{
		Name:   "email_single",
		Kind:   index.KindSingle,
		Fields: []document.Path{document.ParsePath("email")},
		Unique: true,
	}))

	_, err = c.Insert(docOf("email", document.String("a@example.com")))
	require.NoError(t, err)

	_, err = c.Insert(docOf("email", document.String("a@example.com")))
	assert.Error(t, err)
}

func TestCreateIndexBackfills(t *testing.T) {
	dir := t.TempDir()
	c, err := Open("users", dir)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Insert(docOf("status", document.String("active")))
	require.NoError(t, err)
	_, err = c.Insert(docOf("status", document.String("closed")))
	require.NoError(t, err)

	require.NoError(t, c.CreateIndex(index.Def{
		Name:   "status_single",
		Kind:   index.KindSingle,
		Fields: []document.Path{document.ParsePath("status")},
	}))

	results, err := c.Find(docOf("status", document.String("active")), 0, 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRecoveryReopensLiveState(t *testing.T) {
	dir := t.TempDir()
	c, err := Open("users", dir)
	require.NoError(t, err)

	_, err = c.Insert(docOf("name", document.String("grace")))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	reopened, err := Open("users", dir)
	require.NoError(t, err)
	defer reopened.Close()

	_, ok, err := reopened.FindOne(docOf("name", document.String("grace")))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestManagerOpenIsIdempotentAndDropEvicts(t *testing.T) {
	base := t.TempDir()
	m := NewManager(base)

	c1, err := m.Open("widgets")
	require.NoError(t, err)
	c2, err := m.Open("widgets")
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	require.NoError(t, m.Drop("widgets"))
	names, err := m.List()
	require.NoError(t, err)
	assert.NotContains(t, names, "widgets")
}
