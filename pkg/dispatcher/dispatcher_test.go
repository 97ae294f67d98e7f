package dispatcher

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"

	"github.com/oxidb/oxidb/pkg/auth"
	"github.com/oxidb/oxidb/pkg/blob"
	"github.com/oxidb/oxidb/pkg/collection"
	"github.com/oxidb/oxidb/pkg/document"
)

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *Session) {
	t.Helper()
	manager := collection.NewManager(t.TempDir())
	blobs := blob.NewStore(t.TempDir())
	users, err := auth.OpenStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, users.CreateUser("ada", "hunter2", auth.RoleAdmin))

	d := New(manager, blobs, users, nil)
	sess := d.NewSession()
	sess.auth = authenticatedAdminSession(t, users)
	return d, sess
}

func authenticatedAdminSession(t *testing.T, store *auth.Store) *auth.Session {
	t.Helper()
	s := auth.NewSession(store)
	clientFirst := "client-nonce"
	_, _, combined, err := s.AuthStart("ada", clientFirst)
	require.NoError(t, err)

	cred, _, ok, err := store.Lookup("ada")
	require.NoError(t, err)
	require.True(t, ok)

	clientKey := hmacSHA256(pbkdf2.Key([]byte("hunter2"), cred.Salt, cred.Iterations, sha256.Size, sha256.New), []byte("Client Key"))
	authMessage := clientFirst + "," + base64.StdEncoding.EncodeToString(cred.Salt) + ":" + strconv.Itoa(cred.Iterations) + ":" + combined + "," + combined
	clientSignature := hmacSHA256(cred.StoredKey, []byte(authMessage))
	proof := xorBytes(clientKey, clientSignature)

	_, err = s.AuthContinue(combined, base64.StdEncoding.EncodeToString(proof))
	require.NoError(t, err)
	require.True(t, s.Authenticated())
	return s
}

func TestDispatchPing(t *testing.T) {
	d, sess := newTestDispatcher(t)
	reply := d.Dispatch(context.Background(), sess, Request{Cmd: "ping"})
	assert.True(t, reply.OK)
}

func TestDispatchInsertFindCountUpdateDelete(t *testing.T) {
	d, sess := newTestDispatcher(t)

	doc := document.ObjectValue(func() *document.Object {
		o := document.NewObject()
		o.Set("name", document.String("ada"))
		o.Set("age", document.Number(30))
		return o
	}())

	insertReply := d.Dispatch(context.Background(), sess, Request{Cmd: "insert", Collection: "users", Document: doc})
	require.True(t, insertReply.OK)
	require.NotEmpty(t, insertReply.ID)

	filter := document.ObjectValue(func() *document.Object {
		o := document.NewObject()
		o.Set("name", document.String("ada"))
		return o
	}())

	findReply := d.Dispatch(context.Background(), sess, Request{Cmd: "find", Collection: "users", Filter: filter})
	require.True(t, findReply.OK)
	assert.Len(t, findReply.Documents, 1)

	countReply := d.Dispatch(context.Background(), sess, Request{Cmd: "count", Collection: "users", Filter: filter})
	require.True(t, countReply.OK)
	assert.Equal(t, 1, countReply.Count)

	update := document.ObjectValue(func() *document.Object {
		set := document.NewObject()
		set.Set("age", document.Number(31))
		o := document.NewObject()
		o.Set("$set", document.ObjectValue(set))
		return o
	}())
	updateReply := d.Dispatch(context.Background(), sess, Request{Cmd: "update", Collection: "users", Filter: filter, Update: update})
	require.True(t, updateReply.OK)
	assert.Equal(t, 1, updateReply.Count)

	deleteReply := d.Dispatch(context.Background(), sess, Request{Cmd: "delete", Collection: "users", Filter: filter})
	require.True(t, deleteReply.OK)
	assert.Equal(t, 1, deleteReply.Count)
}

func TestDispatchTransactionCommit(t *testing.T) {
	d, sess := newTestDispatcher(t)

	require.True(t, d.Dispatch(context.Background(), sess, Request{Cmd: "begin_tx"}).OK)

	doc := document.ObjectValue(func() *document.Object {
		o := document.NewObject()
		o.Set("sku", document.String("widget"))
		return o
	}())
	insertReply := d.Dispatch(context.Background(), sess, Request{Cmd: "insert", Collection: "products", Document: doc})
	require.True(t, insertReply.OK)

	commitReply := d.Dispatch(context.Background(), sess, Request{Cmd: "commit_tx"})
	require.True(t, commitReply.OK)
	require.Len(t, commitReply.IDs, 1)

	findReply := d.Dispatch(context.Background(), sess, Request{Cmd: "find", Collection: "products", Filter: document.ObjectValue(document.NewObject())})
	require.True(t, findReply.OK)
	assert.Len(t, findReply.Documents, 1)
}

func TestDispatchTransactionRollbackDiscardsBufferedWrites(t *testing.T) {
	d, sess := newTestDispatcher(t)

	require.True(t, d.Dispatch(context.Background(), sess, Request{Cmd: "begin_tx"}).OK)
	doc := document.ObjectValue(func() *document.Object {
		o := document.NewObject()
		o.Set("sku", document.String("gadget"))
		return o
	}())
	d.Dispatch(context.Background(), sess, Request{Cmd: "insert", Collection: "products", Document: doc})
	require.True(t, d.Dispatch(context.Background(), sess, Request{Cmd: "rollback_tx"}).OK)

	findReply := d.Dispatch(context.Background(), sess, Request{Cmd: "find", Collection: "products", Filter: document.ObjectValue(document.NewObject())})
	require.True(t, findReply.OK)
	assert.Len(t, findReply.Documents, 0)
}

func TestDispatchBlobPutGetDelete(t *testing.T) {
	d, sess := newTestDispatcher(t)

	require.True(t, d.Dispatch(context.Background(), sess, Request{Cmd: "create_bucket", Bucket: "photos"}).OK)

	data := base64.StdEncoding.EncodeToString([]byte("meow"))
	putReply := d.Dispatch(context.Background(), sess, Request{Cmd: "put_object", Bucket: "photos", Key: "cat.png", ContentType: "image/png", Data: data})
	require.True(t, putReply.OK)

	getReply := d.Dispatch(context.Background(), sess, Request{Cmd: "get_object", Bucket: "photos", Key: "cat.png"})
	require.True(t, getReply.OK)
	require.True(t, getReply.Found)
	decoded, err := base64.StdEncoding.DecodeString(getReply.ObjectData)
	require.NoError(t, err)
	assert.Equal(t, "meow", string(decoded))

	require.True(t, d.Dispatch(context.Background(), sess, Request{Cmd: "delete_object", Bucket: "photos", Key: "cat.png"}).OK)
	headReply := d.Dispatch(context.Background(), sess, Request{Cmd: "head_object", Bucket: "photos", Key: "cat.png"})
	require.True(t, headReply.OK)
	assert.False(t, headReply.Found)
}

func TestDispatchSQL(t *testing.T) {
	d, sess := newTestDispatcher(t)

	doc := document.ObjectValue(func() *document.Object {
		o := document.NewObject()
		o.Set("name", document.String("ada"))
		o.Set("age", document.Number(30))
		return o
	}())
	require.True(t, d.Dispatch(context.Background(), sess, Request{Cmd: "insert", Collection: "users", Document: doc}).OK)

	reply := d.Dispatch(context.Background(), sess, Request{Cmd: "sql", SQL: "SELECT name FROM users WHERE age >= 18"})
	require.True(t, reply.OK)
	require.Len(t, reply.Documents, 1)
}

func TestDispatchUnknownCommand(t *testing.T) {
	d, sess := newTestDispatcher(t)
	reply := d.Dispatch(context.Background(), sess, Request{Cmd: "bogus"})
	assert.False(t, reply.OK)
}

func TestDispatchRejectsUnauthenticatedMutation(t *testing.T) {
	manager := collection.NewManager(t.TempDir())
	blobs := blob.NewStore(t.TempDir())
	users, err := auth.OpenStore(t.TempDir())
	require.NoError(t, err)

	d := New(manager, blobs, users, nil)
	sess := d.NewSession()

	reply := d.Dispatch(context.Background(), sess, Request{Cmd: "insert", Collection: "users"})
	assert.False(t, reply.OK)
}
